package cli

import (
	"context"
	"errors"
	"fmt"

	"btstrm/internal/domain"
	"btstrm/internal/history"
	"btstrm/internal/mount"
)

const (
	ExitOK          = 0
	ExitInterrupted = 1
	ExitInternal    = 2
	ExitNoMedia     = 3
	ExitMountFailed = 4
	ExitNotReady    = 5
	ExitPlayer      = 6
)

// PlayerExitError reports a player that ran but exited non-zero.
type PlayerExitError struct {
	Status int
}

func (e *PlayerExitError) Error() string {
	return fmt.Sprintf("player exited with status %d", e.Status)
}

// ExitCode maps the outcome of a run to the process exit status.
func ExitCode(err error) int {
	var (
		mountErr  *mount.MountError
		playerErr *PlayerExitError
	)
	switch {
	case err == nil, errors.Is(err, domain.ErrNoSelection):
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, domain.ErrNoMedia):
		return ExitNoMedia
	case errors.As(err, &mountErr):
		return ExitMountFailed
	case errors.Is(err, mount.ErrNotReady):
		return ExitNotReady
	case errors.As(err, &playerErr):
		return ExitPlayer
	default:
		return ExitInternal
	}
}

func outcomeOf(err error) history.Outcome {
	switch ExitCode(err) {
	case ExitOK:
		return history.OutcomePlayed
	case ExitInterrupted:
		return history.OutcomeInterrupted
	case ExitNoMedia:
		return history.OutcomeNoMedia
	case ExitMountFailed:
		return history.OutcomeMountFailed
	case ExitNotReady:
		return history.OutcomeNotReady
	case ExitPlayer:
		return history.OutcomePlayerError
	default:
		return history.OutcomeInternal
	}
}
