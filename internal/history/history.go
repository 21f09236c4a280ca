// Package history records one entry per playback session.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomePlayed      Outcome = "played"
	OutcomeNoMedia     Outcome = "no_media"
	OutcomeMountFailed Outcome = "mount_failed"
	OutcomeNotReady    Outcome = "not_ready"
	OutcomePlayerError Outcome = "player_error"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeInternal    Outcome = "internal_error"
)

type Record struct {
	ID         string
	Locator    string
	Title      string
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    Outcome
	ExitCode   int
	MediaFiles []string
}

// NewRecord starts a record for locator at now.
func NewRecord(locator, title string, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Locator:   locator,
		Title:     title,
		StartedAt: now.UTC(),
	}
}

// Finish stamps the end of the session.
func (r Record) Finish(outcome Outcome, exitCode int, media []string, now time.Time) Record {
	r.Outcome = outcome
	r.ExitCode = exitCode
	r.MediaFiles = append([]string(nil), media...)
	r.EndedAt = now.UTC()
	return r
}

func (r Record) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	ListRecent(ctx context.Context, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

// NopStore keeps nothing; it is used when no database is configured.
type NopStore struct{}

func (NopStore) Save(context.Context, Record) error { return nil }

func (NopStore) ListRecent(context.Context, int) ([]Record, error) { return nil, nil }

func (NopStore) Close(context.Context) error { return nil }
