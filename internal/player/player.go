// Package player locates and runs the external media player.
package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var Defaults = []string{
	"omxplayer --timeout 60",
	"mpv --really-quiet --cache=no",
	"vlc --file-caching 10000",
}

var ErrNotFound = errors.New("could not find a player")

// ErrSignaled reports a player killed by a signal. It wraps context.Canceled
// so callers treat it as an interrupt.
var ErrSignaled = fmt.Errorf("player stopped by signal: %w", context.Canceled)

// interruptSettle is how long a non-zero exit waits for ctx to catch up with a
// Ctrl-C the player saw first.
var interruptSettle = 200 * time.Millisecond

// LookPathFunc resolves a binary name; exec.LookPath in production.
type LookPathFunc func(file string) (string, error)

type Player struct {
	Path string
	Args []string
}

func (p Player) String() string {
	return strings.Join(append([]string{p.Path}, p.Args...), " ")
}

// Candidates returns the command lines to try, with override taking the place
// of the configured list when set.
func Candidates(override string, configured []string) []string {
	if strings.TrimSpace(override) != "" {
		return []string{override}
	}
	if len(configured) == 0 {
		return Defaults
	}
	return configured
}

// Find returns the first candidate whose binary resolves.
func Find(candidates []string, lookPath LookPathFunc) (Player, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, candidate := range candidates {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		path, err := lookPath(fields[0])
		if err != nil {
			continue
		}
		return Player{Path: path, Args: fields[1:]}, nil
	}
	return Player{}, ErrNotFound
}

// Run plays files on the terminal and returns the player's exit status.
// err is set when the player could not be started, or when it was stopped by
// a signal or by ctx.
func Run(ctx context.Context, p Player, files []string) (int, error) {
	args := append(append([]string{}, p.Args...), files...)
	cmd := exec.CommandContext(ctx, p.Path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, fmt.Errorf("start player %s: %w", p.Path, err)
	}
	status := exitErr.ExitCode()
	if status < 0 {
		return status, ErrSignaled
	}

	// The terminal delivers SIGINT to the player and to us at the same time.
	settle := time.NewTimer(interruptSettle)
	defer settle.Stop()
	select {
	case <-ctx.Done():
		return status, ctx.Err()
	case <-settle.C:
		return status, nil
	}
}
