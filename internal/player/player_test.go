package player

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookPathIn(available ...string) LookPathFunc {
	return func(file string) (string, error) {
		for _, name := range available {
			if name == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestFindReturnsFirstAvailable(t *testing.T) {
	p, err := Find(Defaults, lookPathIn("vlc", "mpv"))
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/mpv", p.Path)
	assert.Equal(t, []string{"--really-quiet", "--cache=no"}, p.Args)
}

func TestFindNothingAvailable(t *testing.T) {
	_, err := Find(Defaults, lookPathIn())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCandidatesOverride(t *testing.T) {
	assert.Equal(t, []string{"mplayer -fs"}, Candidates("mplayer -fs", []string{"mpv"}))
	assert.Equal(t, []string{"mpv"}, Candidates("  ", []string{"mpv"}))
	assert.Equal(t, Defaults, Candidates("", nil))
}

func TestRunReturnsExitStatus(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script player")
	}
	script := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n[ \"$2\" = /media/a.mkv ] && exit 0\nexit 7\n"), 0o755))

	status, err := Run(context.Background(), Player{Path: script, Args: []string{"--fs"}}, []string{"/media/a.mkv"})
	require.NoError(t, err)
	assert.Equal(t, 0, status)

	status, err = Run(context.Background(), Player{Path: script}, []string{"/media/b.mkv"})
	require.NoError(t, err)
	assert.Equal(t, 7, status)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "player")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return script
}

func TestRunSignalledPlayerIsInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script player")
	}
	script := writeScript(t, "kill -TERM $$")

	_, err := Run(context.Background(), Player{Path: script}, nil)
	require.ErrorIs(t, err, ErrSignaled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunNonZeroExitDuringInterruptIsInterrupt(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script player")
	}
	script := writeScript(t, "exit 4")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Cancel inside the settle window, after the player has already exited.
	time.AfterFunc(interruptSettle/4, cancel)

	_, err := Run(ctx, Player{Path: script}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMissingBinary(t *testing.T) {
	status, err := Run(context.Background(), Player{Path: filepath.Join(t.TempDir(), "missing")}, nil)
	require.Error(t, err)
	assert.Equal(t, -1, status)
}
