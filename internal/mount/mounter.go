package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
)

type MountRequest struct {
	Locator    string
	MountPoint string
	DataDir    string
	Keep       bool
}

// Mounter starts and stops the external FUSE process. Mount is expected to
// return once the process has daemonized.
type Mounter interface {
	Mount(ctx context.Context, req MountRequest) error
	Unmount(ctx context.Context, mountPoint string) error
}

// MountError carries the exit status of a failed mount process. Status is -1
// when the process could not be started at all.
type MountError struct {
	Status int
	Err    error
}

func (e *MountError) Error() string {
	if e.Status < 0 {
		return fmt.Sprintf("mount failed: %v", e.Err)
	}
	return fmt.Sprintf("mount failed with status %d", e.Status)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// BTFSMounter drives btfs and fusermount.
type BTFSMounter struct {
	Binary        string
	UnmountBinary string
	Stderr        io.Writer
	logger        *slog.Logger
}

func NewBTFSMounter(binary, unmountBinary string, logger *slog.Logger) *BTFSMounter {
	if binary == "" {
		binary = "btfs"
	}
	if unmountBinary == "" {
		unmountBinary = "fusermount"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BTFSMounter{Binary: binary, UnmountBinary: unmountBinary, Stderr: os.Stderr, logger: logger}
}

func btfsArgs(req MountRequest) []string {
	args := make([]string, 0, 4)
	if req.Keep {
		args = append(args, "--keep")
	}
	return append(args, "--data-directory="+req.DataDir, req.Locator, req.MountPoint)
}

func (m *BTFSMounter) Mount(ctx context.Context, req MountRequest) error {
	args := btfsArgs(req)
	m.logger.Debug("starting mount", slog.String("binary", m.Binary), slog.Any("args", args))

	cmd := exec.CommandContext(ctx, m.Binary, args...)
	cmd.Stdout = m.Stderr
	cmd.Stderr = m.Stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &MountError{Status: exitErr.ExitCode(), Err: err}
		}
		return &MountError{Status: -1, Err: err}
	}
	return nil
}

// Unmount detaches lazily so a player still holding files does not block teardown.
func (m *BTFSMounter) Unmount(ctx context.Context, mountPoint string) error {
	cmd := exec.CommandContext(ctx, m.UnmountBinary, "-z", "-u", mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s -z -u %s: %w: %s", m.UnmountBinary, mountPoint, err, out)
	}
	return nil
}
