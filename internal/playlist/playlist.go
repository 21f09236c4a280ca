// Package playlist hands fully downloaded files to impd.
package playlist

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const binaryName = "impd"

type Adder struct {
	lookPath func(string) (string, error)
	out      io.Writer
	logger   *slog.Logger
}

func New(out io.Writer, logger *slog.Logger) *Adder {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adder{lookPath: exec.LookPath, out: out, logger: logger}
}

// Add runs `impd add FILES...`. A missing impd is reported, not returned.
func (a *Adder) Add(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	path, err := a.lookPath(binaryName)
	if err != nil {
		a.logger.Info("impd not found in PATH")
		_, _ = fmt.Fprintln(a.out, "impd not found in PATH.")
		return nil
	}

	_, _ = fmt.Fprintln(a.out, "Adding downloaded files into impd:")
	_, _ = fmt.Fprintln(a.out, strings.Join(files, "\n"))

	cmd := exec.CommandContext(ctx, path, append([]string{"add"}, files...)...)
	cmd.Stdout = a.out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("impd add: %w", err)
	}
	return nil
}
