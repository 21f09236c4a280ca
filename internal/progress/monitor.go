package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"

	"btstrm/internal/metrics"
)

const (
	defaultInterval = 2 * time.Second
	lineWidth       = 80

	colorGreen    = "2"
	colorDarkGray = "8"
)

// LogResolver locates the status log; ok is false while it does not exist yet.
type LogResolver func() (path string, ok bool)

// Monitor periodically renders download progress parsed from the btfs log.
type Monitor struct {
	fs       afero.Fs
	resolve  LogResolver
	out      io.Writer
	interval time.Duration
	logger   *slog.Logger

	color   bool
	started lipgloss.Style
	waiting lipgloss.Style

	tail   *Tail
	parser *Parser
	cycles atomic.Int64
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMonitor(fsys afero.Fs, resolve LogResolver, out io.Writer, opts ...Option) *Monitor {
	renderer := lipgloss.NewRenderer(out)
	m := &Monitor{
		fs:       fsys,
		resolve:  resolve,
		out:      out,
		interval: defaultInterval,
		logger:   slog.Default(),
		color:    isTTY(out),
		parser:   NewParser(),
		started:  renderer.NewStyle().Foreground(lipgloss.Color(colorGreen)),
		waiting:  renderer.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Run renders a cycle immediately and then every interval until ctx is done.
// Cancellation is checked before each cycle, so nothing is written after it.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		m.cycle()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cycles is the number of cycles run so far.
func (m *Monitor) Cycles() int64 {
	return m.cycles.Load()
}

func (m *Monitor) cycle() {
	m.cycles.Add(1)
	metrics.ProgressCycles.Inc()

	if m.tail == nil {
		path, ok := m.resolve()
		if !ok {
			return
		}
		m.tail = NewTail(m.fs, path)
	}

	lines, err := m.tail.ReadLines()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Debug("progress log unreadable", slog.String("error", err.Error()))
		}
		return
	}
	for _, line := range lines {
		m.parser.Feed(line)
	}

	_, _ = fmt.Fprint(m.out, "\r"+strings.Repeat(" ", lineWidth)+"\r"+m.Render(m.parser.Stats()))
}

// Render formats stats as the status line, green once the first piece is in.
func (m *Monitor) Render(stats Stats) string {
	line := FormatLine(stats)
	if !m.color {
		return line
	}
	if stats.FirstPiece {
		return m.started.Render(line)
	}
	return m.waiting.Render(line)
}

func FormatLine(stats Stats) string {
	return fmt.Sprintf("Peers: %d; Downloaded %d pieces", stats.TotalPeers(), stats.Pieces)
}
