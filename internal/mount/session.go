package mount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"btstrm/internal/domain"
	"btstrm/internal/metrics"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultReadyTimeout = 5 * time.Minute
	teardownTimeout     = 10 * time.Second
	mountPointPrefix    = "btstrm-"
)

var (
	ErrNotReady     = errors.New("mount never became ready")
	ErrInvalidState = errors.New("invalid session state")
)

type Config struct {
	CacheDir     string
	DataDir      string
	PollInterval time.Duration
	ReadyTimeout time.Duration
	Keep         bool
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(c.CacheDir, "download")
	}
	return c
}

// Manager opens sessions against one filesystem and mounter.
type Manager struct {
	fs      afero.Fs
	mounter Mounter
	cfg     Config
	logger  *slog.Logger
}

func NewManager(fs afero.Fs, mounter Mounter, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{fs: fs, mounter: mounter, cfg: cfg.withDefaults(), logger: logger}
}

// Run opens a session for locator, starts it and hands it to fn. The session is
// closed when Run returns, whatever fn did, including panicking.
func (m *Manager) Run(ctx context.Context, locator string, fn func(ctx context.Context, s *Session) error) (err error) {
	s := m.NewSession(locator)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session panicked", slog.String("session", s.ID), slog.Any("panic", r))
			err = fmt.Errorf("%w: %v", domain.ErrInternal, r)
		}
		if closeErr := s.Close(ctx); closeErr != nil {
			m.logger.Warn("session teardown incomplete",
				slog.String("session", s.ID),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	if err := s.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

func (m *Manager) NewSession(locator string) *Session {
	tasksCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:          uuid.NewString(),
		Locator:     locator,
		fs:          m.fs,
		mounter:     m.mounter,
		cfg:         m.cfg,
		logger:      m.logger,
		scanner:     NewScanner(m.fs, m.logger),
		state:       StateCreated,
		tasksCtx:    tasksCtx,
		tasksCancel: cancel,
	}
	metrics.SessionsActive.Inc()
	metrics.SessionTransitionsTotal.WithLabelValues(StateCreated.String()).Inc()
	return s
}

// Session is one mounted locator. Only Manager creates sessions.
type Session struct {
	ID      string
	Locator string

	fs      afero.Fs
	mounter Mounter
	cfg     Config
	logger  *slog.Logger
	scanner *Scanner

	mu             sync.Mutex
	state          State
	mountPoint     string
	mountAttempted bool

	tasksCtx    context.Context
	tasksCancel context.CancelFunc
	tasks       sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	teardowns atomic.Int32
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) MountPoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mountPoint
}

func (s *Session) DataDir() string {
	return s.cfg.DataDir
}

func (s *Session) transitionTo(to State) State {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	metrics.SessionTransitionsTotal.WithLabelValues(to.String()).Inc()
	s.logger.Debug("session state transition",
		slog.String("session", s.ID),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return from
}

// Start creates the directories and runs the mounter.
func (s *Session) Start(ctx context.Context) error {
	if state := s.State(); state != StateCreated {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, state)
	}
	s.transitionTo(StateMounting)

	for _, dir := range []string{s.cfg.CacheDir, s.cfg.DataDir} {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			s.transitionTo(StateFailed)
			return fmt.Errorf("%w: create %s: %v", domain.ErrInternal, dir, err)
		}
	}
	mountPoint, err := afero.TempDir(s.fs, s.cfg.CacheDir, mountPointPrefix)
	if err != nil {
		s.transitionTo(StateFailed)
		return fmt.Errorf("%w: create mount point: %v", domain.ErrInternal, err)
	}
	s.mu.Lock()
	s.mountPoint = mountPoint
	s.mountAttempted = true
	s.mu.Unlock()

	err = s.mounter.Mount(ctx, MountRequest{
		Locator:    s.Locator,
		MountPoint: mountPoint,
		DataDir:    s.cfg.DataDir,
		Keep:       s.cfg.Keep,
	})
	if err != nil {
		s.transitionTo(StateFailed)
		return err
	}
	s.transitionTo(StateAwaitingData)
	return nil
}

// WaitReady polls the mount point until it lists at least one entry.
func (s *Session) WaitReady(ctx context.Context) error {
	if state := s.State(); state != StateAwaitingData {
		return fmt.Errorf("%w: wait from %s", ErrInvalidState, state)
	}
	mountPoint := s.MountPoint()

	deadline := time.NewTimer(s.cfg.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if s.populated(mountPoint) {
			s.transitionTo(StateReady)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			s.transitionTo(StateFailed)
			return fmt.Errorf("%w after %s", ErrNotReady, s.cfg.ReadyTimeout)
		case <-ticker.C:
		}
	}
}

func (s *Session) populated(mountPoint string) bool {
	entries, err := afero.ReadDir(s.fs, mountPoint)
	if err != nil {
		s.logger.Debug("mount point not listable yet", slog.String("error", err.Error()))
		return false
	}
	return len(entries) > 0
}

// MediaFiles lists the playable files under the mount point in lexical order.
func (s *Session) MediaFiles() ([]string, error) {
	if state := s.State(); state != StateReady {
		return nil, fmt.Errorf("%w: enumerate from %s", ErrInvalidState, state)
	}
	return FindMedia(s.fs, s.MountPoint())
}

// LogPath returns the status log of the most recently created torrent
// directory under the data dir.
func (s *Session) LogPath() (string, bool) {
	dir, ok := LatestSubdir(s.fs, s.cfg.DataDir)
	if !ok {
		return "", false
	}
	return filepath.Join(dir, "log.txt"), true
}

// ContentDir is where btfs keeps the bytes of this session's torrent.
func (s *Session) ContentDir() (string, bool) {
	dir, ok := LatestSubdir(s.fs, s.DataDir())
	if !ok {
		return "", false
	}
	return filepath.Join(dir, "files"), true
}

// BackingPaths maps mounted media paths to where btfs keeps their bytes.
func (s *Session) BackingPaths(media []string) []string {
	dir, ok := s.ContentDir()
	if !ok {
		return nil
	}
	mountPoint := s.MountPoint()
	out := make([]string, 0, len(media))
	for _, path := range media {
		rel, err := filepath.Rel(mountPoint, path)
		if err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, rel))
	}
	return out
}

// CompletedMedia returns the video files of this session's torrent that are
// fully on disk. Samples and other torrents in the data dir are ignored.
func (s *Session) CompletedMedia() ([]string, error) {
	dir, ok := s.ContentDir()
	if !ok {
		return nil, nil
	}
	if _, err := s.fs.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	completed, err := s.scanner.CompletedFiles(dir)
	if err != nil {
		return nil, err
	}
	media := completed[:0]
	for _, path := range completed {
		if IsVideo(path) && !IsSample(path) {
			media = append(media, path)
		}
	}
	return media, nil
}

// Attach runs task until the session tears down. Tasks attached once the
// session is terminal are not started.
func (s *Session) Attach(task func(ctx context.Context)) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.tasks.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.tasks.Done()
		task(s.tasksCtx)
	}()
}

// Close tears the session down once; later calls return the first result.
// Background tasks are stopped before the mount goes away, and the data dir
// is left alone.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.teardowns.Add(1)
		from := s.transitionTo(StateTearingDown)

		s.tasksCancel()
		s.tasks.Wait()

		// Teardown must finish even when ctx is what got cancelled.
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()

		s.mu.Lock()
		mountPoint, attempted := s.mountPoint, s.mountAttempted
		s.mu.Unlock()

		if attempted {
			if err := s.mounter.Unmount(teardownCtx, mountPoint); err != nil {
				s.logger.Warn("unmount failed",
					slog.String("session", s.ID),
					slog.String("mount_point", mountPoint),
					slog.String("error", err.Error()),
				)
			}
		}
		if mountPoint != "" {
			if err := s.fs.RemoveAll(mountPoint); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.closeErr = fmt.Errorf("remove mount point: %w", err)
			}
		}

		s.transitionTo(StateClosed)
		metrics.SessionsActive.Dec()
		s.logger.Debug("session closed", slog.String("session", s.ID), slog.String("from", from.String()))
	})
	return s.closeErr
}
