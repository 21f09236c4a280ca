package mount

import (
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/afero"
)

// Scanner finds fully downloaded files in a btfs data directory.
type Scanner struct {
	fs        afero.Fs
	logger    *slog.Logger
	allocated func(os.FileInfo) (int64, bool)
}

func NewScanner(fsys afero.Fs, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{fs: fsys, logger: logger, allocated: fileAllocatedBytes}
}

// CompletedFiles is NewScanner(fsys, logger).CompletedFiles(dataDir).
func CompletedFiles(fsys afero.Fs, dataDir string, logger *slog.Logger) ([]string, error) {
	return NewScanner(fsys, logger).CompletedFiles(dataDir)
}

// CompletedFiles walks dataDir in lexical order and returns the files whose
// allocated blocks cover their whole size. Unreadable directories are skipped.
func (s *Scanner) CompletedFiles(dataDir string) ([]string, error) {
	var completed []string
	err := afero.Walk(s.fs, dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				s.logger.Warn("access denied to directory", slog.String("path", path))
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if s.complete(info) {
			completed = append(completed, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

func (s *Scanner) complete(info os.FileInfo) bool {
	size := info.Size()
	if size <= 0 {
		return false
	}
	allocated, ok := s.allocated(info)
	if !ok {
		return false
	}
	// Block granularity can push allocation past the logical size.
	return math.Round(100*float64(allocated)/float64(size)) >= 100
}
