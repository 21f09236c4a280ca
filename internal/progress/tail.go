package progress

import (
	"io"
	"strings"

	"github.com/spf13/afero"
)

// Tail reads a growing file one complete line at a time, remembering where
// the previous read stopped.
type Tail struct {
	fs      afero.Fs
	path    string
	offset  int64
	partial string
}

func NewTail(fs afero.Fs, path string) *Tail {
	return &Tail{fs: fs, path: path}
}

// ReadLines returns the lines completed since the last call. A trailing line
// without its newline is held back until it is finished.
func (t *Tail) ReadLines() ([]string, error) {
	f, err := t.fs.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		// Truncated or replaced; start over.
		t.offset = 0
		t.partial = ""
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(f)
	if err != nil && err != io.EOF {
		return nil, err
	}
	t.offset += int64(len(chunk))

	data := t.partial + string(chunk)
	parts := strings.Split(data, "\n")
	t.partial = parts[len(parts)-1]
	lines := parts[:len(parts)-1]
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines, nil
}

