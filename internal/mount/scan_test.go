package mount

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScannerUsesAllocation(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/data"
	files := map[string]int{
		"a/full.mkv":    1000,
		"a/partial.mkv": 1000,
		"b/over.srt":    100,
		"empty.nfo":     0,
	}
	allocations := map[string]int64{
		"full.mkv":    1000,
		"partial.mkv": 400,
		"over.srt":    4096,
		"empty.nfo":   0,
	}
	for name, size := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, name), make([]byte, size), 0o644))
	}

	scanner := NewScanner(fs, nil)
	scanner.allocated = func(info os.FileInfo) (int64, bool) {
		return allocations[info.Name()], true
	}

	completed, err := scanner.CompletedFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/full.mkv"),
		filepath.Join(root, "b/over.srt"),
	}, completed)
}

func TestScannerUnknownAllocationIsIncomplete(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/x.mkv", []byte("data"), 0o644))

	// MemMapFs carries no block information.
	completed, err := CompletedFiles(fs, "/data", nil)
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestScannerMissingRoot(t *testing.T) {
	_, err := CompletedFiles(afero.NewMemMapFs(), "/nope", nil)
	require.Error(t, err)
}
