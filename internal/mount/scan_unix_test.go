//go:build !windows

package mount

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletedFilesOnDisk(t *testing.T) {
	root := t.TempDir()

	// Random bytes so compressing filesystems still allocate every block.
	payload := make([]byte, 64*1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	full := filepath.Join(root, "full.bin")
	require.NoError(t, os.WriteFile(full, payload, 0o644))

	// A truncated file is sparse: its size is set but no blocks are allocated.
	sparse := filepath.Join(root, "sub", "sparse.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(sparse), 0o755))
	f, err := os.Create(sparse)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(8*1024*1024))
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(root, "empty"), nil, 0o644))

	completed, err := CompletedFiles(afero.NewOsFs(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{full}, completed)
}
