package mount

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMediaFiltersAndSorts(t *testing.T) {
	fs := afero.NewMemMapFs()
	root := "/mnt/btstrm-1"
	for _, name := range []string{
		"movie.mkv",
		"movie.sample.mkv",
		"readme.txt",
		"Extras/Behind.The.Scenes.MP4",
		"Extras/SAMPLE/clip.avi",
		"Season 1/ep02.webm",
		"Season 1/ep01.webm",
		"cover.jpg",
	} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(root, name), []byte("x"), 0o644))
	}

	media, err := FindMedia(fs, root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "Extras/Behind.The.Scenes.MP4"),
		filepath.Join(root, "Extras/SAMPLE/clip.avi"),
		filepath.Join(root, "Season 1/ep01.webm"),
		filepath.Join(root, "Season 1/ep02.webm"),
		filepath.Join(root, "movie.mkv"),
	}, media)
}

func TestFindMediaKeepsOnlyRealVideo(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"movie.mkv", "movie.sample.mkv", "readme.txt"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/m", name), nil, 0o644))
	}
	media, err := FindMedia(fs, "/m")
	require.NoError(t, err)
	assert.Equal(t, []string{"/m/movie.mkv"}, media)
}

func TestIsVideoAndIsSample(t *testing.T) {
	assert.True(t, IsVideo("a.MPEG"))
	assert.True(t, IsVideo("dir/b.m4v"))
	assert.False(t, IsVideo("mkv"))
	assert.False(t, IsVideo("a.srt"))
	assert.True(t, IsSample("/x/Movie-Sample.mkv"))
	assert.False(t, IsSample("/samples/movie.mkv"))
}
