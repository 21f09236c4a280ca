package mount

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".m4v": {}, ".mkv": {}, ".avi": {},
	".mpg": {}, ".mpeg": {}, ".flv": {}, ".webm": {},
}

func IsVideo(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func IsSample(name string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(name)), "sample")
}

// FindMedia walks root for regular video files that are not samples.
func FindMedia(fs afero.Fs, root string) ([]string, error) {
	var media []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if IsSample(path) || !IsVideo(path) {
			return nil
		}
		media = append(media, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(media)
	return media, nil
}

// LatestSubdir returns the most recently modified directory directly under dir.
func LatestSubdir(fs afero.Fs, dir string) (string, bool) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", false
	}
	var (
		latest os.FileInfo
		found  bool
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if !found || entry.ModTime().After(latest.ModTime()) {
			latest = entry
			found = true
		}
	}
	if !found {
		return "", false
	}
	return filepath.Join(dir, latest.Name()), true
}
