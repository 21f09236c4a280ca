package tmdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"
)

const (
	posterFetchLimit = 10
	maxPosterBytes   = 5 * 1024 * 1024
)

// Poster is a downloaded poster for one search result. Path is empty when the
// result had no poster or the download failed.
type Poster struct {
	Result SearchResult
	Path   string
}

// PosterSet is the set of temp files written by FetchPosters.
type PosterSet struct {
	Posters []Poster
}

// Cleanup removes every downloaded poster.
func (s *PosterSet) Cleanup() {
	for _, p := range s.Posters {
		if p.Path != "" {
			_ = os.Remove(p.Path)
		}
	}
}

// FetchPosters downloads posters concurrently into dir, keeping result order.
// A failed download leaves that poster without a path rather than failing the set.
func (c *Client) FetchPosters(ctx context.Context, results []SearchResult, dir string, logger *slog.Logger) *PosterSet {
	if logger == nil {
		logger = slog.Default()
	}
	set := &PosterSet{Posters: make([]Poster, len(results))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(posterFetchLimit)
	for i, r := range results {
		set.Posters[i].Result = r
		src := posterURL(c.posterBase, r.PosterPath)
		if src == "" {
			continue
		}
		g.Go(func() error {
			path, err := c.downloadPoster(gctx, src, dir)
			if err != nil {
				logger.Debug("poster download failed",
					slog.String("url", src),
					slog.String("error", err.Error()),
				)
				return nil
			}
			set.Posters[i].Path = path
			return nil
		})
	}
	_ = g.Wait()
	return set
}

func (c *Client) downloadPoster(ctx context.Context, src, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("poster HTTP %d", resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "btstrm-poster-*.jpg")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxPosterBytes)); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
