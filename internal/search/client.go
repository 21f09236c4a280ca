package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"btstrm/internal/domain"
)

const defaultRequestTimeout = 20 * time.Second

// IndexerClient queries one indexer at a time and turns every failure into an
// empty result. Callers never see an error from it.
type IndexerClient struct {
	backend Backend
	retry   RetryPolicy
	health  *healthTracker
	logger  *slog.Logger
	now     func() time.Time
}

type ClientOption func(*IndexerClient)

func WithRetry(p RetryPolicy) ClientOption {
	return func(c *IndexerClient) { c.retry = p }
}

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *IndexerClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func withClock(now func() time.Time) ClientOption {
	return func(c *IndexerClient) { c.now = now }
}

func NewIndexerClient(backend Backend, opts ...ClientOption) *IndexerClient {
	c := &IndexerClient{
		backend: backend,
		retry:   DefaultRetryPolicy(),
		health:  newHealthTracker(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs query against indexer. The whole call, retries included, is
// bounded by timeout; a non-positive timeout means the 20s default.
func (c *IndexerClient) Search(ctx context.Context, query string, indexer domain.IndexerID, timeout time.Duration) []domain.Candidate {
	query = strings.TrimSpace(query)
	if query == "" || indexer == "" {
		return nil
	}

	if blocked, until := c.health.blocked(indexer, c.now()); blocked {
		c.logger.Debug("indexer skipped",
			slog.String("indexer", string(indexer)),
			slog.Time("blocked_until", until),
		)
		return nil
	}

	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	requestCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := c.now()
	items, err := retryQuery(requestCtx, c.retry, func() ([]domain.Candidate, error) {
		return c.backend.Search(requestCtx, indexer, query)
	})
	latency := c.now().Sub(startedAt)

	// A cancelled parent is the user leaving, not the indexer failing.
	if ctx.Err() != nil {
		return nil
	}
	c.health.record(indexer, err, latency, c.now())
	if err != nil {
		c.logger.Warn("indexer query failed",
			slog.String("indexer", string(indexer)),
			slog.String("query", query),
			slog.Duration("latency", latency),
			slog.String("kind", classify(err).String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return items
}

func (c *IndexerClient) Health() []IndexerStatus {
	return c.health.snapshot()
}
