package search

import (
	"context"
	"time"

	"btstrm/internal/domain"
)

// Backend performs one raw query against a single indexer.
type Backend interface {
	Search(ctx context.Context, indexer domain.IndexerID, query string) ([]domain.Candidate, error)
}

// IndexerLister enumerates the indexers configured on the aggregator.
type IndexerLister interface {
	ListIndexers(ctx context.Context) ([]domain.IndexerID, error)
}

// Searcher is what the dispatcher fans out over. IndexerClient satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, indexer domain.IndexerID, timeout time.Duration) []domain.Candidate
}
