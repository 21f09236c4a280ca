package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"btstrm/internal/domain"
	"btstrm/internal/metrics"
	"btstrm/internal/telemetry"
)

const defaultConcurrency = 20

// ProgressFunc is called once per indexer when all its queries have finished.
type ProgressFunc func(done, total int)

type Dispatcher struct {
	client      Searcher
	concurrency int64
	timeout     time.Duration
	progress    ProgressFunc
	cache       ResultCache
	logger      *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = int64(n)
		}
	}
}

func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithProgress(fn ProgressFunc) DispatcherOption {
	return func(d *Dispatcher) { d.progress = fn }
}

// WithCache puts cache in front of the fan-out. A nil cache disables caching.
func WithCache(cache ResultCache) DispatcherOption {
	return func(d *Dispatcher) { d.cache = cache }
}

func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(client Searcher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		client:      client,
		concurrency: defaultConcurrency,
		timeout:     defaultRequestTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// queryPass orders the two query variants for merging; a higher pass outranks a lower one.
type queryPass int

const (
	passFolded queryPass = iota
	passOriginal
)

type queryCall struct {
	indexer domain.IndexerID
	pass    queryPass
	query   string
}

// Dispatch fans query out to every indexer and merges the answers into one
// ranked, link-unique result. It never fails: indexers that error or time out
// contribute nothing, and a cancelled ctx yields whatever was merged so far.
func (d *Dispatcher) Dispatch(ctx context.Context, query string, indexers []domain.IndexerID) domain.AggregateResult {
	query = strings.TrimSpace(query)
	indexers = uniqueIndexers(indexers)
	if query == "" || len(indexers) == 0 {
		return domain.AggregateResult{}
	}

	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "search.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.Int("search.indexers", len(indexers)),
	)

	cacheKey := CacheKey(query, indexers)
	if d.cache != nil {
		if cached, ok := d.cache.Get(ctx, cacheKey); ok {
			metrics.CacheHitsTotal.Inc()
			span.SetAttributes(attribute.Bool("search.cache_hit", true))
			d.logger.Debug("search cache hit", slog.String("query", query), slog.Int("candidates", len(cached)))
			if d.progress != nil {
				d.progress(len(indexers), len(indexers))
			}
			return cached
		}
		metrics.CacheMissesTotal.Inc()
	}

	calls := planCalls(query, indexers)
	pending := make(map[domain.IndexerID]int, len(indexers))
	for _, call := range calls {
		pending[call.indexer]++
	}

	merged := newMerger()
	var (
		progressMu sync.Mutex
		done       int
		abandoned  atomic.Bool
	)
	finishCall := func(indexer domain.IndexerID) {
		progressMu.Lock()
		defer progressMu.Unlock()
		pending[indexer]--
		if pending[indexer] > 0 {
			return
		}
		done++
		if d.progress != nil && !abandoned.Load() {
			d.progress(done, len(indexers))
		}
	}

	sem := semaphore.NewWeighted(d.concurrency)
	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call queryCall) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			items := d.client.Search(ctx, call.query, call.indexer, d.timeout)
			merged.merge(mergeRank{indexer: call.indexer, pass: call.pass}, items)
			finishCall(call.indexer)
		}(call)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		abandoned.Store(true)
		partial := merged.result()
		span.SetStatus(codes.Error, "dispatch cancelled")
		d.logger.Debug("dispatch cancelled", slog.String("query", query), slog.Int("candidates", len(partial)))
		return partial
	}

	result := merged.result()
	metrics.DispatchCandidates.Observe(float64(len(result)))
	span.SetAttributes(attribute.Int("search.candidates", len(result)))
	if d.cache != nil && len(result) > 0 && ctx.Err() == nil {
		d.cache.Set(ctx, cacheKey, result)
	}
	return result
}

// planCalls builds one call per indexer for the original query, plus one for
// the folded query when folding changes it.
func planCalls(query string, indexers []domain.IndexerID) []queryCall {
	folded := ""
	if NeedsFolding(query) {
		if candidate := FoldASCII(query); candidate != query {
			folded = candidate
		}
	}

	calls := make([]queryCall, 0, 2*len(indexers))
	for _, indexer := range indexers {
		calls = append(calls, queryCall{indexer: indexer, pass: passOriginal, query: query})
		if folded != "" {
			calls = append(calls, queryCall{indexer: indexer, pass: passFolded, query: folded})
		}
	}
	return calls
}

func uniqueIndexers(indexers []domain.IndexerID) []domain.IndexerID {
	out := make([]domain.IndexerID, 0, len(indexers))
	seen := make(map[domain.IndexerID]struct{}, len(indexers))
	for _, indexer := range indexers {
		indexer = domain.IndexerID(strings.TrimSpace(string(indexer)))
		if indexer == "" {
			continue
		}
		if _, ok := seen[indexer]; ok {
			continue
		}
		seen[indexer] = struct{}{}
		out = append(out, indexer)
	}
	return out
}

// mergeRank decides which call's version of a duplicate link survives.
// Indexers compare lexically; within an indexer the original query beats the
// folded one. The outcome depends only on the ranks, never on arrival order.
type mergeRank struct {
	indexer domain.IndexerID
	pass    queryPass
}

func (r mergeRank) atLeast(other mergeRank) bool {
	if r.indexer != other.indexer {
		return r.indexer > other.indexer
	}
	return r.pass >= other.pass
}

type rankedCandidate struct {
	candidate domain.Candidate
	rank      mergeRank
}

type merger struct {
	mu     sync.Mutex
	byLink map[string]rankedCandidate
}

func newMerger() *merger {
	return &merger{byLink: make(map[string]rankedCandidate)}
}

// merge applies one call's items in response order. Equal rank replaces, so a
// link repeated within one response keeps its last occurrence.
func (m *merger) merge(rank mergeRank, items []domain.Candidate) {
	if len(items) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		existing, ok := m.byLink[item.Link]
		if ok && !rank.atLeast(existing.rank) {
			continue
		}
		m.byLink[item.Link] = rankedCandidate{candidate: item, rank: rank}
	}
}

func (m *merger) result() domain.AggregateResult {
	m.mu.Lock()
	out := make(domain.AggregateResult, 0, len(m.byLink))
	for _, entry := range m.byLink {
		out = append(out, entry.candidate)
	}
	m.mu.Unlock()

	SortCandidates(out)
	return out
}

// SortCandidates orders by seeders descending, then link ascending.
func SortCandidates(items []domain.Candidate) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Seeders != items[j].Seeders {
			return items[i].Seeders > items[j].Seeders
		}
		return items[i].Link < items[j].Link
	})
}
