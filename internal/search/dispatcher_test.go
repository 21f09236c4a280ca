package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btstrm/internal/domain"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	calls   atomic.Int32
	respond func(ctx context.Context, query string, indexer domain.IndexerID) []domain.Candidate
}

func (f *fakeSearcher) Search(ctx context.Context, query string, indexer domain.IndexerID, _ time.Duration) []domain.Candidate {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, string(indexer)+":"+query)
	f.mu.Unlock()
	return f.respond(ctx, query, indexer)
}

func noResults(context.Context, string, domain.IndexerID) []domain.Candidate {
	return nil
}

func candidate(indexer domain.IndexerID, title, link string, seeders int) domain.Candidate {
	return domain.NewCandidate(indexer, title, link, seeders, 1<<30)
}

func links(result domain.AggregateResult) []string {
	out := make([]string, 0, len(result))
	for _, c := range result {
		out = append(out, c.Link)
	}
	return out
}

func assertRankedAndUnique(t *testing.T, result domain.AggregateResult) {
	t.Helper()
	seen := make(map[string]struct{}, len(result))
	for i, item := range result {
		require.NotContains(t, seen, item.Link, "duplicate link")
		seen[item.Link] = struct{}{}
		if i == 0 {
			continue
		}
		prev := result[i-1]
		ordered := prev.Seeders > item.Seeders || (prev.Seeders == item.Seeders && prev.Link < item.Link)
		require.True(t, ordered, "out of order at %d: %+v before %+v", i, prev, item)
	}
}

func TestDispatchMergesAndOrders(t *testing.T) {
	searcher := &fakeSearcher{respond: func(_ context.Context, _ string, indexer domain.IndexerID) []domain.Candidate {
		switch indexer {
		case "alpha":
			return []domain.Candidate{
				candidate(indexer, "Movie 1080p", "magnet:?xt=1", 10),
				candidate(indexer, "Movie 720p", "magnet:?xt=2", 30),
			}
		case "beta":
			return []domain.Candidate{
				candidate(indexer, "Movie 1080p", "magnet:?xt=1", 12),
				candidate(indexer, "Movie CAM", "magnet:?xt=3", 10),
			}
		}
		return nil
	}}

	result := NewDispatcher(searcher).Dispatch(context.Background(), "movie", []domain.IndexerID{"alpha", "beta"})
	require.Len(t, result, 3)
	assertRankedAndUnique(t, result)
	assert.Equal(t, []string{"magnet:?xt=2", "magnet:?xt=1", "magnet:?xt=3"}, links(result))
}

func TestDispatchAllIndexersFailing(t *testing.T) {
	searcher := &fakeSearcher{respond: noResults}

	result := NewDispatcher(searcher).Dispatch(context.Background(), "anything", []domain.IndexerID{"a", "b", "c"})
	assert.Empty(t, result)
	assert.EqualValues(t, 3, searcher.calls.Load())
}

func TestDispatchEmptyInputsSkipQueries(t *testing.T) {
	searcher := &fakeSearcher{respond: noResults}
	d := NewDispatcher(searcher)

	assert.Empty(t, d.Dispatch(context.Background(), "   ", []domain.IndexerID{"a"}))
	assert.Empty(t, d.Dispatch(context.Background(), "movie", nil))
	assert.Zero(t, searcher.calls.Load())
}

func TestDispatchSendsFoldedQuery(t *testing.T) {
	searcher := &fakeSearcher{respond: noResults}
	NewDispatcher(searcher).Dispatch(context.Background(), "Amélie", []domain.IndexerID{"x"})

	assert.ElementsMatch(t, []string{"x:Amelie", "x:Amélie"}, searcher.queries)
}

func TestDispatchRespectsConcurrencyLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32
	searcher := &fakeSearcher{respond: func(context.Context, string, domain.IndexerID) []domain.Candidate {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			seen := peak.Load()
			if n <= seen || peak.CompareAndSwap(seen, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}}

	indexers := make([]domain.IndexerID, 30)
	for i := range indexers {
		indexers[i] = domain.IndexerID(fmt.Sprintf("indexer-%02d", i))
	}
	// The accented query doubles the calls to 60.
	NewDispatcher(searcher, WithConcurrency(limit)).Dispatch(context.Background(), "Pokémon", indexers)

	assert.EqualValues(t, 60, searcher.calls.Load())
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Positive(t, peak.Load())
}

func TestDispatchPrecedenceIgnoresCompletionOrder(t *testing.T) {
	// Make either the winner or the loser finish first.
	for _, slowWinner := range []bool{false, true} {
		searcher := &fakeSearcher{respond: func(_ context.Context, query string, indexer domain.IndexerID) []domain.Candidate {
			winner := indexer == "zeta" && query == "Café"
			if winner == slowWinner {
				time.Sleep(20 * time.Millisecond)
			}
			return []domain.Candidate{candidate(indexer, query, "magnet:?xt=shared", 5)}
		}}

		result := NewDispatcher(searcher).Dispatch(context.Background(), "Café", []domain.IndexerID{"alpha", "zeta"})
		require.Len(t, result, 1)
		assert.Equal(t, "Café [zeta]", result[0].Title, "slowWinner=%v", slowWinner)
	}
}

func TestMergerFixedOrderLastAppliedWins(t *testing.T) {
	link := "magnet:?xt=dup"
	calls := []struct {
		rank mergeRank
		item domain.Candidate
	}{
		{mergeRank{"a", passFolded}, candidate("a", "a-folded", link, 1)},
		{mergeRank{"a", passOriginal}, candidate("a", "a-original", link, 2)},
		{mergeRank{"b", passFolded}, candidate("b", "b-folded", link, 3)},
		{mergeRank{"b", passOriginal}, candidate("b", "b-original", link, 4)},
	}
	orders := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 3, 0, 2}, {2, 0, 3, 1}}
	for _, order := range orders {
		m := newMerger()
		for _, idx := range order {
			m.merge(calls[idx].rank, []domain.Candidate{calls[idx].item})
		}
		got := m.result()
		require.Len(t, got, 1, "order %v", order)
		assert.Equal(t, "b-original [b]", got[0].Title, "order %v", order)
	}
}

func TestMergerRepeatedLinkInOneResponseKeepsLast(t *testing.T) {
	m := newMerger()
	m.merge(mergeRank{"a", passOriginal}, []domain.Candidate{
		candidate("a", "first", "magnet:?xt=1", 1),
		candidate("a", "second", "magnet:?xt=1", 9),
	})

	got := m.result()
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].Seeders)
}

func TestDispatchReportsProgressPerIndexer(t *testing.T) {
	searcher := &fakeSearcher{respond: noResults}
	var (
		mu    sync.Mutex
		ticks [][2]int
	)
	d := NewDispatcher(searcher, WithConcurrency(2), WithProgress(func(done, total int) {
		mu.Lock()
		ticks = append(ticks, [2]int{done, total})
		mu.Unlock()
	}))
	// Accented query doubles the calls; progress still ticks once per indexer.
	d.Dispatch(context.Background(), "niño", []domain.IndexerID{"a", "b", "c"})

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, ticks)
}

func TestDispatchCancelReturnsPartial(t *testing.T) {
	searcher := &fakeSearcher{respond: func(ctx context.Context, _ string, indexer domain.IndexerID) []domain.Candidate {
		if indexer == "fast" {
			return []domain.Candidate{candidate(indexer, "quick", "magnet:?xt=fast", 3)}
		}
		<-ctx.Done()
		return nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	result := NewDispatcher(searcher).Dispatch(ctx, "query", []domain.IndexerID{"fast", "stuck"})
	assert.Less(t, time.Since(started), 2*time.Second)
	assert.Equal(t, []string{"magnet:?xt=fast"}, links(result))
}

func TestDispatchUsesCache(t *testing.T) {
	searcher := &fakeSearcher{respond: func(_ context.Context, _ string, indexer domain.IndexerID) []domain.Candidate {
		return []domain.Candidate{candidate(indexer, "x", "magnet:?xt=c", 1)}
	}}
	d := NewDispatcher(searcher, WithCache(NewMemoryCache(8, time.Minute)))

	first := d.Dispatch(context.Background(), "Query", []domain.IndexerID{"b", "a"})
	second := d.Dispatch(context.Background(), "query", []domain.IndexerID{"a", "b"})
	assert.EqualValues(t, 2, searcher.calls.Load(), "second dispatch hits the cache")
	assert.Equal(t, links(first), links(second))
	assert.Len(t, second, 1)
}

func TestDispatchDoesNotCacheEmpty(t *testing.T) {
	searcher := &fakeSearcher{respond: noResults}
	d := NewDispatcher(searcher, WithCache(NewMemoryCache(8, time.Minute)))

	d.Dispatch(context.Background(), "nothing", []domain.IndexerID{"a"})
	d.Dispatch(context.Background(), "nothing", []domain.IndexerID{"a"})
	assert.EqualValues(t, 2, searcher.calls.Load())
}
