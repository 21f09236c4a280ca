package search

import (
	"sort"
	"sync"
	"time"

	"btstrm/internal/domain"
	"btstrm/internal/metrics"
)

const (
	indexerFailureThreshold = 3
	indexerBlockBase        = 2 * time.Minute
	indexerBlockMax         = 15 * time.Minute
)

type indexerHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastKind            domain.FailureKind
	lastSuccessAt       time.Time
	lastLatency         time.Duration
	totalRequests       int64
	totalFailures       int64
}

// IndexerStatus is a snapshot of one indexer's breaker state.
type IndexerStatus struct {
	Indexer             domain.IndexerID
	ConsecutiveFailures int
	BlockedUntil        time.Time
	LastError           string
	LastKind            domain.FailureKind
	LastLatency         time.Duration
	TotalRequests       int64
	TotalFailures       int64
}

// healthTracker is a per-indexer circuit breaker. Indexers that keep failing
// are skipped for an exponentially growing window.
type healthTracker struct {
	mu     sync.Mutex
	states map[domain.IndexerID]*indexerHealth
}

func newHealthTracker() *healthTracker {
	return &healthTracker{states: make(map[domain.IndexerID]*indexerHealth)}
}

func (h *healthTracker) blocked(indexer domain.IndexerID, now time.Time) (bool, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[indexer]
	if state == nil || state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}
	}
	return true, state.blockedUntil
}

func (h *healthTracker) record(indexer domain.IndexerID, err error, latency time.Duration, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := string(indexer)
	state := h.states[indexer]
	if state == nil {
		state = &indexerHealth{}
		h.states[indexer] = state
	}
	state.totalRequests++
	if latency > 0 {
		state.lastLatency = latency
		metrics.IndexerRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastKind = domain.FailureUnknown
		state.lastSuccessAt = now
		metrics.IndexerRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.IndexerAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastError = err.Error()

	kind := classify(err)
	state.lastKind = kind
	metrics.IndexerRequestsTotal.WithLabelValues(name, kind.String()).Inc()

	if state.consecutiveFailures >= indexerFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.IndexerAvailable.WithLabelValues(name).Set(0)
	}
}

func (h *healthTracker) snapshot() []IndexerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := make([]IndexerStatus, 0, len(h.states))
	for indexer, state := range h.states {
		items = append(items, IndexerStatus{
			Indexer:             indexer,
			ConsecutiveFailures: state.consecutiveFailures,
			BlockedUntil:        state.blockedUntil,
			LastError:           state.lastError,
			LastKind:            state.lastKind,
			LastLatency:         state.lastLatency,
			TotalRequests:       state.totalRequests,
			TotalFailures:       state.totalFailures,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Indexer < items[j].Indexer })
	return items
}

// exponentialBlockDuration is base × 2^(failures - threshold), capped.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - indexerFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := indexerBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > indexerBlockMax {
			return indexerBlockMax
		}
	}
	return d
}
