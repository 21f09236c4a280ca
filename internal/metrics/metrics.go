package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	IndexerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btstrm",
		Name:      "indexer_requests_total",
		Help:      "Total requests to Jackett indexers by indexer and result status.",
	}, []string{"indexer", "status"})

	IndexerRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "btstrm",
		Name:      "indexer_request_duration_seconds",
		Help:      "Indexer request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"indexer"})

	IndexerAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "btstrm",
		Name:      "indexer_available",
		Help:      "Whether an indexer is available (1) or blocked by circuit breaker (0).",
	}, []string{"indexer"})

	DispatchCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "btstrm",
		Name:      "dispatch_candidates",
		Help:      "Number of distinct candidates produced by one dispatch.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btstrm",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btstrm",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	SessionTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "btstrm",
		Name:      "session_state_transitions_total",
		Help:      "Mount session state transitions by target state.",
	}, []string{"to"})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "btstrm",
		Name:      "sessions_active",
		Help:      "Number of mount sessions not yet closed.",
	})

	ProgressCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btstrm",
		Name:      "progress_cycles_total",
		Help:      "Total progress reporting cycles rendered.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		IndexerRequestsTotal,
		IndexerRequestDuration,
		IndexerAvailable,
		DispatchCandidates,
		CacheHitsTotal,
		CacheMissesTotal,
		SessionTransitionsTotal,
		SessionsActive,
		ProgressCycles,
	)
}

// WriteTextfile dumps the gatherer in node_exporter textfile format. An empty
// path does nothing.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, gatherer)
}
