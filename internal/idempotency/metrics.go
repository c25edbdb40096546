package idempotency

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instrumentation the Coordinator emits at each
// step of the protocol.
type Metrics struct {
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	lockContentions prometheus.Counter
	storeErrors     *prometheus.CounterVec
	handlerDuration prometheus.Histogram
}

// NewMetrics registers the idempotency metric family under namespace/subsystem.
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotency_cache_hits_total",
			Help:      "Total number of requests that found a cached idempotency record (replayed or rejected for a payload mismatch)",
		}),
		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotency_cache_misses_total",
			Help:      "Total number of requests that found no cached idempotency record",
		}),
		lockContentions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotency_lock_contentions_total",
			Help:      "Total number of requests rejected for concurrent use of the same idempotency key",
		}),
		storeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotency_store_errors_total",
			Help:      "Total number of idempotency store operations that failed after retries",
		}, []string{"op"}),
		handlerDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "idempotency_handler_duration_seconds",
			Help:      "Duration of the wrapped handler execution, measured under lock",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) observeCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) observeLockContention() {
	if m == nil {
		return
	}
	m.lockContentions.Inc()
}

func (m *Metrics) observeStoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) observeHandlerDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.Observe(d.Seconds())
}
