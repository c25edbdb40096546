package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds the Prometheus series for the HTTP surface:
// request volume, latency, payload sizes, plus how often the idempotency
// layer served a cached replay instead of re-running a handler.
type MetricsCollector struct {
	HTTPRequestsTotal        *prometheus.CounterVec
	HTTPRequestDuration      *prometheus.HistogramVec
	HTTPRequestSize          *prometheus.HistogramVec
	HTTPResponseSize         *prometheus.HistogramVec
	HTTPActiveConnections    prometheus.Gauge
	HTTPIdempotencyCacheHits *prometheus.CounterVec

	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// NewMetricsCollector registers every series under namespace/subsystem on
// the default registry.
func NewMetricsCollector(namespace, subsystem string) *MetricsCollector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		}, labels)
	}

	latencyBuckets := []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 7) // 100B .. 100MB

	return &MetricsCollector{
		HTTPRequestsTotal: counter("http_requests_total",
			"Total number of HTTP requests",
			"method", "path", "status"),
		HTTPRequestDuration: histogram("http_request_duration_seconds",
			"HTTP request duration in seconds", latencyBuckets,
			"method", "path", "status"),
		HTTPRequestSize: histogram("http_request_size_bytes",
			"HTTP request size in bytes", sizeBuckets,
			"method", "path"),
		HTTPResponseSize: histogram("http_response_size_bytes",
			"HTTP response size in bytes", sizeBuckets,
			"method", "path", "status"),
		HTTPActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_active_connections",
			Help:      "Number of active HTTP connections",
		}),
		HTTPIdempotencyCacheHits: counter("http_idempotency_cache_hits_total",
			"Total number of idempotency cache hits",
			"path", "method"),
		ErrorsTotal: counter("errors_total",
			"Total number of errors",
			"error_type", "component"),
		PanicsTotal: counter("panics_total",
			"Total number of panics recovered",
			"component"),
	}
}

// RecordHTTPRequest records one completed request across the volume,
// latency, and size series.
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string, duration time.Duration, requestSize, responseSize int) {
	mc.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	mc.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	mc.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	mc.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}

// RecordError counts an error by type and component.
func (mc *MetricsCollector) RecordError(errorType, component string) {
	mc.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic counts a recovered panic.
func (mc *MetricsCollector) RecordPanic(component string) {
	mc.PanicsTotal.WithLabelValues(component).Inc()
}

// IncrementHTTPActiveConnections marks a connection opened.
func (mc *MetricsCollector) IncrementHTTPActiveConnections() {
	mc.HTTPActiveConnections.Inc()
}

// DecrementHTTPActiveConnections marks a connection closed.
func (mc *MetricsCollector) DecrementHTTPActiveConnections() {
	mc.HTTPActiveConnections.Dec()
}

// RecordIdempotencyCacheHit counts a replay served from the cache.
func (mc *MetricsCollector) RecordIdempotencyCacheHit(path, method string) {
	mc.HTTPIdempotencyCacheHits.WithLabelValues(path, method).Inc()
}
