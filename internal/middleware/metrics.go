package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
)

// PrometheusMiddleware records request volume, latency, payload sizes, and
// replay hits for every route it wraps.
func PrometheusMiddleware(metrics *observability.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.IncrementHTTPActiveConnections()
		defer metrics.DecrementHTTPActiveConnections()

		requestSize := 0
		if c.Request.ContentLength > 0 {
			requestSize = int(c.Request.ContentLength)
		}

		c.Next()

		responseSize := c.Writer.Size()
		if responseSize < 0 {
			responseSize = 0
		}

		// FullPath is the route pattern ("/pay", "/admin/stats"), so label
		// cardinality stays bounded; unmatched routes fall back to the raw
		// path.
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			statusClass(c.Writer.Status()),
			time.Since(start),
			requestSize,
			responseSize,
		)

		// The coordinator stamps replayed responses; count them here so the
		// hit ratio is visible per route.
		if c.Writer.Header().Get("X-Idempotency-Replay") == "true" {
			metrics.RecordIdempotencyCacheHit(path, c.Request.Method)
		}
	}
}

// statusClass buckets a status code into 2xx/3xx/4xx/5xx.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
