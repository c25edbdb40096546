package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler adapts the Prometheus scrape handler to a gin route.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// HealthCheckMetricsResponse is the /health body: liveness plus a pointer
// to the scrape endpoint.
type HealthCheckMetricsResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Metrics string `json:"metrics"`
}

// HealthCheckWithMetrics serves a liveness response that advertises where
// metrics are scraped from.
func HealthCheckWithMetrics(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthCheckMetricsResponse{
			Status:  "healthy",
			Version: version,
			Metrics: "/metrics",
		})
	}
}
