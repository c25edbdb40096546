package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/alex-necsoiu/idempotency-shield/internal/idempotency"
	"github.com/alex-necsoiu/idempotency-shield/internal/middleware"
	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RouterDeps collects everything SetupRouter needs to wire the demo
// endpoints and the admin surface behind the idempotency Coordinator.
type RouterDeps struct {
	Coordinator *idempotency.Coordinator
	Sweeper     *idempotency.Sweeper
	Logger      *observability.Logger
	AdminToken  string
	Backend     string
	Mode        string // "release" or "debug"

	// RateLimiter, when non-nil, guards the demo endpoints with an IP-keyed
	// sliding window. Nil disables rate limiting entirely.
	RateLimiter *middleware.RateLimiter

	// Metrics, when non-nil, records HTTP request/latency/size metrics and
	// idempotency cache-hit counts for every request through the router.
	Metrics *observability.MetricsCollector
}

// SetupRouter configures and returns a Gin router exposing the sample
// endpoints from the at-most-once protocol walkthrough (/pay, /throw),
// operational endpoints (/health, /metrics), and an admin stats endpoint.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RecoveryMiddleware(deps.Logger))
	router.Use(middleware.ErrorMiddleware())
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(CORSMiddleware())
	router.Use(TracingMiddleware("idempotency-shield"))
	if deps.Metrics != nil {
		router.Use(middleware.PrometheusMiddleware(deps.Metrics))
	}

	router.GET("/health", HealthCheckWithMetrics("1.0.0"))
	router.GET("/metrics", MetricsHandler())

	guarded := idempotency.DefaultEndpointPolicy()

	demo := demoHandlers{}

	demoChain := func(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
		if deps.RateLimiter != nil {
			return append([]gin.HandlerFunc{middleware.RateLimitMiddleware(deps.RateLimiter)}, handlers...)
		}
		return handlers
	}

	router.POST("/pay", demoChain(deps.Coordinator.Middleware(&guarded), demo.pay)...)
	router.POST("/throw", demoChain(deps.Coordinator.Middleware(&guarded), demo.throwing)...)
	router.POST("/ping", demoChain(deps.Coordinator.Middleware(nil), demo.ping)...)

	admin := router.Group("/admin")
	admin.Use(AdminMiddleware(deps.AdminToken, deps.Logger))
	{
		admin.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"backend":        deps.Backend,
				"sweeper_active": deps.Sweeper != nil,
			})
		})
	}

	return router
}

// demoHandlers implements the sample handlers the middleware guards. They
// are intentionally trivial: the behavior under test is the Coordinator
// wrapping them, not the handlers.
type demoHandlers struct{}

var demoTxCounter int64

// pay simulates a payment handler: each fresh execution mints a new
// transaction id and an incrementing sequence number.
func (demoHandlers) pay(c *gin.Context) {
	n := atomic.AddInt64(&demoTxCounter, 1)
	c.JSON(http.StatusOK, gin.H{
		"tx": uuid.NewString(),
		"n":  n,
	})
}

// throwing simulates a handler that fails mid-request, exercising the
// release-on-failure path: the lock must be released and the key must
// remain reusable for a subsequent call.
func (demoHandlers) throwing(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "handler_panic", "message": "simulated downstream failure"})
}

// ping is registered with a nil policy to demonstrate that idempotency can
// be disabled per-route: every call executes, key or no key.
func (demoHandlers) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pong": time.Now().UTC().Format(time.RFC3339Nano)})
}
