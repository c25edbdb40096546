package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg RateLimiterConfig) *RateLimiter {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRateLimiter(client, cfg)
}

func limitedRouter(limiter *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter))
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func doGet(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAllowEnforcesLimit(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "limit:key", 10)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should fit the window", i+1)
	}

	allowed, err := limiter.Allow(ctx, "limit:key", 10)
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit must be rejected")
}

func TestAllowWindowSlides(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 5, WindowDuration: time.Second})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "sliding:key", 5)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "sliding:key", 5)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Let the recorded timestamps age out of the window.
	time.Sleep(1100 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "sliding:key", 5)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRateLimitMiddlewarePerIP(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	router := limitedRouter(limiter)

	for i := 0; i < 10; i++ {
		w := doGet(router, "192.168.1.1")
		require.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doGet(router, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different client address has its own window.
	w = doGet(router, "192.168.1.2")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddlewareHeaders(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	router := limitedRouter(limiter)

	w := doGet(router, "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestEndpointRateLimitMiddleware(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/pay", EndpointRateLimitMiddleware(limiter, 3, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/status", EndpointRateLimitMiddleware(limiter, 10, time.Minute), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/pay", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post().Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, post().Code)

	// The wider per-route limit on /status is independent... except that
	// both routes share the per-IP key, so /pay's three requests count.
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRateLimitInfo(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Allow(ctx, "info:key", 10)
		require.NoError(t, err)
	}

	used, remaining, resetAt, err := limiter.GetRateLimitInfo(ctx, "info:key")
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)
	assert.Equal(t, int64(7), remaining)
	assert.True(t, resetAt.After(time.Now()))
}

func TestResetRateLimit(t *testing.T) {
	limiter := newTestLimiter(t, RateLimiterConfig{RequestsPerWindow: 10, WindowDuration: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := limiter.Allow(ctx, "reset:key", 10)
		require.NoError(t, err)
	}

	allowed, err := limiter.Allow(ctx, "reset:key", 10)
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, limiter.ResetRateLimit(ctx, "reset:key"))

	allowed, err = limiter.Allow(ctx, "reset:key", 10)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	mr, err := miniredis.Run()
	if err != nil {
		b.Fatal(err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRateLimiter(client, RateLimiterConfig{RequestsPerWindow: 1000, WindowDuration: time.Minute})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = limiter.Allow(ctx, fmt.Sprintf("bench:key:%d", i%100), 1000)
	}
}
