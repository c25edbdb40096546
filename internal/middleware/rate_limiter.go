// Package middleware provides rate limiting and error-mapping functionality
// for HTTP endpoints shared across the idempotency-shield demo server.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiterConfig holds rate limiting configuration. This service has no
// user identity of its own (see internal/transport/http.AdminMiddleware),
// so limiting is IP-keyed only.
type RateLimiterConfig struct {
	// RequestsPerWindow caps how many requests one key may make per window.
	RequestsPerWindow int

	// WindowDuration is the width of the sliding window.
	WindowDuration time.Duration
}

// RateLimiter is a Redis-backed sliding-window limiter. Each key maps to a
// sorted set of request timestamps; the window slides by trimming scores
// older than now minus the window.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

// NewRateLimiter builds a limiter on an existing Redis client.
func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{redis: redisClient, config: config}
}

// Allow reports whether a request under key fits inside limit for the
// current window, recording it if so.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	now := time.Now().UnixNano()
	windowStart := now - rl.config.WindowDuration.Nanoseconds()

	trim := rl.redis.Pipeline()
	trim.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	countCmd := trim.ZCard(ctx, key)
	if _, err := trim.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter redis error: %w", err)
	}

	if countCmd.Val() >= int64(limit) {
		return false, nil
	}

	record := rl.redis.Pipeline()
	record.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: strconv.FormatInt(now, 10)})
	record.Expire(ctx, key, rl.config.WindowDuration+time.Minute)
	if _, err := record.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter redis error: %w", err)
	}

	return true, nil
}

// GetRateLimitInfo reports current usage for key: requests consumed in the
// window, requests remaining, and when the window resets.
func (rl *RateLimiter) GetRateLimitInfo(ctx context.Context, key string) (used int64, remaining int64, resetAt time.Time, err error) {
	now := time.Now()
	windowStart := now.Add(-rl.config.WindowDuration).UnixNano()

	used, err = rl.redis.ZCount(ctx, key, strconv.FormatInt(windowStart, 10), "+inf").Result()
	if err != nil {
		return 0, 0, time.Time{}, err
	}

	remaining = int64(rl.config.RequestsPerWindow) - used
	if remaining < 0 {
		remaining = 0
	}
	return used, remaining, now.Add(rl.config.WindowDuration), nil
}

// ResetRateLimit clears the window for key. Intended for admin tooling and
// tests.
func (rl *RateLimiter) ResetRateLimit(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, key).Err()
}

// RateLimitMiddleware enforces the limiter per client IP. Every response
// the limiter could evaluate carries X-RateLimit-Limit/-Remaining/-Reset;
// a blocked request gets 429
// with Retry-After. Redis being down fails open: limiting is protection,
// not a guarantee, and the request proceeds with the error attached to the
// gin context.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := "ratelimit:ip:" + c.ClientIP()
		limit := limiter.config.RequestsPerWindow

		allowed, err := limiter.Allow(ctx, key, limit)
		if err != nil {
			_ = c.Error(fmt.Errorf("rate limiter error: %w", err))
			c.Next()
			return
		}

		_, remaining, resetAt, infoErr := limiter.GetRateLimitInfo(ctx, key)
		if infoErr != nil {
			remaining = 0
			resetAt = time.Now().Add(limiter.config.WindowDuration)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(limiter.config.WindowDuration.Seconds())
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":               "rate_limit_exceeded",
				"message":             "Too many requests. Please try again later.",
				"retry_after_seconds": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware is RateLimitMiddleware with a limit scoped
// to one route, sharing the limiter's Redis client:
//
//	router.POST("/pay", EndpointRateLimitMiddleware(limiter, 5, time.Minute), handler)
func EndpointRateLimitMiddleware(limiter *RateLimiter, requestsPerWindow int, window time.Duration) gin.HandlerFunc {
	scoped := &RateLimiter{
		redis: limiter.redis,
		config: RateLimiterConfig{
			RequestsPerWindow: requestsPerWindow,
			WindowDuration:    window,
		},
	}
	return RateLimitMiddleware(scoped)
}
