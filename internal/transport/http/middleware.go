package http

import (
	"net/http"

	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ErrorResponse is the JSON body for non-2xx responses produced by this
// package's own middleware; the idempotency protocol errors use the richer
// envelope from internal/idempotency/httpmap.go instead.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LoggingMiddleware emits one line when a request arrives and one when it
// completes, with the final status attached.
func LoggingMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.WithFields(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request received")

		c.Next()

		logger.WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status_code": c.Writer.Status(),
		}).Info("HTTP request completed")
	}
}

// CORSMiddleware answers preflight requests and opens the demo endpoints
// to any origin. Idempotency-Key is in the allowed-headers list so browser
// clients can send it.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Idempotency-Key, Accept-Encoding, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RecoveryMiddleware turns a handler panic into a logged 500 instead of a
// dropped connection.
func RecoveryMiddleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"error":  r,
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				}).Error("Panic recovered")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   "internal_error",
					Message: "an unexpected error occurred",
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}

// TracingMiddleware opens an OpenTelemetry span per request via otelgin.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
