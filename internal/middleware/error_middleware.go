package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/alex-necsoiu/idempotency-shield/internal/errors"
	"github.com/alex-necsoiu/idempotency-shield/pkg/logger"
)

// ErrorMiddleware converts errors attached via c.Error() into the standard
// JSON envelope and recovers panics into a 500. Both paths log with the
// request's trace ID attached.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log := logger.WithTrace(c.Request.Context(), logger.GetLogger())
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str("method", c.Request.Method).
					Msg("Panic recovered")

				status, response := errors.ToHTTPError(c.Request.Context(), errors.ErrInternal)
				c.JSON(status, response)
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// Only the first error drives the response; the rest are context.
		err := c.Errors[0].Err
		log := logger.WithTrace(c.Request.Context(), logger.GetLogger())
		log.Error().
			Err(err).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("Request error")

		status, response := errors.ToHTTPError(c.Request.Context(), err)
		if !c.Writer.Written() {
			c.JSON(status, response)
		}
		c.Abort()
	}
}
