package http

import (
	"crypto/subtle"

	apperrors "github.com/alex-necsoiu/idempotency-shield/internal/errors"
	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
	"github.com/gin-gonic/gin"
)

// AdminTokenHeader carries the shared secret admin endpoints require. This
// service has no user identity of its own, so admin access is gated by a
// single operator-held token rather than a role claim.
const AdminTokenHeader = "X-Admin-Token"

// AdminMiddleware rejects any request whose X-Admin-Token header does not
// match the configured admin token. An empty configured token disables every
// admin route, since that almost always means the deployment forgot to set
// one rather than meaning "open to everyone".
func AdminMiddleware(adminToken string, logger *observability.Logger) gin.HandlerFunc {
	audit := observability.NewAuditLogger(logger)

	return func(c *gin.Context) {
		if adminToken == "" {
			logger.Warn("admin endpoint blocked: no admin token configured")
			audit.LogSecurityEvent("admin.auth_unconfigured", "warning", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			status, body := apperrors.ToHTTPError(c.Request.Context(), apperrors.ErrForbidden)
			c.AbortWithStatusJSON(status, body)
			return
		}

		supplied := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(adminToken)) != 1 {
			logger.WithField("path", c.Request.URL.Path).Warn("admin endpoint rejected invalid token")
			audit.LogSecurityEvent("admin.auth_rejected", "warning", map[string]interface{}{
				"path": c.Request.URL.Path,
			})
			status, body := apperrors.ToHTTPError(c.Request.Context(), apperrors.ErrForbidden)
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Next()
	}
}
