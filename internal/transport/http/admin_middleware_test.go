package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/alex-necsoiu/idempotency-shield/internal/errors"
	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
	httpTransport "github.com/alex-necsoiu/idempotency-shield/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAdminTestRouter(adminToken string) *gin.Engine {
	logger := observability.NewLogger("test", "idempotency-test")
	router := gin.New()
	router.Use(httpTransport.AdminMiddleware(adminToken, logger))
	router.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestAdminMiddleware_CorrectTokenPasses(t *testing.T) {
	router := newAdminTestRouter("s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(httpTransport.AdminTokenHeader, "s3cr3t")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMiddleware_WrongTokenRejected(t *testing.T) {
	router := newAdminTestRouter("s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(httpTransport.AdminTokenHeader, "wrong")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestAdminMiddleware_MissingTokenRejected(t *testing.T) {
	router := newAdminTestRouter("s3cr3t")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminMiddleware_NoConfiguredTokenBlocksEveryRequest(t *testing.T) {
	router := newAdminTestRouter("")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set(httpTransport.AdminTokenHeader, "anything")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
