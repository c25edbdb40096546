package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// tracedContext returns a context carrying a recording span, plus the span
// so callers can compare trace IDs.
func tracedContext(t *testing.T) (context.Context, trace.Span) {
	t.Helper()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(tracetest.NewInMemoryExporter()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	t.Cleanup(func() { span.End() })
	return ctx, span
}

func TestNewAppError(t *testing.T) {
	t.Run("without a span the trace id is empty", func(t *testing.T) {
		appErr := NewAppError(context.Background(), "IDEMPOTENCY_KEY_CONFLICT", "idempotency key in use", 409)

		assert.Equal(t, "IDEMPOTENCY_KEY_CONFLICT", appErr.Code)
		assert.Equal(t, "idempotency key in use", appErr.Message)
		assert.Equal(t, 409, appErr.HTTPStatus)
		assert.Empty(t, appErr.TraceID)
	})

	t.Run("recording span stamps the trace id", func(t *testing.T) {
		ctx, span := tracedContext(t)

		appErr := NewAppError(ctx, "INVALID_INPUT", "Invalid input provided", 400)
		assert.Equal(t, span.SpanContext().TraceID().String(), appErr.TraceID)
	})
}

func TestAppErrorError(t *testing.T) {
	appErr := &AppError{Code: "STORE_UNAVAILABLE", Message: "record store unreachable", HTTPStatus: 500}

	assert.Contains(t, appErr.Error(), "STORE_UNAVAILABLE")
	assert.Contains(t, appErr.Error(), "record store unreachable")
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(&AppError{Code: "X", Message: "x", HTTPStatus: 400}))
	assert.False(t, IsAppError(ErrForbidden))
	assert.False(t, IsAppError(nil))
}

func TestWrap(t *testing.T) {
	appErr := Wrap(context.Background(), assert.AnError, "INTERNAL_ERROR", 500)

	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.Equal(t, 500, appErr.HTTPStatus)
	assert.Contains(t, appErr.Message, assert.AnError.Error())
}

func TestWrapWithMessage(t *testing.T) {
	appErr := WrapWithMessage(context.Background(), assert.AnError, "STORE_ERROR", "storage backend failed", 500)

	assert.Equal(t, "STORE_ERROR", appErr.Code)
	assert.Equal(t, "storage backend failed", appErr.Message)
	assert.NotContains(t, appErr.Message, assert.AnError.Error())
}
