package errors

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// AppError is a structured application error: a machine-readable code, a
// client-safe message, the HTTP status it maps to, and the trace ID of the
// request that produced it.
type AppError struct {
	// Code is machine-readable, e.g. "IDEMPOTENCY_KEY_CONFLICT".
	Code string `json:"code"`

	// Message is safe to show to a client.
	Message string `json:"message"`

	// HTTPStatus is the status the transport edge should respond with.
	HTTPStatus int `json:"-"`

	// TraceID correlates the error with its distributed trace.
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewAppError builds an AppError, stamping it with the trace ID found in
// ctx (empty when there is no recording span).
func NewAppError(ctx context.Context, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		TraceID:    extractTraceID(ctx),
	}
}

// Wrap converts err into an AppError, reusing err's message verbatim.
func Wrap(ctx context.Context, err error, code string, httpStatus int) *AppError {
	return NewAppError(ctx, code, err.Error(), httpStatus)
}

// WrapWithMessage converts err into an AppError with a replacement
// message, for cases where err's own text is not client-safe.
func WrapWithMessage(ctx context.Context, err error, code, message string, httpStatus int) *AppError {
	return NewAppError(ctx, code, message, httpStatus)
}

// IsAppError reports whether err is an *AppError.
func IsAppError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*AppError)
	return ok
}

// extractTraceID pulls the OpenTelemetry trace ID out of ctx, or returns
// "" when no valid recording span is present.
func extractTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return ""
	}
	traceID := span.SpanContext().TraceID()
	if !traceID.IsValid() {
		return ""
	}
	return traceID.String()
}
