package errors

import (
	"context"
	stderrors "errors"
	"net/http"
)

// ErrorResponse is the JSON envelope every error reaches a client in.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code, message, and trace correlation for one
// error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id"`
}

// httpMappings pairs a sentinel with the status/code/message it surfaces
// as. Messages are fixed strings: internal error detail never reaches a
// client through this path.
var httpMappings = []struct {
	sentinel error
	status   int
	code     string
	message  string
}{
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", "Invalid input"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Forbidden"},
	{ErrInternal, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"},
}

// ToHTTPError resolves err to an HTTP status and response envelope. An
// *AppError passes through with its own status and code; sentinels map via
// httpMappings; anything unrecognized collapses to a generic 500 so
// internals are never leaked.
func ToHTTPError(ctx context.Context, err error) (int, ErrorResponse) {
	if appErr, ok := err.(*AppError); ok {
		return appErr.HTTPStatus, ErrorResponse{Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			TraceID: appErr.TraceID,
		}}
	}

	traceID := extractTraceID(ctx)
	for _, m := range httpMappings {
		if stderrors.Is(err, m.sentinel) {
			return m.status, ErrorResponse{Error: ErrorDetail{
				Code:    m.code,
				Message: m.message,
				TraceID: traceID,
			}}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "Internal server error",
		TraceID: traceID,
	}}
}
