package errors

import "errors"

// Domain errors - sentinel errors for the admin/control-plane surface.
// These are mapped to HTTP status codes in mapper_http.go; idempotency
// protocol errors have their own typed kinds in internal/idempotency/errors.go
// and bypass this mapping table entirely via *AppError (see ToHTTPError).
var (
	// ErrInvalidInput is returned when request validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when authentication is required but not provided.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller lacks permission for the requested operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInternal is returned for internal server errors that should not expose details.
	ErrInternal = errors.New("internal server error")
)
