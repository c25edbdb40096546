package idempotency

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/alex-necsoiu/idempotency-shield/internal/errors"
)

// ToHTTPError maps an idempotency error kind to an HTTP status code and the
// project's standard ErrorResponse envelope, the same shape
// apperrors.ToHTTPError produces for domain errors elsewhere in this
// service.
func ToHTTPError(ctx context.Context, err error) (int, apperrors.ErrorResponse) {
	var (
		keyInvalid  *KeyInvalidError
		tooLarge    *PayloadTooLargeError
		mismatch    *PayloadMismatchError
		rejected    *ConcurrencyRejectedError
		lockTimeout *LockTimeoutError
		storeErr    *StoreError
	)

	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &keyInvalid):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_KEY_INVALID", keyInvalid.Error(), http.StatusBadRequest)

	case errors.As(err, &tooLarge):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_PAYLOAD_TOO_LARGE", tooLarge.Error(), http.StatusRequestEntityTooLarge)

	case errors.As(err, &mismatch):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_PAYLOAD_MISMATCH", "different request payload for this idempotency key", http.StatusUnprocessableEntity)

	case errors.As(err, &rejected):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_CONCURRENT_REQUEST", rejected.Error(), http.StatusConflict)

	case errors.As(err, &lockTimeout):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_LOCK_TIMEOUT", lockTimeout.Error(), http.StatusServiceUnavailable)

	case errors.As(err, &storeErr):
		appErr = apperrors.NewAppError(ctx, "IDEMPOTENCY_STORE_ERROR", "idempotency store is unavailable", http.StatusInternalServerError)

	default:
		appErr = apperrors.NewAppError(ctx, "INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
	}

	return apperrors.ToHTTPError(ctx, appErr)
}
