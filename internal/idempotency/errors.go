package idempotency

import (
	"fmt"
	"time"
)

// KeyInvalidError is raised when a configured KeyValidator rejects the
// caller-supplied idempotency key. The Coordinator responds 400 without
// touching the store or invoking the handler.
type KeyInvalidError struct {
	Key    string
	Reason string
}

func (e *KeyInvalidError) Error() string {
	return fmt.Sprintf("idempotency: invalid key %q: %s", e.Key, e.Reason)
}

// PayloadTooLargeError is raised from body hashing when the request's
// Content-Length exceeds the process-wide max_body_size.
type PayloadTooLargeError struct {
	Observed int64
	Limit    int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("idempotency: request body %d bytes exceeds limit %d bytes", e.Observed, e.Limit)
}

// PayloadMismatchError is raised when a request reuses a key already bound
// to a different payload hash. The Coordinator responds 422 without
// invoking the handler.
type PayloadMismatchError struct {
	Key string
}

func (e *PayloadMismatchError) Error() string {
	return fmt.Sprintf("idempotency: key %q reused with a different request payload", e.Key)
}

// ConcurrencyRejectedError is raised when the lock is contended and the
// caller configured a zero wait budget. The Coordinator responds 409.
type ConcurrencyRejectedError struct {
	Key string
}

func (e *ConcurrencyRejectedError) Error() string {
	return fmt.Sprintf("idempotency: key %q has a request already in flight", e.Key)
}

// LockTimeoutError is raised when the lock is contended and the configured
// wait budget elapses without acquisition.
type LockTimeoutError struct {
	Key        string
	WaitBudget time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("idempotency: timed out after %s waiting for lock on key %q", e.WaitBudget, e.Key)
}

// StoreError wraps a failure that the Coordinator surfaces to the client: a
// Store call that failed after retries in fail-safe mode or was cancelled,
// or a failed read of the request body. Op names the failed operation
// (get, save, try_acquire_lock, read_body).
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("idempotency: store operation %q failed for key %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
