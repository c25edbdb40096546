package idempotency

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// EndpointPolicy is supplied per-route by the hosting router. A nil policy
// means idempotency is disabled for that route: the Coordinator passes
// through to the handler untouched.
type EndpointPolicy struct {
	// ExpiryMinutes overrides the process-wide default TTL for records
	// written by this endpoint. Zero means "use the process default".
	ExpiryMinutes int

	// ValidatePayload enables SHA-256 body-hash binding for this endpoint.
	ValidatePayload bool
}

// DefaultEndpointPolicy mirrors the source's per-endpoint defaults:
// validate_payload on, a 60-minute expiry.
func DefaultEndpointPolicy() EndpointPolicy {
	return EndpointPolicy{ExpiryMinutes: 60, ValidatePayload: true}
}

// KeyValidator optionally rejects a caller-supplied idempotency key before
// any store access. A non-nil error aborts the request with 400.
type KeyValidator func(key string) error

// ValidateKeyLength is a stock KeyValidator bounding keys at MaxKeyLength
// bytes, for deployments whose persistent backend cannot take arbitrarily
// long keys. Not installed by default.
func ValidateKeyLength(key string) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("idempotency key exceeds %d bytes", MaxKeyLength)
	}
	return nil
}

// Options are the process-wide settings shared by every endpoint the
// Coordinator guards.
type Options struct {
	// HeaderName is the HTTP header carrying the idempotency key.
	HeaderName string

	// DefaultExpiryMinutes is used when an endpoint's policy specifies 0.
	DefaultExpiryMinutes int

	// LockTTL bounds how long a stuck lock can wedge a key; it must exceed
	// the longest expected handler latency, or a slow handler may have its
	// lock taken over mid-flight.
	LockTTL time.Duration

	// WaitBudget is how long a contender retries lock acquisition before
	// giving up. Zero means a single non-blocking attempt.
	WaitBudget time.Duration

	// MaxBodySize upper-bounds the hashable request body; requests whose
	// Content-Length exceeds this fail before any store call.
	MaxBodySize int64

	// ExcludedHeaders are never persisted in a Record or replayed, even if
	// present on a fresh 2xx response. Matched case-insensitively.
	ExcludedHeaders map[string]struct{}

	// KeyValidator, if set, rejects malformed keys with 400.
	KeyValidator KeyValidator

	// FailureMode controls what happens when a store call exhausts its
	// retries: FailSafe propagates the error, FailOpen degrades gracefully.
	FailureMode FailureMode

	// StorageRetryCount / StorageRetryDelay configure the store-call retry
	// wrapper.
	StorageRetryCount int
	StorageRetryDelay time.Duration
}

// DefaultExcludedHeaders is the header set never cached or replayed,
// regardless of what the handler sets: hop-by-hop headers, Date (which
// would be stale on replay), Set-Cookie (session-scoped), and Authorization
// (credential leakage across requesters sharing a key).
func DefaultExcludedHeaders() map[string]struct{} {
	names := []string{
		"Transfer-Encoding", "Connection", "Keep-Alive",
		"Upgrade", "Date", "Set-Cookie", "Authorization",
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[http.CanonicalHeaderKey(n)] = struct{}{}
	}
	return set
}

// DefaultOptions mirrors the source's process-wide defaults from the
// external-interfaces table: Idempotency-Key header, 60 minute default
// expiry, 30s lock TTL, no wait budget, 10 MiB body cap, fail-safe mode, no
// retries with a 200ms delay if retries are enabled later.
func DefaultOptions() Options {
	return Options{
		HeaderName:            "Idempotency-Key",
		DefaultExpiryMinutes:  60,
		LockTTL:               30 * time.Second,
		WaitBudget:            0,
		MaxBodySize:           10 * 1024 * 1024,
		ExcludedHeaders:       DefaultExcludedHeaders(),
		FailureMode:           FailSafe,
		StorageRetryCount:     0,
		StorageRetryDelay:     200 * time.Millisecond,
	}
}

func (o Options) isExcluded(header string) bool {
	_, ok := o.ExcludedHeaders[http.CanonicalHeaderKey(header)]
	return ok
}

func (o Options) resolveTTL(policy EndpointPolicy) time.Duration {
	minutes := policy.ExpiryMinutes
	if minutes <= 0 {
		minutes = o.DefaultExpiryMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (o Options) retryPolicy() retryPolicy {
	return retryPolicy{mode: o.FailureMode, count: o.StorageRetryCount, delay: o.StorageRetryDelay}
}

// filterHeaders returns a copy of h with every name in excluded removed,
// matched case-insensitively. A persisted Record never contains an excluded
// header.
func filterHeaders(h http.Header, excluded map[string]struct{}) http.Header {
	out := make(http.Header, len(h))
	for name, values := range h {
		if _, skip := excluded[http.CanonicalHeaderKey(name)]; skip {
			continue
		}
		cp := make([]string, len(values))
		copy(cp, values)
		out[name] = cp
	}
	return out
}

// isWhitespace reports whether s is empty or contains only whitespace,
// treated the same as an absent idempotency key header.
func isWhitespace(s string) bool {
	return strings.TrimSpace(s) == ""
}
