package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when no live Record exists for a key.
// Stores may instead return (nil, nil); the Coordinator treats both as "no
// cached record", but ErrNotFound is the preferred, explicit signal.
var ErrNotFound = errors.New("idempotency: record not found")

// Lock is the ephemeral exclusion marker a Store installs on behalf of a
// request about to invoke a handler for a given key.
type Lock struct {
	Key string

	// OwnerID is a per-acquisition unique token. Only the holder presenting
	// the matching OwnerID may release the lock.
	OwnerID string

	// ExpiresAt is strictly in the future at the moment of acquisition and
	// bounds how long a crashed holder can wedge the key.
	ExpiresAt time.Time
}

// AcquireResult is the outcome of Store.TryAcquireLock.
type AcquireResult struct {
	// Acquired reports whether the caller now holds the lock.
	Acquired bool

	// Lock is populated iff Acquired is true; Lock.OwnerID must be threaded
	// to the matching ReleaseLock call.
	Lock Lock
}

//go:generate mockgen -source=internal/idempotency/store.go -destination=internal/idempotency/mocks/store_mock.go -package=mocks

// Store is the backend-agnostic contract the Coordinator drives: get, save,
// try-acquire-lock, release-lock. All operations are cancellable and must be
// safe for concurrent use across goroutines and, for persistent backends,
// across processes.
type Store interface {
	// Get returns the live Record for key, or ErrNotFound if absent or
	// expired. Expired entries MAY be purged lazily as a side effect.
	Get(ctx context.Context, key string) (*Record, error)

	// Save upserts record under key with the given TTL. If a prior Record
	// exists, its CreatedAt is preserved and every other field, including
	// ExpiresAt recomputed as now+ttl, is overwritten. A subsequent Get
	// from any process must observe the new Record once Save returns.
	// RedisStore does not preserve CreatedAt: it stores the CreatedAt it is
	// given (see RedisStore.Save).
	Save(ctx context.Context, key string, record *Record, ttl time.Duration) error

	// TryAcquireLock attempts to install a Lock for key with the given TTL,
	// waiting up to waitBudget for a contended lock to free up (waitBudget
	// of zero means a single non-blocking attempt). An expired lock may be
	// taken over atomically, producing a fresh OwnerID.
	TryAcquireLock(ctx context.Context, key string, lockTTL, waitBudget time.Duration) (AcquireResult, error)

	// ReleaseLock deletes the Lock entry for key iff its current OwnerID
	// equals ownerID. A mismatch or absent lock is a no-op, not an error.
	ReleaseLock(ctx context.Context, key, ownerID string) error
}
