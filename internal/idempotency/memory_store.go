package idempotency

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pollMinDelay and pollMaxDelay bound the random backoff between lock
// acquisition attempts. The range is deliberately narrow to avoid
// thundering-herd synchronization among contenders; do not widen it.
const (
	pollMinDelay = 15 * time.Millisecond
	pollMaxDelay = 50 * time.Millisecond
)

type recordEntry struct {
	record    *Record
	expiresAt time.Time
}

// keySemaphore is a one-permit mutual exclusion primitive for a single key,
// tracked alongside the identity of its current holder so ReleaseLock can
// enforce ownership even though a single process never actually contends
// with itself over OwnerID.
type keySemaphore struct {
	permit chan struct{}

	mu      sync.Mutex
	ownerID string
}

func newKeySemaphore() *keySemaphore {
	s := &keySemaphore{permit: make(chan struct{}, 1)}
	s.permit <- struct{}{}
	return s
}

// MemoryStore is the single-process Store realization: a concurrent map for
// Records and a concurrent map of per-key semaphores for Locks. lock_ttl is
// accepted for interface compatibility but ignored: process liveness
// implies lock liveness, so no TTL-based takeover is needed. A best-effort
// sweep reaps semaphores whose key has no live Record and no current holder,
// so long-lived processes don't accumulate one semaphore per key forever.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]recordEntry
	locks   sync.Map // string -> *keySemaphore

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its background sweep. Call
// Close to stop the sweep goroutine.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		records:       make(map[string]recordEntry),
		sweepInterval: time.Hour,
		stop:          make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired Records and reaps lock semaphores that have no live
// Record and no current holder. It never blocks waiting for a held lock.
func (s *MemoryStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	for key, entry := range s.records {
		if now.After(entry.expiresAt) {
			delete(s.records, key)
		}
	}
	s.mu.Unlock()

	s.locks.Range(func(k, v any) bool {
		key := k.(string)
		sem := v.(*keySemaphore)

		s.mu.RLock()
		_, hasRecord := s.records[key]
		s.mu.RUnlock()
		if hasRecord {
			return true
		}

		select {
		case <-sem.permit:
			sem.permit <- struct{}{}
			s.locks.Delete(key)
		default:
			// currently held; leave it alone
		}
		return true
	})
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Get returns the live Record for key, or ErrNotFound if absent or expired.
// An expired entry is purged as a side effect of being observed.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.records[key]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.records, key)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return entry.record, nil
}

// Save upserts record under key, preserving CreatedAt on update.
func (s *MemoryStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.records[key]; ok {
		record.CreatedAt = prior.record.CreatedAt
	} else if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.ExpiresAt = now.Add(ttl)

	s.records[key] = recordEntry{record: record, expiresAt: record.ExpiresAt}
	return nil
}

func (s *MemoryStore) semaphoreFor(key string) *keySemaphore {
	v, _ := s.locks.LoadOrStore(key, newKeySemaphore())
	return v.(*keySemaphore)
}

// TryAcquireLock attempts to take the permit for key, polling with bounded
// random backoff until acquired or waitBudget is exhausted. lockTTL is
// accepted but unused by this backend.
func (s *MemoryStore) TryAcquireLock(ctx context.Context, key string, lockTTL, waitBudget time.Duration) (AcquireResult, error) {
	sem := s.semaphoreFor(key)
	ownerID := uuid.NewString()
	deadline := time.Now().Add(waitBudget)

	for {
		select {
		case <-sem.permit:
			sem.mu.Lock()
			sem.ownerID = ownerID
			sem.mu.Unlock()
			return AcquireResult{
				Acquired: true,
				Lock:     Lock{Key: key, OwnerID: ownerID, ExpiresAt: time.Now().Add(lockTTL)},
			}, nil
		default:
		}

		if waitBudget <= 0 || time.Now().After(deadline) {
			return AcquireResult{Acquired: false}, nil
		}

		delay := pollMinDelay + time.Duration(rand.Int63n(int64(pollMaxDelay-pollMinDelay)))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return AcquireResult{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// ReleaseLock returns the permit for key iff ownerID matches the current
// holder. Any mismatch, including "nobody holds it", is a silent no-op.
func (s *MemoryStore) ReleaseLock(ctx context.Context, key, ownerID string) error {
	v, ok := s.locks.Load(key)
	if !ok {
		return nil
	}
	sem := v.(*keySemaphore)

	sem.mu.Lock()
	defer sem.mu.Unlock()
	if sem.ownerID != ownerID {
		return nil
	}
	sem.ownerID = ""
	select {
	case sem.permit <- struct{}{}:
	default:
		// already released (double release is a no-op)
	}
	return nil
}
