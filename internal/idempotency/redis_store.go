package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisRecordPrefix and redisLockPrefix namespace the two keyed collections
// within a single Redis keyspace.
const (
	redisRecordPrefix = "cache:"
	redisLockPrefix   = "lock:"
)

// redisRecord is the JSON wire shape for a Record in Redis. http.Header
// doesn't round-trip through encoding/json the way a plain map does when the
// zero value is nil, so it is carried as a plain map of slices.
type redisRecord struct {
	StatusCode  int                 `json:"status_code"`
	Headers     map[string][]string `json:"headers"`
	Body        []byte              `json:"body"`
	CreatedAt   time.Time           `json:"created_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
	PayloadHash string              `json:"payload_hash"`
}

func toRedisRecord(r *Record) redisRecord {
	return redisRecord{
		StatusCode:  r.StatusCode,
		Headers:     map[string][]string(r.Headers),
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
		PayloadHash: r.PayloadHash,
	}
}

func (rr redisRecord) toRecord() *Record {
	return &Record{
		StatusCode:  rr.StatusCode,
		Headers:     http.Header(rr.Headers),
		Body:        rr.Body,
		CreatedAt:   rr.CreatedAt,
		ExpiresAt:   rr.ExpiresAt,
		PayloadHash: rr.PayloadHash,
	}
}

// releaseScript deletes the lock key iff its value equals the caller's
// owner token. A bare DEL cannot check ownership atomically: it would let
// an expired holder's late release clear a lock a new owner has since
// taken over.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is the atomic-KV realization of the Store contract: SET NX PX
// for lock acquisition, a scripted compare-and-delete for release, and SET
// with TTL for Records. Safe for concurrent use across any number of
// processes sharing the same Redis instance.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client. The caller owns the
// client's lifecycle (Close).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the live Record for key, or ErrNotFound if absent or expired.
// Redis's own TTL eviction means an "expired but present" state never
// happens here; a miss is always redis.Nil.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	data, err := s.client.Get(ctx, redisRecordPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: redis get failed: %w", err)
	}

	var rr redisRecord
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("idempotency: redis record decode failed: %w", err)
	}
	return rr.toRecord(), nil
}

// Save upserts record under key with TTL. The store always writes whatever
// CreatedAt it is given; along the Coordinator's call path a Save only
// happens when no live Record exists for the key, so first-write time is
// what lands here in practice.
func (s *RedisStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	data, err := json.Marshal(toRedisRecord(record))
	if err != nil {
		return fmt.Errorf("idempotency: redis record encode failed: %w", err)
	}
	if err := s.client.Set(ctx, redisRecordPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: redis save failed: %w", err)
	}
	return nil
}

// TryAcquireLock installs "lock:"+key via SET NX PX, busy-waiting with
// [15,50]ms random backoff while waitBudget allows. An expired lock is
// already gone from Redis's perspective by the time a contender observes
// it, so "takeover" here is simply a second successful SETNX; no special
// case is needed, unlike the Postgres realization.
func (s *RedisStore) TryAcquireLock(ctx context.Context, key string, lockTTL, waitBudget time.Duration) (AcquireResult, error) {
	lockKey := redisLockPrefix + key
	ownerID := uuid.NewString()
	deadline := time.Now().Add(waitBudget)

	for {
		ok, err := s.client.SetNX(ctx, lockKey, ownerID, lockTTL).Result()
		if err != nil {
			return AcquireResult{}, fmt.Errorf("idempotency: redis lock acquire failed: %w", err)
		}
		if ok {
			return AcquireResult{
				Acquired: true,
				Lock:     Lock{Key: key, OwnerID: ownerID, ExpiresAt: time.Now().Add(lockTTL)},
			}, nil
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

// ReleaseLock runs the compare-and-delete script so only the matching
// owner can clear the lock; a mismatch or absent key is a no-op.
func (s *RedisStore) ReleaseLock(ctx context.Context, key, ownerID string) error {
	err := releaseScript.Run(ctx, s.client, []string{redisLockPrefix + key}, ownerID).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("idempotency: redis lock release failed: %w", err)
	}
	return nil
}

// Ping checks Redis reachability.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
