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
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxIface is the narrow slice of pgxpool.Pool the store depends on, so a
// unit test can substitute an in-memory fake without a live database.
type pgxIface interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// pgconnCommandTag mirrors pgconn.CommandTag's RowsAffected method without
// importing pgconn directly, so a fake pgxIface in tests can return a
// trivial local type instead of constructing a real pgconn.CommandTag.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// poolAdapter satisfies pgxIface against a real *pgxpool.Pool.
type poolAdapter struct{ pool *pgxpool.Pool }

func (a poolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.pool.QueryRow(ctx, sql, args...)
}

func (a poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	tag, err := a.pool.Exec(ctx, sql, args...)
	return tag, err
}

func (a poolAdapter) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return a.pool.BeginTx(ctx, txOptions)
}

// PostgresStore is the relational realization of the Store contract: two
// tables (idempotency_records, idempotency_locks), an upsert that preserves
// created_at, and lock acquisition serialized through a SERIALIZABLE
// transaction running a read-decide-write-recheck sequence.
//
// Schema (see migrations/0001_idempotency.sql for the DDL):
//
//	idempotency_records(key PK, status_code, headers_json, body, created_at, expires_at, payload_hash)
//	idempotency_locks(key PK, owner_id, expires_at)
type PostgresStore struct {
	db pgxIface
}

// NewPostgresStore wraps an existing pgxpool.Pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: poolAdapter{pool: pool}}
}

// newPostgresStoreWithDB is the test seam: any pgxIface, typically a hand
// rolled fake pool, stands in for a live database.
func newPostgresStoreWithDB(db pgxIface) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the live Record for key. A row whose expires_at has already
// passed is treated as absent: a stale row is never trusted even before the
// sweeper reaps it.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	var (
		statusCode  int
		headersJSON []byte
		body        []byte
		createdAt   time.Time
		expiresAt   time.Time
		payloadHash string
	)

	row := s.db.QueryRow(ctx, `
		SELECT status_code, headers_json, body, created_at, expires_at, payload_hash
		FROM idempotency_records
		WHERE key = $1
	`, key)

	err := row.Scan(&statusCode, &headersJSON, &body, &createdAt, &expiresAt, &payloadHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: postgres get failed: %w", err)
	}

	if !time.Now().Before(expiresAt) {
		return nil, ErrNotFound
	}

	var headers map[string][]string
	if len(headersJSON) > 0 {
		if err := json.Unmarshal(headersJSON, &headers); err != nil {
			return nil, fmt.Errorf("idempotency: postgres headers decode failed: %w", err)
		}
	}

	return &Record{
		StatusCode:  statusCode,
		Headers:     http.Header(headers),
		Body:        body,
		CreatedAt:   createdAt.UTC(),
		ExpiresAt:   expiresAt.UTC(),
		PayloadHash: payloadHash,
	}, nil
}

// Save upserts record under key, preserving created_at on conflict: the
// ON CONFLICT DO UPDATE clause simply omits created_at from its SET list so
// Postgres leaves the existing column untouched.
func (s *PostgresStore) Save(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	headersJSON, err := json.Marshal(map[string][]string(record.Headers))
	if err != nil {
		return fmt.Errorf("idempotency: postgres headers encode failed: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	expiresAt := time.Now().UTC().Add(ttl)

	_, err = s.db.Exec(ctx, `
		INSERT INTO idempotency_records (key, status_code, headers_json, body, created_at, expires_at, payload_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			status_code  = EXCLUDED.status_code,
			headers_json = EXCLUDED.headers_json,
			body         = EXCLUDED.body,
			expires_at   = EXCLUDED.expires_at,
			payload_hash = EXCLUDED.payload_hash
	`, key, record.StatusCode, headersJSON, record.Body, createdAt, expiresAt, record.PayloadHash)
	if err != nil {
		return fmt.Errorf("idempotency: postgres save failed: %w", err)
	}
	return nil
}

// TryAcquireLock executes a read-decide-write-recheck sequence inside a
// SERIALIZABLE transaction, retrying on contention loss with the standard
// [15,50]ms backoff until waitBudget is exhausted.
func (s *PostgresStore) TryAcquireLock(ctx context.Context, key string, lockTTL, waitBudget time.Duration) (AcquireResult, error) {
	deadline := time.Now().Add(waitBudget)

	for {
		result, contended, err := s.tryAcquireOnce(ctx, key, lockTTL)
		if err == nil {
			if result.Acquired || !contended {
				return result, nil
			}
		} else if !isContentionError(err) {
			return AcquireResult{}, err
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

// tryAcquireOnce runs a single attempt of the transactional protocol.
// contended is true when the caller should back off and retry rather than
// treat the outcome as final.
func (s *PostgresStore) tryAcquireOnce(ctx context.Context, key string, lockTTL time.Duration) (result AcquireResult, contended bool, err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return AcquireResult{}, false, fmt.Errorf("idempotency: postgres lock tx begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()

	var existingExpiresAt time.Time
	row := tx.QueryRow(ctx, `SELECT expires_at FROM idempotency_locks WHERE key = $1 FOR UPDATE`, key)
	scanErr := row.Scan(&existingExpiresAt)

	switch {
	case errors.Is(scanErr, pgx.ErrNoRows):
		// no row; insert fresh below
	case scanErr != nil:
		return AcquireResult{}, false, fmt.Errorf("idempotency: postgres lock select failed: %w", scanErr)
	case existingExpiresAt.After(now):
		// live lock held by someone else
		return AcquireResult{Acquired: false}, true, nil
	}
	// An expired row and an absent row both take the upsert path: takeover
	// overwrites the stale owner, insert claims the free slot.

	ownerID := uuid.NewString()
	newExpiresAt := now.Add(lockTTL)
	_, err = tx.Exec(ctx, `
		INSERT INTO idempotency_locks (key, owner_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET owner_id = EXCLUDED.owner_id, expires_at = EXCLUDED.expires_at
		WHERE idempotency_locks.expires_at <= $4
	`, key, ownerID, newExpiresAt, now)
	if err != nil {
		return AcquireResult{}, true, fmt.Errorf("idempotency: postgres lock upsert failed: %w", err)
	}

	// Safety re-check: another contender may have finished and written a
	// live Record while we were racing for the lock. Dropping the lock here
	// lets the caller's next cache probe replay that record.
	var recordExpiresAt time.Time
	row = tx.QueryRow(ctx, `SELECT expires_at FROM idempotency_records WHERE key = $1`, key)
	recErr := row.Scan(&recordExpiresAt)
	if recErr == nil && recordExpiresAt.After(now) {
		return AcquireResult{Acquired: false}, false, tx.Rollback(ctx)
	}
	if recErr != nil && !errors.Is(recErr, pgx.ErrNoRows) {
		return AcquireResult{}, false, fmt.Errorf("idempotency: postgres lock recheck failed: %w", recErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return AcquireResult{}, true, fmt.Errorf("idempotency: postgres lock commit failed: %w", err)
	}

	return AcquireResult{
		Acquired: true,
		Lock:     Lock{Key: key, OwnerID: ownerID, ExpiresAt: newExpiresAt},
	}, false, nil
}

// isContentionError reports whether err represents a lost race for the
// lock row (serialization failure, unique-violation on insert) rather than
// a genuine failure.
func isContentionError(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "40001", // serialization_failure
			"23505": // unique_violation
			return true
		}
	}
	return false
}

// ReleaseLock deletes the lock row iff the caller's owner token matches,
// a single conditional statement with no read-modify-write.
func (s *PostgresStore) ReleaseLock(ctx context.Context, key, ownerID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_locks WHERE key = $1 AND owner_id = $2`, key, ownerID)
	if err != nil {
		return fmt.Errorf("idempotency: postgres lock release failed: %w", err)
	}
	return nil
}
