package idempotency

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
)

// DefaultSweepInterval is the default cadence of the background expiry
// sweeper.
const DefaultSweepInterval = time.Hour

// Sweeper periodically reclaims space used by expired Records and Locks on
// a persistent backend. It is pure space reclamation: correctness of the
// protocol never depends on it running, since every read already treats an
// expired entry as absent.
type Sweeper struct {
	tick   func(ctx context.Context) error
	logger *observability.Logger

	interval time.Duration
	stop     chan struct{}
}

// NewPostgresSweeper issues `DELETE ... WHERE expires_at < now()` against
// both tables on each tick.
func NewPostgresSweeper(pool *pgxpool.Pool, interval time.Duration, logger *observability.Logger) *Sweeper {
	tick := func(ctx context.Context) error {
		if _, err := pool.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at < now()`); err != nil {
			return err
		}
		_, err := pool.Exec(ctx, `DELETE FROM idempotency_locks WHERE expires_at < now()`)
		return err
	}
	return newSweeper(tick, interval, logger)
}

// NewRedisSweeper is a no-op tick kept for symmetry with the Postgres
// sweeper: Redis's own key TTLs already reclaim expired Records and Locks,
// so there is nothing for this tick to delete, but it still logs so
// operators see the same heartbeat regardless of which backend is active.
func NewRedisSweeper(interval time.Duration, logger *observability.Logger) *Sweeper {
	return newSweeper(func(ctx context.Context) error { return nil }, interval, logger)
}

func newSweeper(tick func(ctx context.Context) error, interval time.Duration, logger *observability.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{tick: tick, logger: logger, interval: interval, stop: make(chan struct{})}
}

// Run blocks, firing tick on every interval until ctx is cancelled or Stop
// is called. Failures are logged and retried on the next tick, never fatal.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.WithError(err).Warn("idempotency: sweep tick failed")
				continue
			}
			s.logger.Debug("idempotency: sweep tick completed")
		}
	}
}

// Stop ends a running Run loop.
func (s *Sweeper) Stop() {
	close(s.stop)
}
