package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/alex-necsoiu/idempotency-shield/internal/events"
	"github.com/alex-necsoiu/idempotency-shield/internal/observability"
)

// EventPublisher optionally receives idempotency lifecycle events as the
// Coordinator replays, executes, and rejects requests. A nil EventPublisher
// (the Coordinator's default) makes publishing a no-op; it is independent of
// the Prometheus metrics recorded for the same transitions.
type EventPublisher interface {
	Publish(event *events.Event) error
}

// Coordinator drives the at-most-once execution protocol: body hashing,
// cache lookup, lock lifecycle, response hijack-capture-replay, and
// failure-mode handling, against a pluggable Store.
type Coordinator struct {
	store     Store
	opts      Options
	logger    *observability.Logger
	metrics   *Metrics
	publisher EventPublisher
}

// NewCoordinator builds a Coordinator bound to store, using opts for every
// request (policy is still resolved per-endpoint via Middleware).
func NewCoordinator(store Store, opts Options, logger *observability.Logger, metrics *Metrics) *Coordinator {
	return &Coordinator{store: store, opts: opts, logger: logger, metrics: metrics}
}

// WithEventPublisher attaches an EventPublisher for idempotency.replayed,
// idempotency.executed, and idempotency.conflict occurrences. Returns co so
// it can be chained onto NewCoordinator.
func (co *Coordinator) WithEventPublisher(publisher EventPublisher) *Coordinator {
	co.publisher = publisher
	return co
}

// publishEvent fires a lifecycle event in the background; publishing is
// best-effort observability and must never slow down or fail a request.
func (co *Coordinator) publishEvent(eventType events.EventType, key string, payload map[string]any) {
	if co.publisher == nil {
		return
	}
	evt := events.NewEvent(uuid.NewString(), eventType, key, time.Now().UTC(), payload)
	go func() {
		if err := co.publisher.Publish(evt); err != nil {
			co.logger.WithError(err).WithField("key", key).Warn("idempotency: failed to publish lifecycle event")
		}
	}()
}

// Middleware returns a gin.HandlerFunc that guards the route with policy.
// A nil policy disables idempotency for that route entirely (step 1).
func (co *Coordinator) Middleware(policy *EndpointPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if policy == nil {
			c.Next()
			return
		}
		co.handle(c, *policy)
	}
}

func (co *Coordinator) handle(c *gin.Context, policy EndpointPolicy) {
	ctx := c.Request.Context()

	// Step 2: key probe.
	key := c.GetHeader(co.opts.HeaderName)
	if isWhitespace(key) {
		c.Next()
		return
	}

	// Step 3: key validation.
	if co.opts.KeyValidator != nil {
		if err := co.opts.KeyValidator(key); err != nil {
			co.abortWithError(c, &KeyInvalidError{Key: key, Reason: err.Error()})
			return
		}
	}

	// Step 4: conditional body hashing.
	var requestHash string
	if policy.ValidatePayload {
		hash, err := co.hashBody(c)
		if err != nil {
			co.abortWithError(c, err)
			return
		}
		requestHash = hash
	}

	// Step 5: first cache probe.
	if record, done := co.probeAndMaybeReplay(c, key, requestHash, policy.ValidatePayload); done {
		if record != nil {
			co.metrics.observeCacheHit()
		}
		return
	}
	co.metrics.observeCacheMiss()

	// Step 6: lock acquisition.
	result, err := co.acquireLock(ctx, key)
	if err != nil {
		co.abortWithError(c, err)
		return
	}
	if !result.Acquired {
		if co.opts.WaitBudget <= 0 {
			co.metrics.observeLockContention()
			co.publishEvent(events.EventConflict, key, map[string]any{"reason": "lock_contention"})
			co.abortWithError(c, &ConcurrencyRejectedError{Key: key})
			return
		}
		co.publishEvent(events.EventConflict, key, map[string]any{"reason": "lock_timeout"})
		co.abortWithError(c, &LockTimeoutError{Key: key, WaitBudget: co.opts.WaitBudget})
		return
	}
	ownerID := result.Lock.OwnerID

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		releaseCtx := context.WithoutCancel(ctx)
		if err := co.releaseLock(releaseCtx, key, ownerID); err != nil {
			co.logger.WithError(err).WithField("key", key).Warn("idempotency: failed to release lock")
		}
	}
	defer release()

	// Step 7: double-checked cache probe, now that the lock is held.
	if record, done := co.probeAndMaybeReplay(c, key, requestHash, policy.ValidatePayload); done {
		if record != nil {
			co.metrics.observeCacheHit()
		}
		return
	}

	// Step 8: handler execution with response hijack.
	capture, restore := hijackResponse(c)
	func() {
		defer restore()
		start := time.Now()
		c.Next()
		co.metrics.observeHandlerDuration(time.Since(start))
	}()

	// Step 9: conditional cache write. The buffered response is only ever
	// copied to the real sink (capture.flush) after this decision is made,
	// so a FailSafe store error can still surface as a 5xx instead of the
	// handler's already-decided 2xx.
	status := capture.statusCode
	if status < http.StatusOK || status >= 300 {
		capture.flush()
		return
	}

	ttl := co.opts.resolveTTL(policy)
	record := &Record{
		StatusCode:  status,
		Headers:     filterHeaders(CloneHeaders(capture.Header()), co.opts.ExcludedHeaders),
		Body:        append([]byte(nil), capture.body.Bytes()...),
		CreatedAt:   time.Now().UTC(),
		PayloadHash: requestHash,
	}

	saveErr := withRetry(ctx, co.opts.retryPolicy(), func() error {
		return co.store.Save(ctx, key, record, ttl)
	})
	if saveErr != nil {
		co.logger.WithError(saveErr).WithField("key", key).Warn("idempotency: failed to cache response")
		co.metrics.observeStoreError("save")
		if co.opts.FailureMode == FailSafe {
			co.abortWithError(c, &StoreError{Op: "save", Key: key, Err: saveErr})
			return
		}
		capture.flush()
		return
	}
	capture.flush()
	co.publishEvent(events.EventExecuted, key, map[string]any{"status_code": status})
}

// probeAndMaybeReplay performs a Store.Get and, if a live Record exists,
// either replays it (aborting the chain) or aborts with 422 on a payload
// mismatch. done is true iff the request has already been fully handled and
// the caller must return without invoking c.Next().
func (co *Coordinator) probeAndMaybeReplay(c *gin.Context, key, requestHash string, validatePayload bool) (record *Record, done bool) {
	ctx := c.Request.Context()

	var rec *Record
	getErr := withRetry(ctx, co.opts.retryPolicy(), func() error {
		r, err := co.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				rec = nil
				return nil
			}
			return err
		}
		rec = r
		return nil
	})
	if getErr != nil {
		co.metrics.observeStoreError("get")
		if co.opts.FailureMode == FailOpen && !isCancellation(getErr) {
			// Fallback for get is "none": fall through to fresh execution.
			return nil, false
		}
		co.abortWithError(c, &StoreError{Op: "get", Key: key, Err: getErr})
		return nil, true
	}
	if rec == nil {
		return nil, false
	}

	if validatePayload && rec.PayloadHash != "" && rec.PayloadHash != requestHash {
		co.publishEvent(events.EventConflict, key, map[string]any{"reason": "payload_mismatch"})
		co.abortWithError(c, &PayloadMismatchError{Key: key})
		return rec, true
	}

	co.publishEvent(events.EventReplayed, key, map[string]any{"status_code": rec.StatusCode})
	replay(c, rec)
	c.Abort()
	return rec, true
}

func (co *Coordinator) acquireLock(ctx context.Context, key string) (AcquireResult, error) {
	var result AcquireResult
	err := withRetry(ctx, co.opts.retryPolicy(), func() error {
		r, err := co.store.TryAcquireLock(ctx, key, co.opts.LockTTL, co.opts.WaitBudget)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		co.metrics.observeStoreError("try_acquire_lock")
		if co.opts.FailureMode == FailOpen && !isCancellation(err) {
			return AcquireResult{Acquired: true}, nil
		}
		return AcquireResult{}, &StoreError{Op: "try_acquire_lock", Key: key, Err: err}
	}
	return result, nil
}

func (co *Coordinator) releaseLock(ctx context.Context, key, ownerID string) error {
	return withRetry(ctx, co.opts.retryPolicy(), func() error {
		return co.store.ReleaseLock(ctx, key, ownerID)
	})
}

// hashBody enforces max_body_size, then reads, hashes, and rewinds the
// request body so the handler still observes the full payload (step 4).
func (co *Coordinator) hashBody(c *gin.Context) (string, error) {
	if c.Request.ContentLength > co.opts.MaxBodySize {
		return "", &PayloadTooLargeError{Observed: c.Request.ContentLength, Limit: co.opts.MaxBodySize}
	}

	limited := io.LimitReader(c.Request.Body, co.opts.MaxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", &StoreError{Op: "read_body", Err: err}
	}
	if int64(len(body)) > co.opts.MaxBodySize {
		return "", &PayloadTooLargeError{Observed: int64(len(body)), Limit: co.opts.MaxBodySize}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return HashPayload(body), nil
}

// abortWithError maps err to its HTTP status and writes the standard error
// envelope, then aborts the gin chain so no downstream handler runs.
func (co *Coordinator) abortWithError(c *gin.Context, err error) {
	status, body := ToHTTPError(c.Request.Context(), err)
	c.AbortWithStatusJSON(status, body)
}
