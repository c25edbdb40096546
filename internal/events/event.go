package events

import "time"

// EventType names a point in the idempotency protocol worth recording for
// downstream consumers (analytics, alerting), distinct from the Prometheus
// metrics the Coordinator emits for operational monitoring.
type EventType string

const (
	// EventReplayed fires when a request was served from a cached Record
	// instead of invoking the handler.
	EventReplayed EventType = "idempotency.replayed"

	// EventExecuted fires when a request executed its handler fresh and the
	// response was cached.
	EventExecuted EventType = "idempotency.executed"

	// EventConflict fires when a request was rejected due to lock
	// contention or a payload-hash mismatch.
	EventConflict EventType = "idempotency.conflict"
)

// Event is a single idempotency lifecycle occurrence published to the event
// stream. Key identifies which idempotency key it concerns; Payload carries
// event-specific detail (e.g. the conflicting reason).
type Event struct {
	ID        string
	Type      EventType
	Key       string
	Timestamp time.Time
	Payload   map[string]any
}

// NewEvent builds an Event with the given type, key, and payload. ID and
// Timestamp are supplied by the caller so publisher tests can assert on
// deterministic values instead of wall-clock time.
func NewEvent(id string, eventType EventType, key string, timestamp time.Time, payload map[string]any) *Event {
	return &Event{ID: id, Type: eventType, Key: key, Timestamp: timestamp, Payload: payload}
}
