package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupTestPublisher(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisEventPublisher) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	publisher := NewRedisEventPublisher(client, zaptest.NewLogger(t))
	return mr, client, publisher
}

func TestNewRedisEventPublisher(t *testing.T) {
	_, client, publisher := setupTestPublisher(t)
	assert.NotNil(t, publisher)
	assert.Equal(t, DefaultStreamName, publisher.streamName)
	assert.Equal(t, client, publisher.client)
}

func TestWithStreamName(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)
	publisher = publisher.WithStreamName("custom:stream")
	assert.Equal(t, "custom:stream", publisher.streamName)
}

func TestPublish_Success(t *testing.T) {
	_, client, publisher := setupTestPublisher(t)
	ctx := context.Background()

	event := NewEvent("evt-1", EventExecuted, "key-1", time.Now().UTC(), map[string]any{
		"status_code": float64(201),
	})

	require.NoError(t, publisher.Publish(event))

	messages, err := client.XRange(ctx, DefaultStreamName, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "evt-1", msg.Values["event_id"])
	assert.Equal(t, string(EventExecuted), msg.Values["event_type"])
	assert.Equal(t, "key-1", msg.Values["key"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Values["payload"].(string)), &payload))
	assert.Equal(t, float64(201), payload["status_code"])
}

func TestPublish_NilEvent(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)
	err := publisher.Publish(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event cannot be nil")
}

func TestPublish_InvalidPayload(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)

	event := &Event{
		ID:        "evt-1",
		Type:      EventExecuted,
		Key:       "key-1",
		Timestamp: time.Now(),
		Payload:   map[string]any{"invalid": make(chan int)},
	}

	err := publisher.Publish(event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal event payload")
}

func TestPublish_RedisConnectionError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	defer client.Close()

	publisher := NewRedisEventPublisher(client, zaptest.NewLogger(t))
	event := NewEvent("evt-1", EventConflict, "key-1", time.Now(), map[string]any{"reason": "locked"})

	err := publisher.Publish(event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish event to redis")
}

func TestPublishBatch_Success(t *testing.T) {
	_, client, publisher := setupTestPublisher(t)
	ctx := context.Background()

	events := []*Event{
		NewEvent("evt-1", EventExecuted, "key-1", time.Now(), map[string]any{"status_code": float64(200)}),
		NewEvent("evt-2", EventReplayed, "key-2", time.Now(), map[string]any{"status_code": float64(200)}),
	}

	require.NoError(t, publisher.PublishBatch(events))

	length, err := client.XLen(ctx, DefaultStreamName).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestPublishBatch_EmptyBatch(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)
	assert.NoError(t, publisher.PublishBatch(nil))
}

func TestPublishBatch_SkipsNilEvent(t *testing.T) {
	_, client, publisher := setupTestPublisher(t)
	ctx := context.Background()

	events := []*Event{
		NewEvent("evt-1", EventExecuted, "key-1", time.Now(), map[string]any{}),
		nil,
		NewEvent("evt-2", EventExecuted, "key-2", time.Now(), map[string]any{}),
	}

	require.NoError(t, publisher.PublishBatch(events))

	length, err := client.XLen(ctx, DefaultStreamName).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestPublishBatch_MarshalError(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)

	events := []*Event{{
		ID:      "evt-1",
		Type:    EventExecuted,
		Key:     "key-1",
		Payload: map[string]any{"invalid": make(chan int)},
	}}

	err := publisher.PublishBatch(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to marshal event payload")
}

func TestPublishBatch_RedisError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	defer client.Close()

	publisher := NewRedisEventPublisher(client, zaptest.NewLogger(t))
	events := []*Event{NewEvent("evt-1", EventExecuted, "key-1", time.Now(), map[string]any{})}

	err := publisher.PublishBatch(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish batch events")
}

func TestClose(t *testing.T) {
	_, _, publisher := setupTestPublisher(t)
	assert.NoError(t, publisher.Close())
}

func TestClose_NilClient(t *testing.T) {
	publisher := &RedisEventPublisher{logger: zaptest.NewLogger(t)}
	assert.NoError(t, publisher.Close())
}

func TestNewEvent(t *testing.T) {
	ts := time.Now()
	event := NewEvent("evt-1", EventExecuted, "key-1", ts, map[string]any{"a": 1})
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, EventExecuted, event.Type)
	assert.Equal(t, "key-1", event.Key)
	assert.Equal(t, ts, event.Timestamp)
	assert.Equal(t, map[string]any{"a": 1}, event.Payload)
}

func TestStreamConstants(t *testing.T) {
	assert.Equal(t, "idempotency:events", DefaultStreamName)
	assert.Equal(t, int64(10000), int64(MaxStreamLength))
}
