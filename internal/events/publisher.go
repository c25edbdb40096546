// Package events publishes idempotency lifecycle occurrences to Redis
// Streams for downstream consumers, independent of the Prometheus metrics
// the Coordinator records for operational monitoring.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultStreamName is the Redis Stream idempotency lifecycle events are
	// published to.
	DefaultStreamName = "idempotency:events"
	// MaxStreamLength caps the stream size (approximate trimming).
	MaxStreamLength = 10000
)

// RedisEventPublisher publishes idempotency lifecycle events to Redis Streams.
type RedisEventPublisher struct {
	client     *redis.Client
	streamName string
	logger     *zap.Logger
}

// NewRedisEventPublisher creates a new Redis-based event publisher.
func NewRedisEventPublisher(client *redis.Client, logger *zap.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{
		client:     client,
		streamName: DefaultStreamName,
		logger:     logger,
	}
}

// WithStreamName sets a custom stream name.
func (p *RedisEventPublisher) WithStreamName(streamName string) *RedisEventPublisher {
	p.streamName = streamName
	return p
}

func (p *RedisEventPublisher) toStreamValues(event *Event) (map[string]interface{}, error) {
	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return map[string]interface{}{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"key":        event.Key,
		"timestamp":  event.Timestamp.Format(time.RFC3339Nano),
		"payload":    string(payloadJSON),
	}, nil
}

// Publish publishes a single event to Redis Streams.
func (p *RedisEventPublisher) Publish(event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	values, err := p.toStreamValues(event)
	if err != nil {
		p.logger.Error("failed to marshal idempotency event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.streamName,
		MaxLen: MaxStreamLength,
		Approx: true,
		Values: values,
	})

	if err := result.Err(); err != nil {
		p.logger.Error("failed to publish idempotency event to redis stream",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("stream", p.streamName),
			zap.Error(err))
		return fmt.Errorf("failed to publish event to redis: %w", err)
	}

	p.logger.Info("idempotency event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("key", event.Key),
		zap.String("stream", p.streamName),
		zap.String("stream_id", result.Val()))

	return nil
}

// PublishBatch publishes multiple events in a pipeline for better performance.
func (p *RedisEventPublisher) PublishBatch(events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pipe := p.client.Pipeline()

	for _, event := range events {
		if event == nil {
			p.logger.Warn("skipping nil event in batch")
			continue
		}

		values, err := p.toStreamValues(event)
		if err != nil {
			p.logger.Error("failed to marshal idempotency event in batch",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			return err
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.streamName,
			MaxLen: MaxStreamLength,
			Approx: true,
			Values: values,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Error("failed to publish batch idempotency events",
			zap.Int("batch_size", len(events)),
			zap.String("stream", p.streamName),
			zap.Error(err))
		return fmt.Errorf("failed to publish batch events: %w", err)
	}

	p.logger.Info("batch idempotency events published",
		zap.Int("batch_size", len(events)),
		zap.String("stream", p.streamName))

	return nil
}

// Close closes the Redis connection.
func (p *RedisEventPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
