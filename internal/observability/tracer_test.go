package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func disabledConfig() TracerConfig {
	return TracerConfig{
		ServiceName:    "idempotency-shield-test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		Enabled:        false,
	}
}

func TestNewTracerProviderDisabled(t *testing.T) {
	ctx := context.Background()

	tp, err := NewTracerProvider(ctx, disabledConfig())
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NotNil(t, tp.Tracer())

	require.NoError(t, tp.Shutdown(ctx))
	// Shutdown is idempotent.
	require.NoError(t, tp.Shutdown(ctx))
}

func TestSpansReachExporter(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	tracer := otel.Tracer(TracerName)
	_, span := tracer.Start(ctx, "coordinator.replay")
	span.SetAttributes(attribute.String("idempotency.key", "abc"))
	span.End()

	require.NoError(t, provider.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "coordinator.replay", spans[0].Name)

	var found bool
	for _, attr := range spans[0].Attributes {
		if attr.Key == "idempotency.key" && attr.Value.AsString() == "abc" {
			found = true
		}
	}
	assert.True(t, found)

	require.NoError(t, provider.Shutdown(ctx))
}

func TestForceFlushDeliversBatchedSpans(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	tp := &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}
	for i := 0; i < 3; i++ {
		_, span := tp.Tracer().Start(ctx, "buffered-span")
		span.End()
	}

	require.NoError(t, tp.ForceFlush(ctx))
	assert.Len(t, exporter.GetSpans(), 3)
	require.NoError(t, tp.Shutdown(ctx))
}

func TestForceFlushExpiredContext(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	tp := &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}

	expired, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Error(t, tp.ForceFlush(expired))
	require.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{"clamp high", 1.5, sdktrace.AlwaysSample()},
		{"exactly one", 1.0, sdktrace.AlwaysSample()},
		{"clamp low", -0.1, sdktrace.NeverSample()},
		{"zero", 0.0, sdktrace.NeverSample()},
		{"ratio", 0.5, sdktrace.TraceIDRatioBased(0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Description(), samplerFor(tt.rate).Description())
		})
	}
}

func TestTracerNameConstant(t *testing.T) {
	assert.Equal(t, "github.com/alex-necsoiu/idempotency-shield", TracerName)
}
