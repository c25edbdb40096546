// Package logger is a small zerolog construction helper shared by
// middleware that is not wired to the service-scoped
// observability.Logger, plus trace-ID enrichment for correlating log
// lines with OpenTelemetry spans.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var globalLogger = New("dev")

// New builds a zerolog logger for env: pretty console output at debug
// level in dev, JSON elsewhere with the level tightening as the
// environment gets closer to production.
func New(env string) zerolog.Logger {
	return NewWithWriter(env, nil)
}

// NewWithWriter is New with an explicit writer (nil means stdout); tests
// pass a buffer here.
func NewWithWriter(env string, writer io.Writer) zerolog.Logger {
	if writer == nil {
		writer = os.Stdout
	}

	var sink io.Writer = writer
	level := zerolog.InfoLevel
	switch env {
	case "dev", "development":
		sink = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	case "prod", "production":
		level = zerolog.WarnLevel
	}

	return zerolog.New(sink).Level(level).With().Timestamp().Logger()
}

// WithTrace returns logger with the current span's trace_id attached, so a
// log line can be joined to its distributed trace. A context without a
// recording span leaves the logger unchanged.
func WithTrace(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return logger
	}
	traceID := span.SpanContext().TraceID()
	if !traceID.IsValid() {
		return logger
	}
	return logger.With().Str("trace_id", traceID.String()).Logger()
}

// GetLogger returns the process-wide logger.
func GetLogger() zerolog.Logger {
	return globalLogger
}

// SetLogger replaces the process-wide logger, typically at startup once
// the environment is known.
func SetLogger(logger zerolog.Logger) {
	globalLogger = logger
}
