// Package observability provides the structured logging, tracing, and
// metrics plumbing for the idempotency-shield service.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper around zerolog.Logger that carries the service
// name on every line and redacts sensitive fields before they are emitted.
type Logger struct {
	logger  zerolog.Logger
	service string
}

// NewLogger builds a logger for the given environment (dev, sandbox, audit,
// prod) writing to stdout. Dev gets colored console output at debug level;
// every other environment emits JSON for log aggregation.
func NewLogger(env, serviceName string) *Logger {
	return NewLoggerWithWriter(env, serviceName, os.Stdout)
}

// NewLoggerWithWriter is NewLogger with an explicit writer, which tests use
// to capture output.
func NewLoggerWithWriter(env, serviceName string, w io.Writer) *Logger {
	var sink io.Writer = w
	if env == "dev" {
		sink = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(sink).
		Level(levelFor(env)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	return &Logger{logger: zl, service: serviceName}
}

func levelFor(env string) zerolog.Level {
	switch env {
	case "dev":
		return zerolog.DebugLevel
	case "prod":
		return zerolog.WarnLevel
	default:
		// sandbox, audit, and anything unrecognized
		return zerolog.InfoLevel
	}
}

func (l *Logger) child(zl zerolog.Logger) *Logger {
	return &Logger{logger: zl, service: l.service}
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Info logs at info level.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Error logs at error level.
func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

// Fatal logs at fatal level and exits the process.
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// WithField returns a derived logger carrying one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.child(l.logger.With().Interface(key, value).Logger())
}

// WithFields returns a derived logger carrying the given fields, run
// through SanitizeFields first so secrets never reach the sink.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.logger.With()
	for k, v := range SanitizeFields(fields) {
		ctx = ctx.Interface(k, v)
	}
	return l.child(ctx.Logger())
}

// WithError returns a derived logger carrying err under the standard
// "error" key.
func (l *Logger) WithError(err error) *Logger {
	return l.child(l.logger.With().Err(err).Logger())
}

// sensitiveKeySubstrings flags a field for redaction when its lowercased
// name contains any of these. The list is matched by substring so
// "db_password" and "redisPassword" are both caught. A bare "key" entry is
// deliberately absent: idempotency keys are this service's primary
// identifier and must stay loggable.
var sensitiveKeySubstrings = []string{
	"password", "passwd", "pwd",
	"secret", "api_key", "apikey",
	"token", "access_token", "refresh_token",
	"jwt", "bearer",
	"authorization", "auth",
	"credit_card", "cvv", "ssn",
	"private_key",
}

// SanitizeFields returns a copy of fields with any sensitive-looking value
// replaced by "[REDACTED]".
func SanitizeFields(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for name, value := range fields {
		lower := strings.ToLower(name)
		out[name] = value
		for _, needle := range sensitiveKeySubstrings {
			if strings.Contains(lower, needle) {
				out[name] = "[REDACTED]"
				break
			}
		}
	}
	return out
}

// AuditLogger emits security-relevant events, such as rejected admin
// authentication attempts, in a uniform structured shape.
type AuditLogger struct {
	logger *Logger
}

// NewAuditLogger wraps logger for audit output.
func NewAuditLogger(logger *Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogEvent records an audit event. eventType is a semantic identifier such
// as "admin.auth_rejected" or "idempotency.key_expired"; data is sanitized
// before logging.
func (a *AuditLogger) LogEvent(eventType string, data map[string]interface{}) {
	fields := map[string]interface{}{
		"audit": "audit",
		"event": eventType,
	}
	for k, v := range SanitizeFields(data) {
		fields[k] = v
	}
	a.logger.WithFields(fields).Info("audit event")
}

// LogSecurityEvent records a security event with a severity attached.
func (a *AuditLogger) LogSecurityEvent(eventType, severity string, data map[string]interface{}) {
	fields := map[string]interface{}{
		"security_event": eventType,
		"severity":       severity,
	}
	for k, v := range data {
		fields[k] = v
	}
	a.LogEvent("security.event", fields)
}
