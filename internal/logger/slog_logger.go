package logger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/tphakala/birdnotifier/internal/privacy"
)

// LevelTrace sits below slog's debug level
const LevelTrace = slog.Level(-8)

type traceIDContextKey struct{}

// WithTraceID returns a context carrying a trace id picked up by Logger.WithContext.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey{}, traceID)
}

// TraceIDFromContext returns the trace id stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(traceIDContextKey{}).(string)
	return id, ok && id != ""
}

// SlogLogger implements Logger on top of an slog.Handler
type SlogLogger struct {
	handler  slog.Handler
	level    slog.Leveler
	module   string
	fields   []Field
	flush    func() error
	levels   map[string]slog.Level // per-module overrides, shared and read-only
	timezone *time.Location
}

// NewSlogLogger creates a JSON logger writing to w, for tests and simple tools.
// A nil timezone means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, timezone *time.Location) *SlogLogger {
	if w == nil {
		w = io.Discard
	}
	if timezone == nil {
		timezone = time.UTC
	}
	lvl := parseSlogLevel(level)
	return &SlogLogger{
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: replaceAttr(timezone, true),
		}),
		level:    lvl,
		timezone: timezone,
	}
}

// Module returns a logger scoped to a module, nested modules are joined with dots
func (l *SlogLogger) Module(name string) Logger {
	module := name
	if l.module != "" {
		module = l.module + "." + name
	}
	child := l.clone()
	child.module = module
	if lvl, ok := l.levels[module]; ok {
		child.level = lvl
	}
	return child
}

func (l *SlogLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *SlogLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

// With returns a logger that adds fields to every record
func (l *SlogLogger) With(fields ...Field) Logger {
	child := l.clone()
	child.fields = append(child.fields, fields...)
	return child
}

// WithContext attaches the trace id carried by ctx, if any
func (l *SlogLogger) WithContext(ctx context.Context) Logger {
	traceID, ok := TraceIDFromContext(ctx)
	if !ok {
		return l
	}
	return l.With(String(traceIDKey, traceID))
}

// Log writes a record at the given level
func (l *SlogLogger) Log(level LogLevel, msg string, fields ...Field) {
	lvl := parseSlogLevel(level)
	if lvl < l.level.Level() {
		return
	}
	ctx := context.Background()
	if !l.handler.Enabled(ctx, lvl) {
		return
	}

	record := slog.NewRecord(time.Now(), lvl, msg, 0)
	if l.module != "" {
		record.AddAttrs(slog.String(moduleKey, l.module))
	}
	for _, f := range l.fields {
		record.AddAttrs(fieldToAttr(f))
	}
	for _, f := range fields {
		record.AddAttrs(fieldToAttr(f))
	}
	_ = l.handler.Handle(ctx, record)
}

// Flush writes buffered output, a no-op for unbuffered loggers
func (l *SlogLogger) Flush() error {
	if l.flush == nil {
		return nil
	}
	return l.flush()
}

func (l *SlogLogger) clone() *SlogLogger {
	child := *l
	child.fields = append([]Field(nil), l.fields...)
	return &child
}

// fieldToAttr converts a Field to an slog.Attr, redacting string values of secret keys
func fieldToAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case nil:
		return slog.Any(f.Key, nil)
	case string:
		if privacy.IsSensitiveKey(f.Key) {
			return slog.String(f.Key, privacy.Redacted)
		}
		if f.Key == errorKey {
			return slog.String(f.Key, privacy.ScrubMessage(v))
		}
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, v)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Duration:
		return slog.String(f.Key, v.String())
	case time.Time:
		return slog.Time(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}

// parseSlogLevel maps a LogLevel to an slog.Level, unknown values mean info
func parseSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelTrace:
		return LevelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn, "warning":
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// replaceAttr renders times in the configured zone and names the trace level.
// Console output drops the time key entirely when withTime is false.
func replaceAttr(tz *time.Location, withTime bool) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if !withTime {
				return slog.Attr{}
			}
			if t, ok := a.Value.Any().(time.Time); ok {
				return slog.Time(slog.TimeKey, t.In(tz))
			}
		case slog.LevelKey:
			if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		}
		return a
	}
}
