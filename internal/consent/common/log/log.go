package log

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global Logger = newZapLogger(false, zapcore.InfoLevel)

// SetLogger replaces the global logger instance.
func SetLogger(l Logger) {
	global = l
}

// GetLogger returns the current global logger instance.
func GetLogger() Logger {
	return global
}

// Logger is the structured logging interface used across cookiegate.
// Fields are attached as key/value pairs; msg is a short snake_case event name.
type Logger interface {
	Info(fields map[string]any, msg string)
	Error(fields map[string]any, msg string)
	Debug(fields map[string]any, msg string)
	Warn(fields map[string]any, msg string)
	Panic(fields map[string]any, msg string)
	Fatal(fields map[string]any, msg string)
}

// Configure sets up the global logger for env ("dev" or "prod") and level.
func Configure(env, level string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	global = newZapLogger(env != "prod", lvl)
	return nil
}

// Info logs at info level using the global logger.
func Info(fields map[string]any, msg string) { global.Info(fields, msg) }

// Error logs at error level using the global logger.
func Error(fields map[string]any, msg string) { global.Error(fields, msg) }

// Debug logs at debug level using the global logger.
func Debug(fields map[string]any, msg string) { global.Debug(fields, msg) }

// Warn logs at warn level using the global logger.
func Warn(fields map[string]any, msg string) { global.Warn(fields, msg) }

// Panic logs at panic level using the global logger.
func Panic(fields map[string]any, msg string) { global.Panic(fields, msg) }

// Fatal logs at fatal level using the global logger.
func Fatal(fields map[string]any, msg string) { global.Fatal(fields, msg) }

// FieldComponent names the subsystem a child logger belongs to.
const FieldComponent = "component"

// With returns a child of l that adds fields to every entry. Loggers that
// bind fields natively, like the zap logger, are asked to; any other Logger
// is wrapped and has the fields merged into each call.
func With(l Logger, fields map[string]any) Logger {
	if l == nil {
		l = global
	}
	if len(fields) == 0 {
		return l
	}
	if b, ok := l.(interface {
		With(map[string]any) Logger
	}); ok {
		return b.With(fields)
	}
	return &childLogger{parent: l, fields: copyFields(nil, fields)}
}

// Component is With(l, {"component": name}).
func Component(l Logger, name string) Logger {
	return With(l, map[string]any{FieldComponent: name})
}

type childLogger struct {
	parent Logger
	fields map[string]any
}

func (c *childLogger) merge(fields map[string]any) map[string]any {
	return copyFields(copyFields(nil, c.fields), fields)
}

func (c *childLogger) With(fields map[string]any) Logger {
	return &childLogger{parent: c.parent, fields: c.merge(fields)}
}

func (c *childLogger) Info(f map[string]any, msg string)  { c.parent.Info(c.merge(f), msg) }
func (c *childLogger) Error(f map[string]any, msg string) { c.parent.Error(c.merge(f), msg) }
func (c *childLogger) Debug(f map[string]any, msg string) { c.parent.Debug(c.merge(f), msg) }
func (c *childLogger) Warn(f map[string]any, msg string)  { c.parent.Warn(c.merge(f), msg) }
func (c *childLogger) Panic(f map[string]any, msg string) { c.parent.Panic(c.merge(f), msg) }
func (c *childLogger) Fatal(f map[string]any, msg string) { c.parent.Fatal(c.merge(f), msg) }

func copyFields(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

type zapLogger struct {
	base *zap.Logger
}

// With binds fields on the underlying zap logger.
func (l *zapLogger) With(fields map[string]any) Logger {
	return &zapLogger{base: l.base.With(zapFields(fields)...)}
}

// newZapLogger builds a console logger for development or a JSON logger for production.
func newZapLogger(dev bool, level zapcore.Level) Logger {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.LevelKey = "level"

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &zapLogger{base: logger}
}

func (l *zapLogger) Info(fields map[string]any, msg string) {
	l.base.Info(msg, zapFields(fields)...)
}

func (l *zapLogger) Error(fields map[string]any, msg string) {
	l.base.Error(msg, zapFields(fields)...)
}

func (l *zapLogger) Debug(fields map[string]any, msg string) {
	l.base.Debug(msg, zapFields(fields)...)
}

func (l *zapLogger) Warn(fields map[string]any, msg string) {
	l.base.Warn(msg, zapFields(fields)...)
}

func (l *zapLogger) Panic(fields map[string]any, msg string) {
	l.base.Panic(msg, zapFields(fields)...)
}

func (l *zapLogger) Fatal(fields map[string]any, msg string) {
	l.base.Fatal(msg, zapFields(fields)...)
}

// zapFields converts the field map to zap fields sorted by key, so that
// console output stays stable between runs.
func zapFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := m[k].(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, m[k]))
	}
	return fields
}

type noopLogger struct{}

func (noopLogger) Info(map[string]any, string)  {}
func (noopLogger) Error(map[string]any, string) {}
func (noopLogger) Debug(map[string]any, string) {}
func (noopLogger) Warn(map[string]any, string)  {}
func (noopLogger) Panic(map[string]any, string) {}
func (noopLogger) Fatal(map[string]any, string) {}

func (n noopLogger) With(map[string]any) Logger { return n }

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}
