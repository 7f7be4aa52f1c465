// pkg/logger/logger.go
package logger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	traceIDKey    contextKey = "trace_id"
	connectionKey contextKey = "connection_id"
	requestKey    contextKey = "request_id"
)

// Config описывает, как инициализировать zap-логгер.
// Level: "debug" | "info" | "warn" | "error" (по умолчанию "info").
// DevMode: true → консольный вывод, иначе JSON с семплингом.
type Config struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c Config) validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", c.Level, err)
	}
	return nil
}

// Logger: тонкая обёртка над *zap.Logger.
type Logger struct {
	raw *zap.Logger
}

// New создаёт Logger по заданному Config.
func New(cfg Config) (*Logger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zapCfg := buildZapConfig(cfg.DevMode)
	if err := setZapLevel(&zapCfg, cfg.Level); err != nil {
		return nil, err
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	return &Logger{raw: zl}, nil
}

// NewNop возвращает логгер, который ничего не пишет. Удобно в тестах.
func NewNop() *Logger { return &Logger{raw: zap.NewNop()} }

// FromZap оборачивает готовый *zap.Logger (например, observer в тестах).
func FromZap(zl *zap.Logger) *Logger { return &Logger{raw: zl} }

// Sync сбрасывает буферы (ошибки игнорируются).
func (l *Logger) Sync() { _ = l.raw.Sync() }

// Named создаёт sub-logger с префиксом.
func (l *Logger) Named(name string) *Logger {
	return &Logger{raw: l.raw.Named(name)}
}

// With добавляет постоянные поля.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{raw: l.raw.With(fields...)}
}

// WithContext добавляет trace_id (из активного span'а или контекста),
// connection_id и request_id, если они есть.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make([]zap.Field, 0, 3)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String(string(traceIDKey), sc.TraceID().String()))
	} else if v, ok := ctx.Value(traceIDKey).(string); ok {
		fields = append(fields, zap.String(string(traceIDKey), v))
	}
	if v, ok := ctx.Value(connectionKey).(string); ok {
		fields = append(fields, zap.String(string(connectionKey), v))
	}
	if v, ok := ctx.Value(requestKey).(string); ok {
		fields = append(fields, zap.String(string(requestKey), v))
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{raw: l.raw.With(fields...)}
}

// Sugar возвращает SugaredLogger для printf-стиля.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.raw.Sugar() }

// Zap отдаёт исходный *zap.Logger.
func (l *Logger) Zap() *zap.Logger { return l.raw }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.raw.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.raw.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.raw.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.raw.Error(msg, fields...) }

// ContextWithTraceID возвращает контекст с явным trace-ID.
func ContextWithTraceID(ctx context.Context, tid string) context.Context {
	return context.WithValue(ctx, traceIDKey, tid)
}

// ContextWithConnectionID помечает контекст идентификатором WS-соединения.
func ContextWithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connectionKey, id)
}

// ContextWithRequestID помечает контекст идентификатором HTTP-запроса.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey, id)
}

// RequestIDFromContext возвращает request_id, если он задан.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestKey).(string)
	return v, ok
}
