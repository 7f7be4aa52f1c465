// pkg/logger/logger_test.go
package logger_test

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/quote-feed/pkg/logger"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := logger.New(logger.Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNew_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		if _, err := logger.New(logger.Config{Level: lvl, DevMode: true}); err != nil {
			t.Errorf("level %q: unexpected error %v", lvl, err)
		}
	}
}

func TestWithContext_AddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := logger.FromZap(zap.New(core))

	ctx := logger.ContextWithTraceID(context.Background(), "trace-123")
	ctx = logger.ContextWithConnectionID(ctx, "conn-1")
	ctx = logger.ContextWithRequestID(ctx, "req-7")
	l.WithContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != "trace-123" {
		t.Errorf("trace_id = %v", fields["trace_id"])
	}
	if fields["connection_id"] != "conn-1" {
		t.Errorf("connection_id = %v", fields["connection_id"])
	}
	if fields["request_id"] != "req-7" {
		t.Errorf("request_id = %v", fields["request_id"])
	}
}

func TestWithContext_NoFieldsReturnsSame(t *testing.T) {
	l := logger.NewNop()
	if got := l.WithContext(context.Background()); got != l {
		t.Error("expected the same logger when context carries no fields")
	}
}

func TestSync_NoPanic(t *testing.T) {
	l, _ := logger.New(logger.Config{Level: "info", DevMode: true})
	l.Sync()
}
