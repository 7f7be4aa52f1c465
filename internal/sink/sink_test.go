package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

type fakeWriter struct {
	mu      sync.Mutex
	symbols []string
	fail    bool
}

func (w *fakeWriter) Write(ctx context.Context, t event.Ticker) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.symbols = append(w.symbols, t.Symbol)
	if w.fail {
		return errors.New("down")
	}
	return nil
}

func (w *fakeWriter) written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.symbols...)
}

func TestAsync_WritesInOrder(t *testing.T) {
	w := &fakeWriter{}
	a := NewAsync("test", w, 8, logger.NewNop())
	ctx := context.Background()

	for _, s := range []string{"A", "B", "C"} {
		if err := a.OnEvent(ctx, event.NameTicker, event.Ticker{Symbol: s}); err != nil {
			t.Fatalf("OnEvent: %v", err)
		}
	}
	// не тикеры игнорируются
	if err := a.OnEvent(ctx, event.NameConnectionOpen, event.Connection{}); err != nil {
		t.Fatalf("OnEvent(connection.open): %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	deadline := time.After(2 * time.Second)
	for len(w.written()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("written = %v", w.written())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := w.written()
	if len(got) != 3 || got[0] != "A" || got[1] != "B" || got[2] != "C" {
		t.Errorf("written = %v", got)
	}
}

func TestAsync_QueueFullDropsQuietly(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	a := NewAsync("test-full", &fakeWriter{}, 1, log)
	pub := event.NewPublisher(log)
	pub.Subscribe(a)

	ctx := context.Background()
	for _, sym := range []string{"A", "B", "C"} {
		pub.Emit(ctx, event.NameTicker, event.Ticker{Symbol: sym})
	}

	if n := logs.FilterMessage("queue full, ticker dropped").Len(); n != 2 {
		t.Errorf("dropped = %d; want 2", n)
	}
	for _, e := range logs.All() {
		if e.Level >= zap.InfoLevel {
			t.Errorf("unexpected %s log: %q", e.Level, e.Message)
		}
	}
	if err := a.OnEvent(ctx, event.NameTicker, event.Ticker{Symbol: "D"}); err != nil {
		t.Errorf("OnEvent on full queue = %v; want nil", err)
	}
}

func TestAsync_BadPayload(t *testing.T) {
	a := NewAsync("test", &fakeWriter{}, 1, logger.NewNop())
	if err := a.OnEvent(context.Background(), event.NameTicker, "oops"); err == nil {
		t.Fatal("expected error for wrong payload type")
	}
}

func TestAsync_DrainsOnShutdown(t *testing.T) {
	w := &fakeWriter{fail: true}
	a := NewAsync("test", w, 4, logger.NewNop())
	for _, s := range []string{"A", "B"} {
		_ = a.OnEvent(context.Background(), event.NameTicker, event.Ticker{Symbol: s})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// ошибки записи не останавливают воркер
	if got := w.written(); len(got) != 2 {
		t.Errorf("written = %v", got)
	}
}
