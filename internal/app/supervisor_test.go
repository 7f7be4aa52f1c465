package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YaganovValera/quote-feed/internal/codec"
	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/internal/stream"
	"github.com/YaganovValera/quote-feed/pkg/backoff"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

type pipeConn struct {
	in        chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *pipeConn) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-c.in:
		if !ok {
			return nil, &websocket.CloseError{Code: websocket.CloseGoingAway, Text: "restart"}
		}
		return b, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *pipeConn) WriteFrame(context.Context, []byte) error { return nil }

func (c *pipeConn) Close(int, string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// seqDialer: nil в очереди означает ошибку dial.
type seqDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
	dials int
}

func (d *seqDialer) Dial(context.Context) (stream.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.conns) == 0 {
		return nil, errors.New("no more connections")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	if c == nil {
		return nil, errors.New("connection refused")
	}
	return c, nil
}

func fastBackoff() backoff.Config {
	return backoff.Config{
		InitialInterval:     time.Millisecond,
		RandomizationFactor: 0.1,
		Multiplier:          1,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSupervisor_ReconnectsAndKeepsStore(t *testing.T) {
	first, second := newPipeConn(), newPipeConn()
	d := &seqDialer{conns: []*pipeConn{nil, first, second}}
	store := quote.NewStore([]string{"BTC_USDT"})

	sup := NewSupervisor(SupervisorConfig{
		Stream:   stream.Config{Symbols: []codec.Symbol{{Name: "BTC_USDT", ID: 121}}},
		Backoff:  fastBackoff(),
		Cooldown: time.Millisecond,
	}, stream.Deps{
		Dialer:  d,
		Store:   store,
		Emitter: event.NewPublisher(logger.NewNop()),
		Log:     logger.NewNop(),
	})

	if err := sup.Ready(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Ready before start = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	first.in <- []byte(`[1002,null,[121,"1","2","0.5"]]`)
	waitFor(t, "first quote", func() bool {
		_, ok := store.Get("BTC_USDT")
		return ok
	})
	close(first.in)

	waitFor(t, "second connection", func() bool { return sup.Opens() == 2 })
	second.in <- []byte(`[1002,null,[121,"1","3","0.7"]]`)
	waitFor(t, "second quote", func() bool {
		q, _ := store.Get("BTC_USDT")
		return q.Bid.String() == "0.7"
	})
	if err := sup.Ready(); err != nil {
		t.Fatalf("Ready = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if d.dials != 3 {
		t.Errorf("dials = %d, want 3", d.dials)
	}
}

func TestSupervisor_GivesUp(t *testing.T) {
	d := &seqDialer{}
	sup := NewSupervisor(SupervisorConfig{
		Stream:  stream.Config{Symbols: []codec.Symbol{{Name: "BTC_USDT", ID: 121}}},
		Backoff: backoff.Config{InitialInterval: time.Millisecond, Multiplier: 1, MaxElapsedTime: 20 * time.Millisecond},
	}, stream.Deps{
		Dialer:  d,
		Store:   quote.NewStore([]string{"BTC_USDT"}),
		Emitter: event.NewPublisher(logger.NewNop()),
	})

	err := sup.Run(context.Background())
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("Run = %v, want ErrMaxRetries", err)
	}
	if sup.Opens() != 0 {
		t.Errorf("Opens = %d", sup.Opens())
	}
}

func TestSupervisor_InvalidConfigIsPermanent(t *testing.T) {
	d := &seqDialer{conns: []*pipeConn{newPipeConn()}}
	sup := NewSupervisor(SupervisorConfig{Backoff: fastBackoff()}, stream.Deps{
		Dialer:  d,
		Store:   quote.NewStore([]string{"BTC_USDT"}),
		Emitter: event.NewPublisher(logger.NewNop()),
	})
	if err := sup.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty symbol list")
	}
	if d.dials != 0 {
		t.Errorf("dials = %d, want 0", d.dials)
	}
}
