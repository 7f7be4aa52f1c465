package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YaganovValera/quote-feed/internal/auth"
	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

func TestWSConfigDefaultsAndValidate(t *testing.T) {
	cases := []struct {
		name     string
		input    WSConfig
		wantErr  bool
		wantRead time.Duration
		wantPing time.Duration
	}{
		{"empty", WSConfig{}, true, 30 * time.Second, 10 * time.Second},
		{"ok", WSConfig{URL: "wss://api2.poloniex.com"}, false, 30 * time.Second, 10 * time.Second},
		{"custom", WSConfig{URL: "ws://x", ReadTimeout: 9 * time.Second, PingInterval: 2 * time.Second}, false, 9 * time.Second, 2 * time.Second},
		{"pingTooSlow", WSConfig{URL: "ws://x", ReadTimeout: time.Second, PingInterval: 2 * time.Second}, true, time.Second, 2 * time.Second},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := c.input
			cfg.ApplyDefaults()
			if cfg.ReadTimeout != c.wantRead {
				t.Errorf("ReadTimeout = %v; want %v", cfg.ReadTimeout, c.wantRead)
			}
			if cfg.PingInterval != c.wantPing {
				t.Errorf("PingInterval = %v; want %v", cfg.PingInterval, c.wantPing)
			}
			if err := cfg.Validate(); (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, c.wantErr)
			}
		})
	}
}

// Интеграционный тест: реальный WS-сервер принимает подписки, шлёт тикер
// и закрывает соединение.
func TestManager_WebSocketIntegration(t *testing.T) {
	subs := make(chan string, 4)
	upg := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for i := 0; i < len(testSymbols); i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				t.Errorf("read subscribe: %v", err)
				return
			}
			subs <- string(msg)
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[1010]`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`[1002, 9, [{"channel":"BTC_USDT","bid":"30000.1","ask":"30000.5"}]]`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// ждём ответный close
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	dialer, err := NewWSDialer(WSConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWSDialer: %v", err)
	}
	store := quote.NewStore([]string{"BTC_USDT", "ETH_USDT"})
	rec := &recorder{}
	m, err := New(Config{Symbols: testSymbols, Credentials: auth.Credentials{}}, Deps{
		Dialer:  dialer,
		Store:   store,
		Emitter: rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = m.Start(ctx)

	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr.Code != websocket.CloseNormalClosure {
		t.Fatalf("Start = %v; want peer close", err)
	}
	if got := <-subs; got != `{"command":"subscribe","channel":"BTC_USDT"}` {
		t.Errorf("first subscribe = %s", got)
	}
	if got := <-subs; got != `{"command":"subscribe","channel":"ETH_USDT"}` {
		t.Errorf("second subscribe = %s", got)
	}
	q, ok := store.Get("BTC_USDT")
	if !ok || q.Bid.String() != "30000.1" {
		t.Errorf("quote = %+v ok=%v", q, ok)
	}
	if n := len(rec.named(event.NameTicker)); n != 1 {
		t.Errorf("ticker events = %d", n)
	}
	if m.State() != StateClosed {
		t.Errorf("state = %s", m.State())
	}
}

func TestWSDialer_HandshakeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	d, err := NewWSDialer(WSConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")}, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWSDialer: %v", err)
	}
	if _, err := d.Dial(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("Dial = %v; want handshake error with status", err)
	}
}
