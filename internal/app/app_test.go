package app

import (
	"errors"
	"testing"
	"time"

	"github.com/YaganovValera/quote-feed/internal/config"
	"github.com/YaganovValera/quote-feed/pkg/httpserver"
)

func TestSupervisorConfig_FromExchange(t *testing.T) {
	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Exchange.ReconnectCooldown = 3 * time.Second

	sc := supervisorConfig(cfg.Exchange)
	if sc.Cooldown != 3*time.Second {
		t.Errorf("cooldown = %v; want 3s", sc.Cooldown)
	}
	if sc.Stream.Exchange != "poloniex" || len(sc.Stream.Symbols) != 2 || sc.Stream.Symbols[0].ID != 121 {
		t.Errorf("stream config = %+v", sc.Stream)
	}
	if sc.Backoff != cfg.Exchange.Backoff {
		t.Errorf("backoff = %+v", sc.Backoff)
	}
}

func TestAllReady(t *testing.T) {
	down := errors.New("redis down")
	cases := []struct {
		name   string
		checks []httpserver.ReadyChecker
		want   error
	}{
		{"none", nil, nil},
		{"allOK", []httpserver.ReadyChecker{func() error { return nil }, func() error { return nil }}, nil},
		{"firstFailureWins", []httpserver.ReadyChecker{func() error { return ErrNotReady }, func() error { return down }}, ErrNotReady},
		{"laterFailure", []httpserver.ReadyChecker{func() error { return nil }, func() error { return down }}, down},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := allReady(tc.checks)(); !errors.Is(err, tc.want) {
				t.Errorf("allReady = %v; want %v", err, tc.want)
			}
		})
	}
}
