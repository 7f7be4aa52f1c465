package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/internal/stream"
	"github.com/YaganovValera/quote-feed/pkg/backoff"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

// ErrNotReady: нет подписанного соединения.
var ErrNotReady = errors.New("stream is not subscribed")

// SupervisorConfig: параметры переподключения.
type SupervisorConfig struct {
	Stream  stream.Config
	Backoff backoff.Config
	// Cooldown: пауза перед новым подключением после обрыва.
	Cooldown time.Duration
}

// Supervisor держит ровно одно живое соединение: Open под back-off,
// затем Run; после обрыва строит новый Manager с тем же Store.
type Supervisor struct {
	cfg   SupervisorConfig
	deps  stream.Deps
	log   *logger.Logger
	opens atomic.Int64
	cur   atomic.Pointer[stream.Manager]
}

func NewSupervisor(cfg SupervisorConfig, deps stream.Deps) *Supervisor {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Second
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	return &Supervisor{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log.Named("supervisor"),
	}
}

// Run блокирует до отмены ctx (возвращает nil) или до ошибки, после
// которой переподключение невозможно.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		m, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("supervisor: %w", err)
		}
		s.cur.Store(m)

		err = m.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		code, reason := m.CloseInfo()
		s.log.Warn("connection lost, reconnecting",
			zap.String("connection_id", m.ID()),
			zap.Int("code", code),
			zap.String("reason", reason),
			zap.Duration("cooldown", s.cfg.Cooldown),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Cooldown):
		}
	}
}

func (s *Supervisor) connect(ctx context.Context) (*stream.Manager, error) {
	var m *stream.Manager
	err := backoff.Execute(ctx, "ws_connect", s.cfg.Backoff, s.log, func(ctx context.Context) error {
		deps := s.deps
		deps.OnStateChange = s.observe
		mgr, err := stream.New(s.cfg.Stream, deps)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := mgr.Open(ctx); err != nil {
			return err
		}
		m = mgr
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.opens.Add(1)
	return m, nil
}

func (s *Supervisor) observe(from, to stream.State) {
	switch to {
	case stream.StateSubscribed:
		s.log.Info("stream subscribed", zap.Stringer("from", from))
	case stream.StateClosed:
		s.log.Debug("stream closed", zap.Stringer("from", from))
	}
}

// Ready: readiness-проба для /readyz.
func (s *Supervisor) Ready() error {
	m := s.cur.Load()
	if m == nil || !m.State().Active() {
		return ErrNotReady
	}
	return nil
}

// Opens: сколько соединений было успешно открыто.
func (s *Supervisor) Opens() int64 { return s.opens.Load() }
