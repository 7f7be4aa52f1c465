// Package app собирает сервис: поток котировок, sink'и, HTTP и телеметрию.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YaganovValera/quote-feed/internal/config"
	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/metrics"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/internal/sink"
	"github.com/YaganovValera/quote-feed/internal/sink/kafkasink"
	"github.com/YaganovValera/quote-feed/internal/sink/redissink"
	"github.com/YaganovValera/quote-feed/internal/stream"
	"github.com/YaganovValera/quote-feed/pkg/httpserver"
	"github.com/YaganovValera/quote-feed/pkg/kafka"
	"github.com/YaganovValera/quote-feed/pkg/logger"
	"github.com/YaganovValera/quote-feed/pkg/redis"
	"github.com/YaganovValera/quote-feed/pkg/telemetry"
)

const quotesPath = "/quotes"

// Run блокирует до отмены ctx или фатальной ошибки.
func Run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	metrics.Register(nil)

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	}
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownSafe(ctx, "telemetry", func() error { return shutdownTracer(context.Background()) }, log)

	store := quote.NewStore(cfg.Exchange.SymbolNames())
	pub := event.NewPublisher(log)
	checks := []httpserver.ReadyChecker{}
	var quoteOpts []quote.HandlerOption

	g, ctx := errgroup.WithContext(ctx)

	// 1) Kafka sink
	if cfg.Kafka.Enabled {
		prod, err := kafka.NewProducer(ctx, cfg.Kafka.Config, log)
		if err != nil {
			return fmt.Errorf("kafka producer init: %w", err)
		}
		defer shutdownSafe(ctx, "kafka-producer", prod.Close, log)

		ks := sink.NewAsync("kafka-sink", kafkasink.New(prod, cfg.Kafka.Topic, log), cfg.Kafka.QueueSize, log)
		pub.Subscribe(ks)
		g.Go(func() error { return ks.Run(ctx) })
		checks = append(checks, func() error { return prod.Ping(ctx) })
	}

	// 2) Redis sink
	if cfg.Redis.Enabled {
		rs, err := redis.New(ctx, cfg.Redis.Config, log)
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer shutdownSafe(ctx, "redis", rs.Close, log)

		mirror := redissink.New(rs, cfg.Redis.KeyPrefix, log)
		as := sink.NewAsync("redis-sink", mirror, cfg.Redis.QueueSize, log)
		pub.Subscribe(as)
		g.Go(func() error { return as.Run(ctx) })
		checks = append(checks, func() error { return rs.Ping(ctx) })
		// после рестарта /quotes отдаёт зеркало, пока не пришёл свежий тикер
		quoteOpts = append(quoteOpts, quote.WithFallback(mirror.Fallback(cfg.Exchange.Name)))
	}

	// 3) Поток котировок
	dialer, err := stream.NewWSDialer(cfg.Exchange.WSConfig, log)
	if err != nil {
		return fmt.Errorf("ws dialer init: %w", err)
	}
	sup := NewSupervisor(supervisorConfig(cfg.Exchange), stream.Deps{
		Dialer:    dialer,
		Store:     store,
		Emitter:   pub,
		Log:       log,
		Throttler: rate.NewLimiter(rate.Limit(cfg.REST.RatePerSecond), cfg.REST.Burst),
	})
	checks = append([]httpserver.ReadyChecker{sup.Ready}, checks...)

	// 4) HTTP
	httpSrv, err := httpserver.New(cfg.HTTP, allReady(checks), log,
		httpserver.WithHandler(quotesPath, quote.Handler(store, quoteOpts...)),
	)
	if err != nil {
		return fmt.Errorf("httpserver init: %w", err)
	}

	g.Go(func() error { return httpSrv.Start(ctx) })
	g.Go(func() error { return sup.Run(ctx) })

	log.Info("quote feed started",
		zap.String("exchange", cfg.Exchange.Name),
		zap.Strings("symbols", cfg.Exchange.SymbolNames()),
		zap.Bool("auth", cfg.Exchange.Credentials.Present()),
		zap.Bool("kafka", cfg.Kafka.Enabled),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("quote feed stopped")
	return nil
}

func supervisorConfig(e config.ExchangeConfig) SupervisorConfig {
	return SupervisorConfig{
		Stream: stream.Config{
			Exchange:    e.Name,
			Symbols:     e.CodecSymbols(),
			Credentials: e.Credentials,
			BufferSize:  e.BufferSize,
		},
		Backoff:  e.Backoff,
		Cooldown: e.ReconnectCooldown,
	}
}

func allReady(checks []httpserver.ReadyChecker) httpserver.ReadyChecker {
	return func() error {
		for _, c := range checks {
			if err := c(); err != nil {
				return err
			}
		}
		return nil
	}
}

// shutdownSafe оборачивает вызов Close()/Shutdown() с логированием.
func shutdownSafe(ctx context.Context, name string, fn func() error, log *logger.Logger) {
	if err := fn(); err != nil {
		log.WithContext(ctx).Error(name+": shutdown error", zap.Error(err))
		return
	}
	log.WithContext(ctx).Info(name + ": shutdown complete")
}
