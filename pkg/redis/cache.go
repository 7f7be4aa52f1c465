package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/pkg/backoff"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

var (
	redisMetrics = struct {
		GetErrors        prometheus.Counter
		SetErrors        prometheus.Counter
		DeleteErrors     prometheus.Counter
		OperationLatency *prometheus.HistogramVec
	}{
		GetErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "redis", Name: "get_errors_total",
			Help: "Total number of errors on Redis GET",
		}),
		SetErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "redis", Name: "set_errors_total",
			Help: "Total number of errors on Redis SET",
		}),
		DeleteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "redis", Name: "delete_errors_total",
			Help: "Total number of errors on Redis DEL",
		}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quotefeed", Subsystem: "redis", Name: "operation_latency_seconds",
			Help:    "Latency of Redis operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	tracer = otel.Tracer("redis-storage")
)

// ErrNotFound возвращается, если ключ отсутствует.
var ErrNotFound = errors.New("redis: key not found")

// Config хранит параметры подключения к Redis.
type Config struct {
	URL     string         `mapstructure:"url"` // e.g. "redis://host:6379/0"
	TTL     time.Duration  `mapstructure:"ttl"` // default: 10m
	Backoff backoff.Config `mapstructure:"backoff"`
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.Backoff.MaxElapsedTime <= 0 {
		c.Backoff.MaxElapsedTime = 10 * time.Second
	}
}

// Validate проверяет обязательные поля и формат URL.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("redis: URL required")
	}
	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("redis: parse URL: %w", err)
	}
	return c.Backoff.Validate()
}

// redisStorage: реализация Storage через go-redis/v9.
type redisStorage struct {
	client     *redis.Client
	ttl        time.Duration
	log        *logger.Logger
	backoffCfg backoff.Config
}

// New создаёт Storage и проверяет соединение с retry.
func New(ctx context.Context, cfg Config, log *logger.Logger) (Storage, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.Named("redis")

	opts, _ := redis.ParseURL(cfg.URL)
	client := redis.NewClient(opts)

	ctxConn, span := tracer.Start(ctx, "Connect", trace.WithAttributes(attribute.String("addr", opts.Addr)))
	defer span.End()
	op := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := backoff.Execute(ctxConn, "redis_connect", cfg.Backoff, log, op); err != nil {
		span.RecordError(err)
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	log.Info("connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))

	return &redisStorage{
		client:     client,
		ttl:        cfg.TTL,
		log:        log,
		backoffCfg: cfg.Backoff,
	}, nil
}

func (r *redisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	ctxOp, span := tracer.Start(ctx, "Get", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()
	start := time.Now()

	var data []byte
	op := func(ctx context.Context) error {
		val, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return backoff.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		data = val
		return nil
	}
	if err := backoff.Execute(ctxOp, "redis_get", r.backoffCfg, r.log, op); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		redisMetrics.GetErrors.Inc()
		r.log.WithContext(ctx).Error("redis GET failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return nil, err
	}
	redisMetrics.OperationLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())
	return data, nil
}

func (r *redisStorage) Set(ctx context.Context, key string, value []byte) error {
	ctxOp, span := tracer.Start(ctx, "Set", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()
	start := time.Now()

	op := func(ctx context.Context) error {
		return r.client.Set(ctx, key, value, r.ttl).Err()
	}
	if err := backoff.Execute(ctxOp, "redis_set", r.backoffCfg, r.log, op); err != nil {
		redisMetrics.SetErrors.Inc()
		r.log.WithContext(ctx).Error("redis SET failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return err
	}
	redisMetrics.OperationLatency.WithLabelValues("set").Observe(time.Since(start).Seconds())
	return nil
}

func (r *redisStorage) Delete(ctx context.Context, key string) error {
	ctxOp, span := tracer.Start(ctx, "Delete", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()
	start := time.Now()

	op := func(ctx context.Context) error {
		return r.client.Del(ctx, key).Err()
	}
	if err := backoff.Execute(ctxOp, "redis_delete", r.backoffCfg, r.log, op); err != nil {
		redisMetrics.DeleteErrors.Inc()
		r.log.WithContext(ctx).Error("redis DEL failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		return err
	}
	redisMetrics.OperationLatency.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	return nil
}

func (r *redisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisStorage) Close() error {
	return r.client.Close()
}
