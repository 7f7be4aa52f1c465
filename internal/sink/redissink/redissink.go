// Package redissink зеркалит последнюю котировку каждого символа в Redis.
package redissink

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/pkg/logger"
	"github.com/YaganovValera/quote-feed/pkg/redis"
)

// Sink реализует sink.Writer поверх redis.Storage.
type Sink struct {
	store  redis.Storage
	prefix string
	log    *logger.Logger
}

// New создаёт Redis sink; ключи имеют вид <prefix><exchange>:<symbol>.
func New(store redis.Storage, prefix string, log *logger.Logger) *Sink {
	return &Sink{store: store, prefix: prefix, log: log.Named("redis-sink")}
}

// Key возвращает ключ котировки.
func (s *Sink) Key(exchange, symbol string) string {
	return s.prefix + exchange + ":" + symbol
}

// Write перезаписывает котировку символа; TTL задаётся хранилищем.
func (s *Sink) Write(ctx context.Context, t event.Ticker) error {
	key := s.Key(t.Exchange, t.Symbol)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("key", key))

	b, err := json.Marshal(t.Quote)
	if err != nil {
		return fmt.Errorf("redis-sink: marshal: %w", err)
	}
	if err := s.store.Set(ctx, key, b); err != nil {
		return fmt.Errorf("redis-sink: set %s: %w", key, err)
	}
	return nil
}

// Lookup читает котировку, записанную Write.
func (s *Sink) Lookup(ctx context.Context, exchange, symbol string) (quote.Quote, error) {
	var q quote.Quote
	b, err := s.store.Get(ctx, s.Key(exchange, symbol))
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal(b, &q); err != nil {
		return q, fmt.Errorf("redis-sink: unmarshal: %w", err)
	}
	return q, nil
}

// Fallback адаптирует Lookup к quote.Fallback для одной биржи.
func (s *Sink) Fallback(exchange string) quote.Fallback {
	return func(ctx context.Context, symbol string) (quote.Quote, error) {
		return s.Lookup(ctx, exchange, symbol)
	}
}
