// Package kafkasink публикует тикеры в Kafka как JSON с ключом symbol.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/pkg/kafka"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

// Sink реализует sink.Writer поверх kafka.Producer.
type Sink struct {
	producer kafka.Producer
	topic    string
	log      *logger.Logger
}

// New создаёт новый Kafka sink.
func New(producer kafka.Producer, topic string, log *logger.Logger) *Sink {
	return &Sink{
		producer: producer,
		topic:    topic,
		log:      log.Named("kafka-sink"),
	}
}

// Write сериализует тикер и публикует его в topic с ключом symbol,
// чтобы обновления одного символа попадали в одну партицию.
func (s *Sink) Write(ctx context.Context, t event.Ticker) error {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("symbol", t.Symbol),
		attribute.String("topic", s.topic),
	)

	b, err := json.Marshal(t)
	if err != nil {
		s.log.WithContext(ctx).Error("marshal ticker failed", zap.Error(err))
		return fmt.Errorf("kafka-sink: marshal: %w", err)
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(t.Symbol), b); err != nil {
		return fmt.Errorf("kafka-sink: publish: %w", err)
	}
	return nil
}
