package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"

	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/pkg/backoff"
	"github.com/YaganovValera/quote-feed/pkg/kafka"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

var fastBackoff = backoff.Config{
	InitialInterval: time.Millisecond,
	Multiplier:      1,
	MaxInterval:     time.Millisecond,
	MaxElapsedTime:  20 * time.Millisecond,
}

func ticker() event.Ticker {
	return event.Ticker{
		Exchange: "poloniex",
		Symbol:   "BTC_USDT",
		Quote: quote.Quote{
			Exchange:  "poloniex",
			Symbol:    "BTC_USDT",
			Timestamp: 1700000000,
			Bid:       decimal.RequireFromString("100.5"),
			Ask:       decimal.RequireFromString("101"),
		},
	}
}

func TestWrite_PublishesJSON(t *testing.T) {
	mockProd := mocks.NewSyncProducer(t, nil)
	defer mockProd.Close()

	mockProd.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "quotes.ticker" {
			return fmt.Errorf("topic = %s", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "BTC_USDT" {
			return fmt.Errorf("key = %s", key)
		}
		val, _ := msg.Value.Encode()
		var got struct {
			Exchange string `json:"exchange"`
			Symbol   string `json:"symbol"`
			Quote    struct {
				Bid       string `json:"bid"`
				Ask       string `json:"ask"`
				Timestamp int64  `json:"timestamp"`
			} `json:"quote"`
		}
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Symbol != "BTC_USDT" || got.Quote.Bid != "100.5" || got.Quote.Ask != "101" || got.Quote.Timestamp != 1700000000 {
			return fmt.Errorf("unexpected payload %s", val)
		}
		return nil
	})

	s := New(kafka.NewFromSyncProducer(mockProd, fastBackoff, logger.NewNop()), "quotes.ticker", logger.NewNop())
	if err := s.Write(context.Background(), ticker()); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string, []byte, []byte) error {
	return sarama.ErrOutOfBrokers
}
func (failingProducer) Ping(context.Context) error { return nil }
func (failingProducer) Close() error               { return nil }

func TestWrite_PublishError(t *testing.T) {
	s := New(failingProducer{}, "quotes.ticker", logger.NewNop())
	if err := s.Write(context.Background(), ticker()); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("Write = %v", err)
	}
}
