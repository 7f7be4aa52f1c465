// Package event публикует нормализованные события ленты подписчикам.
package event

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/internal/metrics"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

// Имена событий.
const (
	NameTicker           = "ticker"
	NameConnectionOpen   = "connection.open"
	NameConnectionClosed = "connection.closed"
	NameConnectionFailed = "connection.failed" // соединение так и не открылось
)

// Ticker: событие обновления котировки. Передаётся по значению.
type Ticker struct {
	Exchange string      `json:"exchange"`
	Symbol   string      `json:"symbol"`
	Quote    quote.Quote `json:"quote"`
}

// Connection: событие жизненного цикла соединения.
type Connection struct {
	Exchange string `json:"exchange"`
	State    string `json:"state"`
	Code     int    `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Err      error  `json:"-"`
}

// Emitter: то, что нужно потребителю событий: (имя, payload).
type Emitter interface {
	Emit(ctx context.Context, name string, payload interface{})
}

// Listener получает каждое опубликованное событие.
type Listener interface {
	OnEvent(ctx context.Context, name string, payload interface{}) error
}

// ListenerFunc адаптирует функцию к Listener.
type ListenerFunc func(ctx context.Context, name string, payload interface{}) error

func (f ListenerFunc) OnEvent(ctx context.Context, name string, payload interface{}) error {
	return f(ctx, name, payload)
}

// Publisher синхронно рассылает события в порядке регистрации.
// Ошибка или паника одного подписчика не мешает остальным.
type Publisher struct {
	mu        sync.RWMutex
	listeners []Listener
	log       *logger.Logger
}

func NewPublisher(log *logger.Logger) *Publisher {
	return &Publisher{log: log.Named("publisher")}
}

// Subscribe добавляет подписчика в конец списка.
func (p *Publisher) Subscribe(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// Emit вызывает всех подписчиков по очереди.
func (p *Publisher) Emit(ctx context.Context, name string, payload interface{}) {
	p.mu.RLock()
	listeners := p.listeners
	p.mu.RUnlock()

	for i, l := range listeners {
		if err := p.deliver(ctx, l, name, payload); err != nil {
			metrics.ListenerErrors.WithLabelValues(name).Inc()
			p.log.WithContext(ctx).Error("listener failed",
				zap.String("event", name),
				zap.Int("listener", i),
				zap.Error(err),
			)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, l Listener, name string, payload interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnEvent(ctx, name, payload)
}
