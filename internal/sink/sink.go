// Package sink развязывает синхронную рассылку событий и медленные
// внешние хранилища: тикеры кладутся в ограниченную очередь, отдельный
// воркер пишет их во Writer.
package sink

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/metrics"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

const drainTimeout = 2 * time.Second

var tracer = otel.Tracer("quote-feed/sink")

// Writer пишет один тикер во внешнее хранилище.
type Writer interface {
	Write(ctx context.Context, t event.Ticker) error
}

type item struct {
	ticker event.Ticker
	link   trace.Link
}

// Async: event.Listener с очередью и фоновым воркером.
type Async struct {
	name  string
	w     Writer
	queue chan item
	log   *logger.Logger
}

// NewAsync создаёт sink с очередью размера size (минимум 1).
func NewAsync(name string, w Writer, size int, log *logger.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	return &Async{
		name:  name,
		w:     w,
		queue: make(chan item, size),
		log:   log.Named(name),
	}
}

// OnEvent ставит тикер в очередь и никогда не блокирует. При полной
// очереди тикер отбрасывается.
func (a *Async) OnEvent(ctx context.Context, name string, payload interface{}) error {
	if name != event.NameTicker {
		return nil
	}
	t, ok := payload.(event.Ticker)
	if !ok {
		return fmt.Errorf("sink %s: unexpected payload %T", a.name, payload)
	}
	it := item{ticker: t, link: trace.LinkFromContext(ctx)}
	select {
	case a.queue <- it:
		return nil
	default:
		// переполнение видно по метрике dropped, в лог только debug
		metrics.SinkEvents.WithLabelValues(a.name, "dropped").Inc()
		a.log.Debug("queue full, ticker dropped", zap.String("symbol", t.Symbol))
		return nil
	}
}

// Run пишет тикеры до отмены ctx, затем дописывает то, что осталось в
// очереди, с коротким таймаутом.
func (a *Async) Run(ctx context.Context) error {
	a.log.Info("sink started", zap.Int("queue", cap(a.queue)))
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return nil
		case it := <-a.queue:
			a.write(ctx, it)
		}
	}
}

func (a *Async) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case it := <-a.queue:
			a.write(ctx, it)
		default:
			a.log.Info("sink stopped")
			return
		}
	}
}

func (a *Async) write(ctx context.Context, it item) {
	ctx, span := tracer.Start(ctx, a.name+".Write", trace.WithLinks(it.link))
	defer span.End()

	if err := a.w.Write(ctx, it.ticker); err != nil {
		metrics.SinkEvents.WithLabelValues(a.name, "error").Inc()
		span.RecordError(err)
		a.log.WithContext(ctx).Warn("write failed",
			zap.String("symbol", it.ticker.Symbol),
			zap.Error(err),
		)
		return
	}
	metrics.SinkEvents.WithLabelValues(a.name, "ok").Inc()
}
