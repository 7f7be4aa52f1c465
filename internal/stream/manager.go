// Package stream ведёт одно WebSocket-соединение с биржей: подписки,
// необязательная аутентификация, разбор фреймов и запись котировок.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/internal/auth"
	"github.com/YaganovValera/quote-feed/internal/codec"
	"github.com/YaganovValera/quote-feed/internal/event"
	"github.com/YaganovValera/quote-feed/internal/metrics"
	"github.com/YaganovValera/quote-feed/internal/quote"
	"github.com/YaganovValera/quote-feed/pkg/logger"
)

// DefaultExchange: имя биржи в котировках и событиях.
const DefaultExchange = "poloniex"

var tracer = otel.Tracer("quote-feed/stream")

// ErrClosed: Close was called while Open was still in progress.
var ErrClosed = errors.New("stream: manager closed")

// Config describes what one connection subscribes to.
type Config struct {
	Exchange    string
	Symbols     []codec.Symbol
	Credentials auth.Credentials
	BufferSize  int // входящие фреймы между reader'ом и обработчиком
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
}

// Deps: внешние зависимости Manager.
type Deps struct {
	Dialer  Dialer
	Store   *quote.Store // must allow every symbol in Config.Symbols
	Emitter event.Emitter
	Log     *logger.Logger
	// Throttler is handed over for REST-bound collaborators; the socket
	// path never waits on it.
	Throttler Throttler
	Now       func() time.Time
	// OnStateChange, if set, is called after every transition.
	OnStateChange func(from, to State)
}

// Manager owns a single connection instance. It is not reusable: once
// Closed, build a new one.
type Manager struct {
	cfg       Config
	id        string
	dialer    Dialer
	decoder   *codec.Decoder
	signer    *auth.Signer
	store     *quote.Store
	emitter   event.Emitter
	throttler Throttler
	now       func() time.Time
	onState   func(from, to State)
	log       *logger.Logger

	state          atomic.Int32
	authenticated  atomic.Bool
	closedByClient atomic.Bool

	mu          sync.Mutex // conn, closeCode, closeReason
	conn        Conn
	closeCode   int
	closeReason string
	closeOnce   sync.Once
	closeErr    error
}

// New validates cfg and deps and returns a Disconnected Manager.
func New(cfg Config, deps Deps) (*Manager, error) {
	cfg.applyDefaults()
	if deps.Dialer == nil {
		return nil, fmt.Errorf("stream: dialer is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("stream: quote store is required")
	}
	if deps.Emitter == nil {
		return nil, fmt.Errorf("stream: emitter is required")
	}
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	dec, err := codec.NewDecoder(cfg.Symbols)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}

	id := uuid.NewString()
	log := deps.Log.Named("stream").With(zap.String("exchange", cfg.Exchange))

	var signer *auth.Signer
	switch {
	case cfg.Credentials.Present():
		if signer, err = auth.NewSigner(cfg.Credentials); err != nil {
			return nil, fmt.Errorf("stream: %w", err)
		}
	case cfg.Credentials.Key != "" || cfg.Credentials.Secret != "":
		log.Warn("incomplete credentials, account channel disabled")
	}

	return &Manager{
		cfg:       cfg,
		id:        id,
		dialer:    deps.Dialer,
		decoder:   dec,
		signer:    signer,
		store:     deps.Store,
		emitter:   deps.Emitter,
		throttler: deps.Throttler,
		now:       deps.Now,
		onState:   deps.OnStateChange,
		log:       log,
	}, nil
}

// ID: идентификатор соединения для логов.
func (m *Manager) ID() string { return m.id }

// State returns the current state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Authenticated reports whether the exchange acknowledged the account
// subscription.
func (m *Manager) Authenticated() bool { return m.authenticated.Load() }

// CloseInfo returns the close code and reason once the Manager is Closed.
// Transport failures report websocket.CloseAbnormalClosure.
func (m *Manager) CloseInfo() (int, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode, m.closeReason
}

// Start = Open + Run.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.Open(ctx); err != nil {
		return err
	}
	return m.Run(ctx)
}

// Open dials, subscribes to every configured symbol in order and, with
// credentials, sends one authenticated subscription. On return without
// error the state is AuthPending or Subscribed.
func (m *Manager) Open(ctx context.Context) error {
	if !m.transition(StateDisconnected, StateConnecting) {
		return ErrAlreadyStarted
	}
	ctx = logger.ContextWithConnectionID(ctx, m.id)
	ctx, span := tracer.Start(ctx, "stream.Open",
		trace.WithAttributes(
			attribute.String("exchange", m.cfg.Exchange),
			attribute.Int("symbols", len(m.cfg.Symbols)),
		))
	defer span.End()
	log := m.log.WithContext(ctx)

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		metrics.Connects.WithLabelValues("error").Inc()
		cerr := &ConnectionError{Op: "dial", Err: err}
		span.RecordError(cerr)
		span.SetStatus(codes.Error, "dial")
		m.shutdown(ctx, 0, "dial failed", cerr, false)
		return cerr
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	if !m.transition(StateConnecting, StateOpen) {
		// Close() пришёл во время dial.
		_ = conn.Close(websocket.CloseNormalClosure, "client closing")
		return ErrClosed
	}
	metrics.Connects.WithLabelValues("ok").Inc()
	m.emitter.Emit(ctx, event.NameConnectionOpen, event.Connection{
		Exchange: m.cfg.Exchange,
		State:    StateOpen.String(),
	})

	for _, s := range m.cfg.Symbols {
		if err := m.send(ctx, codec.NewSubscribe(s.Name)); err != nil {
			return m.fail(ctx, span, "subscribe", err)
		}
	}
	log.Info("subscriptions sent", zap.Int("symbols", len(m.cfg.Symbols)))

	if m.signer == nil {
		return m.advance(StateOpen, StateSubscribed)
	}

	req, err := m.signer.BuildAuthRequest()
	if err != nil {
		metrics.AuthResults.WithLabelValues("error").Inc()
		log.Warn("account subscription skipped", zap.Error(&AuthError{Err: err}))
		return m.advance(StateOpen, StateSubscribed)
	}
	if err := m.send(ctx, req); err != nil {
		return m.fail(ctx, span, "auth", err)
	}
	return m.advance(StateOpen, StateAuthPending)
}

// Run pumps frames until the peer closes, the transport fails or ctx is
// cancelled. Frames are handled one at a time in arrival order.
// Cancellation closes the connection and returns nil; everything else
// returns a *ConnectionError.
func (m *Manager) Run(ctx context.Context) error {
	if !m.State().Active() {
		return ErrNotOpen
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	ctx = logger.ContextWithConnectionID(ctx, m.id)

	frames := make(chan []byte, m.cfg.BufferSize)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go m.readLoop(ctx, conn, frames, readErr, stop)

	for {
		select {
		case <-ctx.Done():
			_ = m.Close()
			return nil
		case raw, ok := <-frames:
			if !ok {
				return m.readFailed(ctx, <-readErr)
			}
			m.handleFrame(ctx, raw)
		}
	}
}

// Close closes the socket with a normal closure. Safe to call more than
// once and from any goroutine; later calls return the first result.
func (m *Manager) Close() error {
	return m.shutdown(context.Background(), websocket.CloseNormalClosure, "client closing", nil, true)
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, frames chan<- []byte, errc chan<- error, stop <-chan struct{}) {
	defer close(frames)
	for {
		data, err := conn.ReadFrame(ctx)
		if err != nil {
			errc <- err
			return
		}
		select {
		case frames <- data:
		case <-stop:
			return
		}
	}
}

func (m *Manager) readFailed(ctx context.Context, err error) error {
	if m.closedByClient.Load() {
		return nil
	}
	code, reason := websocket.CloseAbnormalClosure, "read failed"
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}
	cerr := &ConnectionError{Op: "read", Code: code, Reason: reason, Err: err}
	m.shutdown(ctx, code, reason, cerr, false)
	return cerr
}

// handleFrame decodes one frame and dispatches it. Nothing here ends the
// connection: bad frames are logged and dropped.
func (m *Manager) handleFrame(ctx context.Context, raw []byte) {
	if m.State() == StateClosed {
		return
	}
	start := time.Now()
	defer func() { metrics.FrameLatency.Observe(time.Since(start).Seconds()) }()

	ctx, span := tracer.Start(ctx, "stream.Frame")
	defer span.End()
	log := m.log.WithContext(ctx)

	msg, err := m.decoder.Decode(raw)
	if err != nil {
		metrics.DecodeErrors.Inc()
		span.RecordError(err)
		log.Warn("frame dropped", zap.Error(err))
		return
	}
	metrics.FramesTotal.WithLabelValues(msg.Kind.String()).Inc()
	span.SetAttributes(attribute.String("kind", msg.Kind.String()))

	switch msg.Kind {
	case codec.KindEmpty:
	case codec.KindError:
		metrics.ProtocolErrors.Inc()
		log.Error("exchange reported error", zap.Error(&ProtocolError{Message: msg.ErrorText}))
	case codec.KindAccount:
		m.handleAccount(log, msg.AccountStatus)
	case codec.KindTicker:
		for _, u := range msg.Updates {
			m.applyUpdate(ctx, log, u)
		}
	}
}

// handleAccount ends AuthPending only on an explicit [1000, 1]; every
// other account frame is informational.
func (m *Manager) handleAccount(log *logger.Logger, status int) {
	if status != codec.AccountAuthenticated {
		log.Debug("account notification", zap.Int("status", status), zap.Stringer("state", m.State()))
		return
	}
	if !m.transition(StateAuthPending, StateSubscribed) {
		log.Debug("account ack outside auth handshake", zap.Stringer("state", m.State()))
		return
	}
	m.authenticated.Store(true)
	metrics.AuthResults.WithLabelValues("ok").Inc()
	log.Info("account channel authenticated")
}

func (m *Manager) applyUpdate(ctx context.Context, log *logger.Logger, u codec.TickerUpdate) {
	q, err := m.store.Apply(m.cfg.Exchange, u.Symbol, u.Bid, u.Ask, m.now())
	if err != nil {
		log.Error("quote not applied", zap.String("symbol", u.Symbol), zap.Error(err))
		return
	}
	metrics.QuotesApplied.WithLabelValues(u.Symbol).Inc()
	m.emitter.Emit(ctx, event.NameTicker, event.Ticker{
		Exchange: m.cfg.Exchange,
		Symbol:   u.Symbol,
		Quote:    q,
	})
}

func (m *Manager) send(ctx context.Context, req codec.SubscribeRequest) error {
	b, err := codec.Encode(req)
	if err != nil {
		return err
	}
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	return conn.WriteFrame(ctx, b)
}

func (m *Manager) fail(ctx context.Context, span trace.Span, op string, err error) error {
	cerr := &ConnectionError{Op: op, Code: websocket.CloseAbnormalClosure, Reason: op + " failed", Err: err}
	span.RecordError(cerr)
	span.SetStatus(codes.Error, op)
	m.shutdown(ctx, cerr.Code, cerr.Reason, cerr, false)
	return cerr
}

// advance finishes Open; it fails only if Close raced with it.
func (m *Manager) advance(from, to State) error {
	if !m.transition(from, to) {
		return ErrClosed
	}
	return nil
}

// shutdown moves to Closed exactly once. The close frame sent to the
// peer always carries a normal closure; code and reason are what
// CloseInfo reports. A connection that never reached Open reports
// connection.failed instead of connection.closed.
func (m *Manager) shutdown(ctx context.Context, code int, reason string, cause error, byClient bool) error {
	m.closeOnce.Do(func() {
		if byClient {
			m.closedByClient.Store(true)
		}
		m.mu.Lock()
		conn := m.conn
		m.closeCode, m.closeReason = code, reason
		m.mu.Unlock()

		from := State(m.state.Swap(int32(StateClosed)))
		m.notify(from, StateClosed)

		if conn != nil {
			m.closeErr = conn.Close(websocket.CloseNormalClosure, reason)
		}

		log := m.log.WithContext(logger.ContextWithConnectionID(ctx, m.id))
		if cause != nil {
			log.Warn("connection closed", zap.Int("code", code), zap.String("reason", reason), zap.Error(cause))
		} else {
			log.Info("connection closed", zap.Int("code", code), zap.String("reason", reason))
		}

		name := event.NameConnectionClosed
		if from < StateOpen {
			name = event.NameConnectionFailed
		}
		if from >= StateOpen || cause != nil {
			m.emitter.Emit(ctx, name, event.Connection{
				Exchange: m.cfg.Exchange,
				State:    StateClosed.String(),
				Code:     code,
				Reason:   reason,
				Err:      cause,
			})
		}
	})
	return m.closeErr
}

func (m *Manager) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	m.notify(from, to)
	return true
}

func (m *Manager) notify(from, to State) {
	metrics.ConnectionState.Set(float64(to))
	m.log.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	if m.onState != nil {
		m.onState(from, to)
	}
}
