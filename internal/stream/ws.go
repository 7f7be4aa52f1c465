package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/pkg/logger"
)

// WSConfig holds WebSocket transport settings.
type WSConfig struct {
	URL              string        `mapstructure:"ws_url"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

// ApplyDefaults заполняет незаданные таймауты.
func (c *WSConfig) ApplyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = c.ReadTimeout / 3
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// Validate checks config for required fields.
func (c WSConfig) Validate() error {
	switch {
	case c.URL == "":
		return fmt.Errorf("stream: ws_url is required")
	case c.PingInterval >= c.ReadTimeout:
		return fmt.Errorf("stream: ping_interval (%s) must be below read_timeout (%s)", c.PingInterval, c.ReadTimeout)
	default:
		return nil
	}
}

// WSDialer открывает соединения через gorilla/websocket.
type WSDialer struct {
	cfg    WSConfig
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewWSDialer создаёт Dialer; логгер именуется "ws".
func NewWSDialer(cfg WSConfig, log *logger.Logger) (*WSDialer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &WSDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log: log.Named("ws"),
	}, nil
}

// Dial устанавливает соединение и запускает ping-горутину.
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (http %d)", d.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.cfg.URL, err)
	}

	// Любой входящий фрейм или pong продлевает read deadline.
	_ = conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(d.cfg.ReadTimeout))
	})

	wc := &wsConn{
		conn: conn,
		cfg:  d.cfg,
		log:  d.log,
		done: make(chan struct{}),
	}
	go wc.pingLoop()

	d.log.WithContext(ctx).Info("connected", zap.String("url", d.cfg.URL))
	return wc, nil
}

type wsConn struct {
	conn *websocket.Conn
	cfg  WSConfig
	log  *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	return data, nil
}

func (c *wsConn) WriteFrame(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close шлёт close-фрейм (best effort) и закрывает сокет. Повторные вызовы
// возвращают результат первого.
func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
			c.log.Debug("close frame not sent", zap.Error(err))
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.log.Warn("ping failed", zap.Error(err))
			}
		}
	}
}
