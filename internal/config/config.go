// Package config: настройки сервиса quote-feed.
package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/YaganovValera/quote-feed/internal/auth"
	"github.com/YaganovValera/quote-feed/internal/codec"
	"github.com/YaganovValera/quote-feed/internal/stream"
	"github.com/YaganovValera/quote-feed/pkg/backoff"
	"github.com/YaganovValera/quote-feed/pkg/configloader"
	"github.com/YaganovValera/quote-feed/pkg/httpserver"
	"github.com/YaganovValera/quote-feed/pkg/kafka"
	"github.com/YaganovValera/quote-feed/pkg/logger"
	"github.com/YaganovValera/quote-feed/pkg/redis"
	"github.com/YaganovValera/quote-feed/pkg/telemetry"
)

// EnvPrefix: префикс переменных окружения.
const EnvPrefix = "QUOTEFEED"

// Config: все настройки сервиса.
type Config struct {
	ServiceName    string            `mapstructure:"service_name"`
	ServiceVersion string            `mapstructure:"service_version"`
	Exchange       ExchangeConfig    `mapstructure:"exchange"`
	Kafka          KafkaConfig       `mapstructure:"kafka"`
	Redis          RedisConfig       `mapstructure:"redis"`
	Telemetry      telemetry.Config  `mapstructure:"telemetry"`
	Logging        logger.Config     `mapstructure:"logging"`
	HTTP           httpserver.Config `mapstructure:"http"`
	REST           RESTConfig        `mapstructure:"rest"`
}

// SymbolConfig: пара символ / числовой id канала.
// В ENV задаётся строкой "USDT_BTC:121,USDT_ETH:149".
type SymbolConfig struct {
	Symbol string `mapstructure:"symbol" json:"symbol"`
	ID     int64  `mapstructure:"id" json:"id"`
}

// ExchangeConfig: подключение к бирже.
type ExchangeConfig struct {
	Name             string `mapstructure:"name"`
	stream.WSConfig  `mapstructure:",squash"`
	auth.Credentials `mapstructure:",squash"`
	Symbols          []SymbolConfig `mapstructure:"symbols"`
	BufferSize       int            `mapstructure:"buffer_size"`
	// Backoff управляет переподключением.
	Backoff backoff.Config `mapstructure:"backoff"`
	// ReconnectCooldown: пауза после обрыва перед новым dial.
	ReconnectCooldown time.Duration `mapstructure:"reconnect_cooldown"`
}

// KafkaConfig: публикация тикеров в Kafka.
type KafkaConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Topic        string `mapstructure:"topic"`
	QueueSize    int    `mapstructure:"queue_size"`
	kafka.Config `mapstructure:",squash"`
}

// RedisConfig: зеркало последних котировок в Redis.
type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	KeyPrefix    string `mapstructure:"key_prefix"`
	QueueSize    int    `mapstructure:"queue_size"`
	redis.Config `mapstructure:",squash"`
}

// RESTConfig: бюджет запросов к REST API биржи.
type RESTConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// Defaults: значения по умолчанию (ключи через точку).
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"service_name":    "quote-feed",
		"service_version": "v1.0.0",

		"exchange.name":              stream.DefaultExchange,
		"exchange.ws_url":            "wss://api2.poloniex.com",
		"exchange.symbols":           []string{"USDT_BTC:121", "USDT_ETH:149"},
		"exchange.key":               "",
		"exchange.secret":            "",
		"exchange.read_timeout":      "30s",
		"exchange.write_timeout":     "5s",
		"exchange.ping_interval":     "10s",
		"exchange.handshake_timeout": "10s",
		"exchange.buffer_size":       256,

		"exchange.backoff.initial_interval": "1s",
		"exchange.backoff.max_interval":     "30s",
		"exchange.backoff.max_elapsed_time": "0s",
		"exchange.reconnect_cooldown":       "1s",

		"kafka.enabled":     false,
		"kafka.brokers":     []string{"kafka:9092"},
		"kafka.topic":       "quotes.ticker",
		"kafka.acks":        "all",
		"kafka.compression": "none",
		"kafka.timeout":     "5s",
		"kafka.queue_size":  1024,

		"redis.enabled":    false,
		"redis.url":        "redis://redis:6379/0",
		"redis.ttl":        "10m",
		"redis.key_prefix": "quote:",
		"redis.queue_size": 1024,

		"telemetry.enabled":         false,
		"telemetry.endpoint":        "otel-collector:4317",
		"telemetry.insecure":        true,
		"telemetry.service_name":    "quote-feed",
		"telemetry.service_version": "v1.0.0",
		"telemetry.sampler_ratio":   1.0,

		"logging.level":    "info",
		"logging.dev_mode": false,

		"http.addr":             ":8080",
		"http.read_timeout":     "10s",
		"http.write_timeout":    "15s",
		"http.idle_timeout":     "60s",
		"http.shutdown_timeout": "5s",
		"http.metrics_path":     "/metrics",
		"http.healthz_path":     "/healthz",
		"http.readyz_path":      "/readyz",

		"rest.rate_per_second": 6.0,
		"rest.burst":           1,
	}
}

// Load загружает и валидирует конфиг. Пустой path → только ENV и defaults.
// flags (может быть nil) перекрывают остальные источники.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	opts := []configloader.Option{
		configloader.WithDefaults(Defaults()),
		configloader.WithDecodeHook(symbolHook),
	}
	if flags != nil {
		opts = append(opts,
			configloader.WithFlag("logging.level", flags.Lookup("log-level")),
			configloader.WithFlag("http.addr", flags.Lookup("http-addr")),
		)
	}

	var cfg Config
	if err := configloader.Load(path, EnvPrefix, &cfg, opts...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// symbolHook разбирает "NAME" или "NAME:ID" в SymbolConfig.
func symbolHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(SymbolConfig{}) {
		return data, nil
	}
	raw := strings.TrimSpace(data.(string))
	name, idText, hasID := strings.Cut(raw, ":")
	out := map[string]interface{}{"symbol": strings.TrimSpace(name)}
	if hasID {
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: bad channel id: %w", raw, err)
		}
		out["id"] = id
	}
	return out, nil
}

// CodecSymbols переводит конфиг символов в таблицу декодера.
func (e ExchangeConfig) CodecSymbols() []codec.Symbol {
	out := make([]codec.Symbol, len(e.Symbols))
	for i, s := range e.Symbols {
		out[i] = codec.Symbol{Name: s.Symbol, ID: s.ID}
	}
	return out
}

// SymbolNames: имена символов в порядке конфига.
func (e ExchangeConfig) SymbolNames() []string {
	out := make([]string, len(e.Symbols))
	for i, s := range e.Symbols {
		out[i] = s.Symbol
	}
	return out
}

// Redacted возвращает копию без секретов, для печати.
func (c Config) Redacted() Config {
	if c.Exchange.Secret != "" {
		c.Exchange.Secret = "***"
	}
	if c.Exchange.Key != "" {
		c.Exchange.Key = "***"
	}
	return c
}

// Validate проверяет все секции.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required")
	}
	if err := c.Exchange.Validate(); err != nil {
		return err
	}
	if err := c.Kafka.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}
	if err := validateHTTP(c.HTTP); err != nil {
		return err
	}
	return c.REST.Validate()
}

func (e ExchangeConfig) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("exchange.name is required")
	}
	ws := e.WSConfig
	ws.ApplyDefaults()
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("exchange: %w", err)
	}
	if len(e.Symbols) == 0 {
		return fmt.Errorf("exchange.symbols must contain at least one entry")
	}
	// те же правила, что у декодера: пустые имена и дубликаты запрещены
	if _, err := codec.NewDecoder(e.CodecSymbols()); err != nil {
		return fmt.Errorf("exchange.symbols: %w", err)
	}
	if (e.Key == "") != (e.Secret == "") {
		return fmt.Errorf("exchange.key and exchange.secret must be set together")
	}
	if e.BufferSize < 0 {
		return fmt.Errorf("exchange.buffer_size must be >= 0")
	}
	if err := e.Backoff.Validate(); err != nil {
		return fmt.Errorf("exchange.%w", err)
	}
	if e.ReconnectCooldown < 0 {
		return fmt.Errorf("exchange.reconnect_cooldown must be >= 0")
	}
	return nil
}

func (k KafkaConfig) Validate() error {
	if !k.Enabled {
		return nil
	}
	if k.Topic == "" {
		return fmt.Errorf("kafka.topic is required")
	}
	if k.QueueSize <= 0 {
		return fmt.Errorf("kafka.queue_size must be > 0")
	}
	return k.Config.Validate()
}

func (r RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.QueueSize <= 0 {
		return fmt.Errorf("redis.queue_size must be > 0")
	}
	return r.Config.Validate()
}

func (r RESTConfig) Validate() error {
	if r.RatePerSecond <= 0 {
		return fmt.Errorf("rest.rate_per_second must be > 0")
	}
	if r.Burst <= 0 {
		return fmt.Errorf("rest.burst must be > 0")
	}
	return nil
}

func validateHTTP(h httpserver.Config) error {
	if err := h.Validate(); err != nil {
		return err
	}
	durations := map[string]time.Duration{
		"http.read_timeout":     h.ReadTimeout,
		"http.write_timeout":    h.WriteTimeout,
		"http.idle_timeout":     h.IdleTimeout,
		"http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath,
		"http.healthz_path": h.HealthzPath,
		"http.readyz_path":  h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}
