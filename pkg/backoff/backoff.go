// pkg/backoff/backoff.go
package backoff

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/YaganovValera/quote-feed/pkg/logger"
)

var metrics = struct {
	Retries   *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	Successes *prometheus.CounterVec
	Delays    *prometheus.HistogramVec
}{
	Retries: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "backoff", Name: "retries_total",
			Help: "Number of back-off retry attempts",
		},
		[]string{"operation"},
	),
	Failures: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "backoff", Name: "failures_total",
			Help: "Number of operations that gave up after retries",
		},
		[]string{"operation"},
	),
	Successes: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quotefeed", Subsystem: "backoff", Name: "successes_total",
			Help: "Number of operations that eventually succeeded",
		},
		[]string{"operation"},
	),
	Delays: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quotefeed", Subsystem: "backoff", Name: "retry_delay_seconds",
			Help:    "Histogram of retry delays (seconds)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	),
}

// Config contains tunables for exponential back-off.
//
// All zero values are treated as "use reasonable default".
type Config struct {
	// InitialInterval is the first delay before retrying.
	InitialInterval time.Duration `mapstructure:"initial_interval"`

	// RandomizationFactor adds ±jitter to each delay, 0.0 ≤ f ≤ 1.0.
	RandomizationFactor float64 `mapstructure:"randomization_factor"`

	// Multiplier grows the delay on every retry.
	Multiplier float64 `mapstructure:"multiplier"`

	// MaxInterval caps each individual delay.
	MaxInterval time.Duration `mapstructure:"max_interval"`

	// MaxElapsedTime is the total time allowed for all retries.
	// Zero → unlimited.
	MaxElapsedTime time.Duration `mapstructure:"max_elapsed_time"`

	// PerAttemptTimeout limits every single call of fn. Zero → none.
	PerAttemptTimeout time.Duration `mapstructure:"per_attempt_timeout"`
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

// Validate performs cheap sanity checks on explicitly set values.
func (c Config) Validate() error {
	if c.RandomizationFactor < 0 || c.RandomizationFactor > 1 {
		return fmt.Errorf("backoff: randomization_factor must be in [0,1]")
	}
	if c.Multiplier != 0 && c.Multiplier < 1 {
		return fmt.Errorf("backoff: multiplier must be ≥ 1")
	}
	if c.MaxElapsedTime < 0 || c.PerAttemptTimeout < 0 {
		return fmt.Errorf("backoff: durations must not be negative")
	}
	return nil
}

// RetryableFunc is a unit of work that may be re-executed until it
// succeeds or the back-off strategy gives up.
type RetryableFunc func(ctx context.Context) error

// ErrMaxRetries is returned from Execute when fn was still failing
// after the strategy gave up (or ctx was cancelled).
type ErrMaxRetries struct {
	Operation string
	Err       error // last error returned by fn
	Attempts  int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %s: %d attempt(s) failed: %v", e.Operation, e.Attempts, e.Err)
}
func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent marks an error as non-retryable.
func Permanent(err error) error { return backoff.Permanent(err) }

// Execute runs fn with an exponential back-off defined by cfg, labelling
// metrics and logs with operation.
func Execute(ctx context.Context, operation string, cfg Config, log *logger.Logger, fn RetryableFunc) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.applyDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime
	bo.Reset()
	boCtx := backoff.WithContext(bo, ctx)

	attempts := 0
	op := func() error {
		attempts++
		if cfg.PerAttemptTimeout > 0 {
			atCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
			return fn(atCtx)
		}
		return fn(ctx)
	}
	notify := func(err error, delay time.Duration) {
		metrics.Retries.WithLabelValues(operation).Inc()
		metrics.Delays.WithLabelValues(operation).Observe(delay.Seconds())
		log.Warn("back-off retry",
			zap.String("operation", operation),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, boCtx, notify); err != nil {
		metrics.Failures.WithLabelValues(operation).Inc()
		log.Error("back-off give-up",
			zap.String("operation", operation),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return &ErrMaxRetries{Operation: operation, Err: err, Attempts: attempts}
	}

	metrics.Successes.WithLabelValues(operation).Inc()
	return nil
}
