package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SiftScience/resilience4j/internal/metrics"
)

// Config holds retry executor parameters. A zero value for any field means
// "use the default".
type Config struct {
	// MaxAttempts is the total number of calls made (first attempt included).
	// Must be at least 1. Default: 3.
	MaxAttempts int

	// Interval computes the wait before each retry. Default: constant 500ms.
	Interval *IntervalPolicy

	// RetryPredicate decides whether a failed call should be retried.
	// Defaults to retrying every error.
	RetryPredicate func(error) bool
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Interval == nil {
		c.Interval = NewDefault()
	}
	if c.RetryPredicate == nil {
		c.RetryPredicate = func(error) bool { return true }
	}
}

func (c *Config) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	return nil
}

// Retry executes operations with bounded attempts separated by the
// configured interval policy. Safe for concurrent use.
type Retry struct {
	name   string
	cfg    Config
	logger *slog.Logger
}

// Option customizes a Retry at construction.
type Option func(*Retry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retry) { r.logger = logger }
}

// New creates a named retry executor.
func New(name string, cfg Config, opts ...Option) (*Retry, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Retry{name: name, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Name returns the instance name.
func (r *Retry) Name() string { return r.name }

// Do runs fn up to MaxAttempts times. The first call is immediate; each
// retry waits the interval computed for the attempt that just failed.
// The last error is returned unchanged. Context cancellation aborts the
// wait and returns ctx.Err().
func (r *Retry) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !r.cfg.RetryPredicate(lastErr) {
			return lastErr
		}
		if attempt == r.cfg.MaxAttempts {
			return lastErr
		}

		wait, err := r.cfg.Interval.Wait(attempt)
		if err != nil {
			return lastErr
		}

		metrics.RetryAttempts.WithLabelValues(r.name).Inc()
		r.logger.Warn("retrying after failure",
			"retry", r.name,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"wait", wait,
			"error", lastErr,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
