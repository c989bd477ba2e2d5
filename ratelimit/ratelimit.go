// Package ratelimit provides a token-bucket rate limiter façade with the
// same acquire-permission surface as the circuit breaker.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SiftScience/resilience4j/internal/metrics"
	"golang.org/x/time/rate"
)

// Config holds the limiter settings.
type Config struct {
	// RequestsPerSecond is the steady-state permit refill rate.
	RequestsPerSecond float64

	// Burst is the bucket capacity. Default: 1.
	Burst int
}

func (c *Config) applyDefaults() {
	if c.Burst == 0 {
		c.Burst = 1
	}
}

func (c *Config) validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be positive, got %v", c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", c.Burst)
	}
	return nil
}

// Limiter wraps a token bucket. rate.Limiter is internally goroutine-safe,
// so acquisitions need no additional locking.
type Limiter struct {
	name    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a named rate limiter.
func New(name string, cfg Config, logger *slog.Logger) (*Limiter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}, nil
}

// Name returns the instance name.
func (l *Limiter) Name() string { return l.name }

// AcquirePermission takes one permit without blocking. Returns false when
// the bucket is empty.
func (l *Limiter) AcquirePermission() bool {
	if l.limiter.Allow() {
		return true
	}
	metrics.RateLimitRejections.WithLabelValues(l.name).Inc()
	return false
}

// WaitPermission blocks until a permit is available or ctx is done.
func (l *Limiter) WaitPermission(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		metrics.RateLimitRejections.WithLabelValues(l.name).Inc()
		return err
	}
	return nil
}
