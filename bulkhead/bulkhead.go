// Package bulkhead limits the number of concurrent calls to a protected
// resource, preventing goroutine pileups and resource starvation.
package bulkhead

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SiftScience/resilience4j/internal/metrics"
)

// Bulkhead is a concurrency permit limiter backed by a channel semaphore.
type Bulkhead struct {
	name   string
	sem    chan struct{}
	logger *slog.Logger
}

// New creates a bulkhead that allows at most maxConcurrent in-flight calls.
func New(name string, maxConcurrent int, logger *slog.Logger) (*Bulkhead, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max_concurrent must be at least 1, got %d", maxConcurrent)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bulkhead{
		name:   name,
		sem:    make(chan struct{}, maxConcurrent),
		logger: logger,
	}, nil
}

// Name returns the instance name.
func (b *Bulkhead) Name() string { return b.name }

// TryAcquire takes a concurrency permit without blocking. If it returns
// true, the caller MUST call Release when the call completes.
func (b *Bulkhead) TryAcquire() bool {
	select {
	case b.sem <- struct{}{}:
		metrics.BulkheadInFlight.WithLabelValues(b.name).Set(float64(len(b.sem)))
		return true
	default:
		metrics.BulkheadRejections.WithLabelValues(b.name).Inc()
		return false
	}
}

// Acquire blocks until a permit is available or ctx is done. On success the
// caller MUST call Release when the call completes.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		metrics.BulkheadInFlight.WithLabelValues(b.name).Set(float64(len(b.sem)))
		return nil
	case <-ctx.Done():
		metrics.BulkheadRejections.WithLabelValues(b.name).Inc()
		return ctx.Err()
	}
}

// Release frees a permit. Must be called exactly once for every successful
// acquisition.
func (b *Bulkhead) Release() {
	<-b.sem
	metrics.BulkheadInFlight.WithLabelValues(b.name).Set(float64(len(b.sem)))
}

// InFlight returns the number of permits currently held.
func (b *Bulkhead) InFlight() int {
	return len(b.sem)
}
