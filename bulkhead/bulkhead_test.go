package bulkhead

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SiftScience/resilience4j/internal/metrics"
)

func init() {
	// Register metrics once for all tests in this package.
	metrics.Init()
}

func TestBulkhead_TryAcquireUpToLimit(t *testing.T) {
	b, err := New("backend", 2, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !b.TryAcquire() {
		t.Fatal("expected first permit")
	}
	if !b.TryAcquire() {
		t.Fatal("expected second permit")
	}
	if b.TryAcquire() {
		t.Fatal("expected rejection at concurrency limit")
	}
	if b.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", b.InFlight())
	}
}

func TestBulkhead_ReleaseFreesPermit(t *testing.T) {
	b, err := New("backend", 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !b.TryAcquire() {
		t.Fatal("expected permit")
	}
	if b.TryAcquire() {
		t.Fatal("expected rejection")
	}

	b.Release()
	if !b.TryAcquire() {
		t.Fatal("expected permit after release")
	}
}

func TestBulkhead_AcquireBlocksUntilRelease(t *testing.T) {
	b, err := New("backend", 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !b.TryAcquire() {
		t.Fatal("expected permit")
	}

	acquired := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		acquired <- b.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("Acquire returned while permit was held")
	default:
	}

	b.Release()
	wg.Wait()
	if err := <-acquired; err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestBulkhead_AcquireHonorsContext(t *testing.T) {
	b, err := New("backend", 1, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !b.TryAcquire() {
		t.Fatal("expected permit")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := b.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestBulkhead_InvalidLimit(t *testing.T) {
	if _, err := New("backend", 0, nil); err == nil {
		t.Fatal("expected error for zero max_concurrent")
	}
}
