package eventlog

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/SiftScience/resilience4j/circuitbreaker"
)

func TestHandler_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := NewHandler(logger)

	handler(circuitbreaker.Event{
		Kind:     circuitbreaker.EventStateTransition,
		Time:     time.Now(),
		Instance: "payments",
		From:     circuitbreaker.StateClosed,
		To:       circuitbreaker.StateOpen,
	})

	out := buf.String()
	if !strings.Contains(out, "state_transition") {
		t.Errorf("expected state_transition in output, got %q", out)
	}
	if !strings.Contains(out, "payments") || !strings.Contains(out, "open") {
		t.Errorf("expected instance and target state in output, got %q", out)
	}
}

func TestHandler_LogsFailuresWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	handler := NewHandler(logger)

	handler(circuitbreaker.Event{
		Kind:     circuitbreaker.EventFailure,
		Time:     time.Now(),
		Instance: "payments",
		Elapsed:  25 * time.Millisecond,
		Err:      errors.New("connection refused"),
	})

	out := buf.String()
	if !strings.Contains(out, "connection refused") {
		t.Errorf("expected error in output, got %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("expected failures at warn level, got %q", out)
	}
}

func TestHandler_WiredToBreaker(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	b, err := circuitbreaker.New("wired", circuitbreaker.Config{
		SlidingWindowSize:    2,
		MinimumNumberOfCalls: 2,
		FailureRateThreshold: 50,
	}, circuitbreaker.WithEventHandler(NewHandler(logger)))
	if err != nil {
		t.Fatalf("circuitbreaker.New: %v", err)
	}

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		perm, err := b.AcquirePermission()
		if err != nil {
			t.Fatalf("AcquirePermission: %v", err)
		}
		b.OnError(time.Millisecond, boom, perm)
	}

	out := buf.String()
	if !strings.Contains(out, "state_transition") {
		t.Errorf("expected the open transition in the event log, got %q", out)
	}
}
