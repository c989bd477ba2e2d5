package circuitbreaker

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.FailureRateThreshold != 50 {
		t.Errorf("expected failure rate threshold 50, got %v", cfg.FailureRateThreshold)
	}
	if cfg.SlowCallRateThreshold != 100 {
		t.Errorf("expected slow call rate threshold 100, got %v", cfg.SlowCallRateThreshold)
	}
	if cfg.SlowCallDurationThreshold != 60*time.Second {
		t.Errorf("expected slow call duration threshold 60s, got %v", cfg.SlowCallDurationThreshold)
	}
	if cfg.WaitDurationInOpenState != 60*time.Second {
		t.Errorf("expected wait duration 60s, got %v", cfg.WaitDurationInOpenState)
	}
	if cfg.SlidingWindowType != CountBased {
		t.Errorf("expected count-based window, got %v", cfg.SlidingWindowType)
	}
	if cfg.SlidingWindowSize != 100 {
		t.Errorf("expected window size 100, got %d", cfg.SlidingWindowSize)
	}
	if cfg.MinimumNumberOfCalls != 100 {
		t.Errorf("expected minimum calls 100, got %d", cfg.MinimumNumberOfCalls)
	}
	if cfg.PermittedNumberOfCallsInHalfOpen != 10 {
		t.Errorf("expected 10 permitted half-open calls, got %d", cfg.PermittedNumberOfCallsInHalfOpen)
	}
	if cfg.AutomaticTransitionFromOpenToHalfOpen {
		t.Error("expected automatic transition disabled by default")
	}
	if !cfg.stackTraceEnabled() {
		t.Error("expected writable stack trace enabled by default")
	}
	if cfg.RecordFailurePredicate == nil || !cfg.RecordFailurePredicate(nil) {
		t.Error("expected default predicate to record every error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name      string
		cfg       Config
		wantField string
	}{
		{"valid defaults", Config{}, ""},
		{"negative failure rate", Config{FailureRateThreshold: -1}, "failure_rate_threshold"},
		{"failure rate above 100", Config{FailureRateThreshold: 100.5}, "failure_rate_threshold"},
		{"slow rate above 100", Config{SlowCallRateThreshold: 101}, "slow_call_rate_threshold"},
		{"negative slow duration", Config{SlowCallDurationThreshold: -time.Second}, "slow_call_duration_threshold"},
		{"sub-millisecond wait", Config{WaitDurationInOpenState: 100 * time.Microsecond}, "wait_duration_in_open_state"},
		{"negative window size", Config{SlidingWindowSize: -5}, "sliding_window_size"},
		{"negative minimum calls", Config{MinimumNumberOfCalls: -1}, "minimum_number_of_calls"},
		{"negative half-open permits", Config{PermittedNumberOfCallsInHalfOpen: -1}, "permitted_number_of_calls_in_half_open"},
		{"bogus window type", Config{SlidingWindowType: WindowType(7)}, "sliding_window_type"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error naming %s", tc.wantField)
			}
			if !strings.Contains(err.Error(), tc.wantField) {
				t.Fatalf("error %q does not name field %s", err, tc.wantField)
			}
		})
	}
}

func TestConfig_MinimumClampedToCountWindow(t *testing.T) {
	// With a count window of 5, a minimum of 100 could never be reached.
	b := mustBreaker(t, Config{
		SlidingWindowSize:    5,
		MinimumNumberOfCalls: 100,
		FailureRateThreshold: 50,
	})

	for i := 0; i < 5; i++ {
		perm := mustAcquire(t, b)
		b.OnError(time.Millisecond, errTest, perm)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected the minimum to clamp to the window size, got %v", b.State())
	}
}

func TestWindowType_String(t *testing.T) {
	if CountBased.String() != "count" || TimeBased.String() != "time" {
		t.Errorf("unexpected window type names: %q, %q", CountBased, TimeBased)
	}
	if WindowType(9).String() != "unknown" {
		t.Errorf("expected unknown for out-of-range window type")
	}
}
