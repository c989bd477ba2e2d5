package circuitbreaker

import (
	"errors"
	"fmt"
	"time"
)

// WindowType selects how the sliding window bounds its observations.
type WindowType int

const (
	CountBased WindowType = iota // last N call outcomes
	TimeBased                    // outcomes of the last N seconds
)

// String returns a human-readable window type name.
func (w WindowType) String() string {
	switch w {
	case CountBased:
		return "count"
	case TimeBased:
		return "time"
	default:
		return "unknown"
	}
}

// Config holds all circuit breaker parameters. A zero value for any field
// means "use the default". The config is validated and copied at breaker
// construction; changing it afterwards has no effect on a running breaker.
type Config struct {
	// FailureRateThreshold is the failure rate in percent at or above which
	// the breaker opens. Must be in (0, 100]. Default: 50.
	FailureRateThreshold float64

	// SlowCallRateThreshold is the slow-call rate in percent at or above
	// which the breaker opens. Must be in (0, 100]. Default: 100.
	SlowCallRateThreshold float64

	// SlowCallDurationThreshold is the elapsed duration at or above which a
	// call counts as slow. Default: 60s.
	SlowCallDurationThreshold time.Duration

	// WaitDurationInOpenState is how long the breaker stays open before a
	// half-open probe is allowed. Must be at least 1ms. Default: 60s.
	WaitDurationInOpenState time.Duration

	// SlidingWindowType selects count-based or time-based windowing.
	// Default: CountBased.
	SlidingWindowType WindowType

	// SlidingWindowSize is the window size: number of calls for count-based
	// windows, number of seconds for time-based windows. Default: 100.
	SlidingWindowSize int

	// MinimumNumberOfCalls is the floor below which failure and slow-call
	// rates are undefined and cannot trigger a transition. Default: 100.
	MinimumNumberOfCalls int

	// PermittedNumberOfCallsInHalfOpen bounds the trial calls allowed in the
	// half-open state. Default: 10.
	PermittedNumberOfCallsInHalfOpen int

	// AutomaticTransitionFromOpenToHalfOpen moves the breaker to half-open
	// via the scheduler when the open expiry elapses, instead of waiting for
	// the next AcquirePermission. Default: false.
	AutomaticTransitionFromOpenToHalfOpen bool

	// WritableStackTrace controls whether CallNotPermittedError captures a
	// stack trace. Defaults to true; set to a false pointer to keep denial
	// errors allocation-light on hot paths.
	WritableStackTrace *bool

	// RecordFailurePredicate decides whether a recordable error counts as a
	// failure. Defaults to recording every error. A predicate panic is
	// treated as false: the panic is logged through the breaker's logger
	// and the error is published as an ignored-error event.
	RecordFailurePredicate func(error) bool

	// RecordErrors restricts failure recording to errors matching (via
	// errors.Is) one of these values. Empty means every not-ignored error
	// is a candidate.
	RecordErrors []error

	// IgnoreErrors lists errors (matched via errors.Is) that are neither
	// failures nor successes; they release the permission without touching
	// the window.
	IgnoreErrors []error
}

// DefaultConfig returns a Config populated with the documented defaults.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.FailureRateThreshold == 0 {
		c.FailureRateThreshold = 50
	}
	if c.SlowCallRateThreshold == 0 {
		c.SlowCallRateThreshold = 100
	}
	if c.SlowCallDurationThreshold == 0 {
		c.SlowCallDurationThreshold = 60 * time.Second
	}
	if c.WaitDurationInOpenState == 0 {
		c.WaitDurationInOpenState = 60 * time.Second
	}
	if c.SlidingWindowSize == 0 {
		c.SlidingWindowSize = 100
	}
	if c.MinimumNumberOfCalls == 0 {
		c.MinimumNumberOfCalls = 100
	}
	if c.PermittedNumberOfCallsInHalfOpen == 0 {
		c.PermittedNumberOfCallsInHalfOpen = 10
	}
	if c.RecordFailurePredicate == nil {
		c.RecordFailurePredicate = func(error) bool { return true }
	}
}

func (c *Config) validate() error {
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100 {
		return fmt.Errorf("failure_rate_threshold must be between 0 (exclusive) and 100 (inclusive), got %v", c.FailureRateThreshold)
	}
	if c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 100 {
		return fmt.Errorf("slow_call_rate_threshold must be between 0 (exclusive) and 100 (inclusive), got %v", c.SlowCallRateThreshold)
	}
	if c.SlowCallDurationThreshold < time.Nanosecond {
		return fmt.Errorf("slow_call_duration_threshold must be positive, got %v", c.SlowCallDurationThreshold)
	}
	if c.WaitDurationInOpenState < time.Millisecond {
		return fmt.Errorf("wait_duration_in_open_state must be at least 1ms, got %v", c.WaitDurationInOpenState)
	}
	if c.SlidingWindowType != CountBased && c.SlidingWindowType != TimeBased {
		return fmt.Errorf("sliding_window_type must be count or time, got %d", c.SlidingWindowType)
	}
	if c.SlidingWindowSize < 1 {
		return fmt.Errorf("sliding_window_size must be at least 1, got %d", c.SlidingWindowSize)
	}
	if c.MinimumNumberOfCalls < 1 {
		return fmt.Errorf("minimum_number_of_calls must be at least 1, got %d", c.MinimumNumberOfCalls)
	}
	if c.PermittedNumberOfCallsInHalfOpen < 1 {
		return fmt.Errorf("permitted_number_of_calls_in_half_open must be at least 1, got %d", c.PermittedNumberOfCallsInHalfOpen)
	}
	return nil
}

// Validate applies defaults to a copy and checks every field range,
// returning an error naming the offending field. New performs the same
// check; Validate lets binding layers reject bad configs before any
// breaker is constructed.
func (c Config) Validate() error {
	c.applyDefaults()
	return c.validate()
}

// stackTraceEnabled reports whether CallNotPermittedError should capture a
// stack trace (defaults to true).
func (c *Config) stackTraceEnabled() bool {
	if c.WritableStackTrace == nil {
		return true
	}
	return *c.WritableStackTrace
}

// outcomeKind is the classification of a reported error.
type outcomeKind int

const (
	outcomeFailure outcomeKind = iota
	outcomeIgnored
)

// classify applies the ignore list, record list, and failure predicate to a
// reported error. The predicate is invoked through safePredicate by the
// breaker so a panicking user predicate cannot take the breaker down.
func (c *Config) classify(err error, predicate func(error) bool) outcomeKind {
	for _, ig := range c.IgnoreErrors {
		if errors.Is(err, ig) {
			return outcomeIgnored
		}
	}
	matched := len(c.RecordErrors) == 0
	if !matched {
		for _, re := range c.RecordErrors {
			if errors.Is(err, re) {
				matched = true
				break
			}
		}
	}
	if matched && predicate(err) {
		return outcomeFailure
	}
	return outcomeIgnored
}
