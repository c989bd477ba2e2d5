// Package circuitbreaker implements a sliding-window circuit breaker state
// machine. A breaker grants permissions to execute protected calls, records
// their outcomes in a bounded window, and transitions between states based on
// failure and slow-call rates computed over that window.
package circuitbreaker

// State represents the circuit breaker state.
type State int

const (
	StateClosed     State = iota // Normal operation; permissions granted, outcomes recorded.
	StateOpen                    // Failing; permissions denied until the open expiry elapses.
	StateHalfOpen                // Probing; a bounded number of trial permissions allowed.
	StateDisabled                // Always grants; nothing is recorded.
	StateForcedOpen              // Always denies; nothing is recorded.
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	case StateDisabled:
		return "disabled"
	case StateForcedOpen:
		return "forced-open"
	default:
		return "unknown"
	}
}

// ParseState converts a state name as produced by State.String back to a
// State. Returns false for unrecognized names.
func ParseState(name string) (State, bool) {
	switch name {
	case "closed":
		return StateClosed, true
	case "open":
		return StateOpen, true
	case "half-open":
		return StateHalfOpen, true
	case "disabled":
		return StateDisabled, true
	case "forced-open":
		return StateForcedOpen, true
	default:
		return State(-1), false
	}
}
