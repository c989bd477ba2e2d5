package circuitbreaker

import "fmt"

// CallNotPermittedError is returned by AcquirePermission when the breaker
// denies the call. It carries the instance name and the state at denial
// time. When the breaker's writable stack trace setting is enabled, Stack
// holds the goroutine stack captured at the denial site; otherwise it is nil.
type CallNotPermittedError struct {
	Instance string
	State    State
	Stack    []byte
}

func (e *CallNotPermittedError) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s and does not permit further calls", e.Instance, e.State)
}
