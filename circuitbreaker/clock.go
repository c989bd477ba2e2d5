package circuitbreaker

import "time"

// Clock is the time source used for window bucketing and the open-state
// expiry. Injectable so tests can control time without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock backed by time.Now.
var SystemClock Clock = systemClock{}

// Scheduler runs a callback after a delay. It is used solely for the
// optional automatic open-to-half-open transition. The returned cancel
// function stops a pending callback; calling it after the callback has
// fired is a no-op.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type timerScheduler struct{}

func (timerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// TimerScheduler is the default Scheduler backed by time.AfterFunc.
var TimerScheduler Scheduler = timerScheduler{}
