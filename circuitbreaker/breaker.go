package circuitbreaker

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/SiftScience/resilience4j/internal/metrics"
)

// Permission is the token granting one caller the right to execute a
// protected call. It must be returned through OnSuccess, OnError, or
// ReleasePermission. The zero value is never a valid permission.
type Permission struct {
	generation uint64
}

// CircuitBreaker is a sliding-window circuit breaker. A single instance
// serves many concurrent callers; all operations are non-blocking apart
// from the internal lock.
type CircuitBreaker struct {
	name      string
	cfg       Config
	logger    *slog.Logger
	clock     Clock
	scheduler Scheduler
	onEvent   EventHandler

	mu           sync.Mutex
	state        State
	generation   uint64
	win          window
	openExpiry   time.Time
	cancelTimer  func()
	outstanding  int // half-open permits granted but unresolved
	resolved     int // half-open outcomes recorded this generation
	notPermitted int64
}

// Option customizes a CircuitBreaker at construction.
type Option func(*CircuitBreaker)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *CircuitBreaker) { b.logger = logger }
}

// WithClock injects the time source used for window bucketing and the open
// expiry. Defaults to SystemClock.
func WithClock(clock Clock) Option {
	return func(b *CircuitBreaker) { b.clock = clock }
}

// WithScheduler injects the scheduler used for the automatic
// open-to-half-open transition. Defaults to TimerScheduler.
func WithScheduler(s Scheduler) Option {
	return func(b *CircuitBreaker) { b.scheduler = s }
}

// WithEventHandler registers the event publish hook.
func WithEventHandler(h EventHandler) Option {
	return func(b *CircuitBreaker) { b.onEvent = h }
}

// New creates a circuit breaker with the given name and configuration.
// Missing config fields take their defaults; out-of-range fields fail
// construction with an error naming the field. The breaker starts closed.
func New(name string, cfg Config, opts ...Option) (*CircuitBreaker, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// A count-based window can never hold more than its size, so a higher
	// minimum would make rates permanently undefined.
	if cfg.SlidingWindowType == CountBased && cfg.MinimumNumberOfCalls > cfg.SlidingWindowSize {
		cfg.MinimumNumberOfCalls = cfg.SlidingWindowSize
	}

	b := &CircuitBreaker{
		name:       name,
		cfg:        cfg,
		logger:     slog.Default(),
		clock:      SystemClock,
		scheduler:  TimerScheduler,
		state:      StateClosed,
		generation: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.win = b.newMainWindow()

	metrics.BreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return b, nil
}

// Name returns the instance name carried by events and denial errors.
func (b *CircuitBreaker) Name() string { return b.name }

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns the current window aggregate plus the not-permitted call
// counter.
func (b *CircuitBreaker) Metrics() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.win.snapshot()
	snap.NotPermittedCalls = b.notPermitted
	return snap
}

// AcquirePermission grants or denies the right to execute one protected
// call. On denial the returned error is a *CallNotPermittedError carrying
// the instance name and current state. A granted permission must be
// resolved via OnSuccess, OnError, or ReleasePermission.
func (b *CircuitBreaker) AcquirePermission() (Permission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateDisabled:
		return b.grantLocked(), nil

	case StateForcedOpen:
		return Permission{}, b.denyLocked()

	case StateOpen:
		if b.clock.Now().Before(b.openExpiry) {
			return Permission{}, b.denyLocked()
		}
		// Expiry reached: lazy transition to half-open and grant the
		// first probe permit.
		b.transitionLocked(StateHalfOpen)
		b.outstanding++
		return b.grantLocked(), nil

	case StateHalfOpen:
		if b.outstanding+b.resolved < b.cfg.PermittedNumberOfCallsInHalfOpen {
			b.outstanding++
			return b.grantLocked(), nil
		}
		return Permission{}, b.denyLocked()

	default:
		return Permission{}, b.denyLocked()
	}
}

// grantLocked issues a permission bound to the current generation.
func (b *CircuitBreaker) grantLocked() Permission {
	b.publishLocked(Event{Kind: EventPermissionAcquired, Instance: b.name, Time: b.clock.Now()})
	return Permission{generation: b.generation}
}

// denyLocked counts and reports a not-permitted call.
func (b *CircuitBreaker) denyLocked() error {
	b.notPermitted++
	metrics.BreakerNotPermitted.WithLabelValues(b.name).Inc()
	b.publishLocked(Event{Kind: EventNotPermitted, Instance: b.name, Time: b.clock.Now()})

	err := &CallNotPermittedError{Instance: b.name, State: b.state}
	if b.cfg.stackTraceEnabled() {
		err.Stack = debug.Stack()
	}
	return err
}

// OnSuccess records a successful call outcome. Outcomes reported under a
// stale generation are discarded.
func (b *CircuitBreaker) OnSuccess(elapsed time.Duration, perm Permission) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perm.generation != b.generation {
		return
	}

	switch b.state {
	case StateClosed, StateHalfOpen:
		metrics.BreakerCalls.WithLabelValues(b.name, "success").Inc()
		b.publishLocked(Event{Kind: EventSuccess, Instance: b.name, Time: b.clock.Now(), Elapsed: elapsed})
		b.recordLocked(false, elapsed)
	}
}

// OnError classifies err, records the outcome, and re-evaluates the
// transition predicate. The caller re-raises its own error unchanged; the
// breaker never wraps or swallows it.
func (b *CircuitBreaker) OnError(elapsed time.Duration, err error, perm Permission) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perm.generation != b.generation {
		return
	}

	switch b.state {
	case StateClosed, StateHalfOpen:
	default:
		return
	}

	if b.cfg.classify(err, b.safePredicate) == outcomeIgnored {
		metrics.BreakerCalls.WithLabelValues(b.name, "ignored").Inc()
		b.publishLocked(Event{Kind: EventIgnoredError, Instance: b.name, Time: b.clock.Now(), Elapsed: elapsed, Err: err})
		// An ignored error returns the half-open permit without consuming it.
		if b.state == StateHalfOpen && b.outstanding > 0 {
			b.outstanding--
		}
		return
	}

	metrics.BreakerCalls.WithLabelValues(b.name, "failure").Inc()
	b.publishLocked(Event{Kind: EventFailure, Instance: b.name, Time: b.clock.Now(), Elapsed: elapsed, Err: err})
	b.recordLocked(true, elapsed)
}

// ReleasePermission returns an acquired-but-unused permission. In half-open
// the permit becomes available to another caller; elsewhere it is a no-op.
func (b *CircuitBreaker) ReleasePermission(perm Permission) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if perm.generation != b.generation {
		return
	}
	if b.state == StateHalfOpen && b.outstanding > 0 {
		b.outstanding--
	}
}

// recordLocked feeds one resolved outcome into the window and runs the
// transition predicate. The caller that reports the threshold-crossing
// outcome performs the transition before its report returns.
func (b *CircuitBreaker) recordLocked(failed bool, elapsed time.Duration) {
	slow := elapsed >= b.cfg.SlowCallDurationThreshold
	if slow {
		metrics.BreakerSlowCalls.WithLabelValues(b.name).Inc()
	}
	snap := b.win.record(failed, slow, elapsed)

	switch b.state {
	case StateClosed:
		if b.thresholdExceeded(snap) {
			b.transitionLocked(StateOpen)
		}

	case StateHalfOpen:
		if b.outstanding > 0 {
			b.outstanding--
		}
		b.resolved++
		if b.resolved == b.cfg.PermittedNumberOfCallsInHalfOpen {
			if b.thresholdExceeded(snap) {
				b.transitionLocked(StateOpen)
			} else {
				b.transitionLocked(StateClosed)
			}
		}
	}
}

// thresholdExceeded reports whether either rate reached its threshold.
// Rates below the minimum call count are RateUnknown and never trigger.
func (b *CircuitBreaker) thresholdExceeded(snap Snapshot) bool {
	if snap.FailureRate != RateUnknown && snap.FailureRate >= b.cfg.FailureRateThreshold {
		return true
	}
	return snap.SlowCallRate != RateUnknown && snap.SlowCallRate >= b.cfg.SlowCallRateThreshold
}

// safePredicate runs the user failure predicate, treating a panic as false.
func (b *CircuitBreaker) safePredicate(err error) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("record failure predicate panicked, treating as not recorded",
				"breaker", b.name,
				"panic", r,
			)
			result = false
		}
	}()
	return b.cfg.RecordFailurePredicate(err)
}

// TransitionToClosed administratively closes the breaker. No-op (and no
// event) when already closed.
func (b *CircuitBreaker) TransitionToClosed() {
	b.adminTransition(StateClosed)
}

// TransitionToOpen administratively opens the breaker with a fresh expiry.
func (b *CircuitBreaker) TransitionToOpen() {
	b.adminTransition(StateOpen)
}

// TransitionToHalfOpen administratively moves the breaker to half-open.
func (b *CircuitBreaker) TransitionToHalfOpen() {
	b.adminTransition(StateHalfOpen)
}

// TransitionToDisabled stops all breaker behavior: every permission is
// granted and nothing is recorded until an explicit admin transition out.
func (b *CircuitBreaker) TransitionToDisabled() {
	b.adminTransition(StateDisabled)
}

// TransitionToForcedOpen denies every permission until an explicit admin
// transition out.
func (b *CircuitBreaker) TransitionToForcedOpen() {
	b.adminTransition(StateForcedOpen)
}

func (b *CircuitBreaker) adminTransition(to State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(to)
}

// Reset drops all observations and returns the breaker to closed,
// regardless of current state. Always starts a new generation.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.cancelTimerLocked()
	b.state = StateClosed
	b.generation++
	b.win = b.newMainWindow()
	b.outstanding = 0
	b.resolved = 0
	b.notPermitted = 0

	metrics.BreakerState.WithLabelValues(b.name).Set(float64(StateClosed))
	b.logger.Info("circuit breaker reset", "breaker", b.name, "from", from.String())
	b.publishLocked(Event{Kind: EventReset, Instance: b.name, Time: b.clock.Now(), From: from, To: StateClosed})
}

// transitionLocked changes state, starts a new generation, and applies the
// entry effects of the target state. Same-state transitions are no-ops so
// repeated admin calls stay idempotent. Must be called with b.mu held.
func (b *CircuitBreaker) transitionLocked(to State) {
	if b.state == to {
		return
	}

	from := b.state
	b.state = to
	b.generation++
	b.cancelTimerLocked()

	switch to {
	case StateClosed:
		b.win = b.newMainWindow()
		b.outstanding = 0
		b.resolved = 0

	case StateHalfOpen:
		// Half-open rates are computed over exactly the permitted probe
		// calls, so the window decision fires on the final outcome.
		permitted := b.cfg.PermittedNumberOfCallsInHalfOpen
		b.win = newCountWindow(permitted, permitted)
		b.outstanding = 0
		b.resolved = 0

	case StateOpen:
		b.openExpiry = b.clock.Now().Add(b.cfg.WaitDurationInOpenState)
		if b.cfg.AutomaticTransitionFromOpenToHalfOpen {
			gen := b.generation
			b.cancelTimer = b.scheduler.Schedule(b.cfg.WaitDurationInOpenState, func() {
				b.autoHalfOpen(gen)
			})
		}
	}

	metrics.BreakerTransitions.WithLabelValues(b.name, from.String(), to.String()).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(to))

	b.logger.Info("circuit breaker state change",
		"breaker", b.name,
		"from", from.String(),
		"to", to.String(),
	)
	b.publishLocked(Event{Kind: EventStateTransition, Instance: b.name, Time: b.clock.Now(), From: from, To: to})
}

// autoHalfOpen is the scheduler callback for the automatic open-to-half-open
// transition. Stale callbacks from a superseded generation are ignored.
func (b *CircuitBreaker) autoHalfOpen(gen uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generation != gen || b.state != StateOpen {
		return
	}
	b.transitionLocked(StateHalfOpen)
}

// cancelTimerLocked stops a pending auto-transition callback, if any.
// Must be called with b.mu held.
func (b *CircuitBreaker) cancelTimerLocked() {
	if b.cancelTimer != nil {
		b.cancelTimer()
		b.cancelTimer = nil
	}
}

func (b *CircuitBreaker) newMainWindow() window {
	if b.cfg.SlidingWindowType == TimeBased {
		return newTimeWindow(b.cfg.SlidingWindowSize, b.cfg.MinimumNumberOfCalls, b.clock)
	}
	return newCountWindow(b.cfg.SlidingWindowSize, b.cfg.MinimumNumberOfCalls)
}

func (b *CircuitBreaker) publishLocked(ev Event) {
	if b.onEvent != nil {
		b.onEvent(ev)
	}
}
