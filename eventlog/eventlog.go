// Package eventlog consumes circuit breaker events and writes them as
// structured log records, optionally to a size-rotated file. It is the
// default subscriber wired onto the breaker event channel by hosts that
// want a durable event trail.
package eventlog

import (
	"log/slog"

	"github.com/SiftScience/resilience4j/circuitbreaker"
)

// NewHandler returns an event handler that logs every breaker event through
// logger. Outcome events log at debug, denials and failures at warn, and
// transitions and resets at info. The handler does not call back into the
// breaker, as the event contract requires.
func NewHandler(logger *slog.Logger) circuitbreaker.EventHandler {
	return func(ev circuitbreaker.Event) {
		switch ev.Kind {
		case circuitbreaker.EventStateTransition:
			logger.Info("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
				"from", ev.From.String(),
				"to", ev.To.String(),
			)
		case circuitbreaker.EventReset:
			logger.Info("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
				"from", ev.From.String(),
			)
		case circuitbreaker.EventNotPermitted:
			logger.Warn("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
			)
		case circuitbreaker.EventFailure:
			logger.Warn("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
				"elapsed", ev.Elapsed,
				"error", ev.Err,
			)
		case circuitbreaker.EventIgnoredError:
			logger.Debug("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
				"elapsed", ev.Elapsed,
				"error", ev.Err,
			)
		case circuitbreaker.EventSuccess, circuitbreaker.EventPermissionAcquired:
			logger.Debug("breaker event",
				"event", ev.Kind.String(),
				"breaker", ev.Instance,
				"elapsed", ev.Elapsed,
			)
		}
	}
}
