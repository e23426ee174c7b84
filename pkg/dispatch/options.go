package dispatch

import (
	"log/slog"
	"time"

	"github.com/opennarrator/narrator/pkg/core"
	"github.com/opennarrator/narrator/pkg/schedule"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPollInterval sets the claim cadence.
func WithPollInterval(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.pollInterval = d
		}
	}
}

// WithMaxConcurrent bounds how many jobs run at once.
func WithMaxConcurrent(n int) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.maxConcurrent = n
		}
	}
}

// WithDrainTimeout bounds how long Stop waits before cancelling jobs.
func WithDrainTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.drainTimeout = d
		}
	}
}

// WithBroadcaster sets the progress broadcaster.
func WithBroadcaster(b core.Broadcaster) Option {
	return func(disp *Dispatcher) { disp.broadcaster = b }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.log = log }
}

// WithRetention enables the periodic deletion of terminal jobs older than
// age, running on the given schedule.
func WithRetention(age time.Duration, sched schedule.Schedule) Option {
	return func(disp *Dispatcher) {
		disp.retentionAge = age
		disp.retentionSchedule = sched
	}
}
