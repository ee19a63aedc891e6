// Package clock provides the two time sources spec.md §4.7 requires: a
// wall-clock for live trading and a virtual test-clock for backtesting, both
// behind one interface so the rest of the kernel never knows which it has.
// A Clock handle is constructed once and passed into every engine and
// strategy (§9 "Global clock"); there is no package-level singleton.
package clock

import "github.com/nautilus-go/kernel/internal/kernelerr"

// Handler is invoked when a timer or alarm fires.
type Handler func(event TimerEvent)

// TimerEvent names the timer/alarm that fired and the nanosecond timestamp
// at which it fired (the scheduled fire time, not wall-clock read time).
type TimerEvent struct {
	Name       string
	TsEventNs  int64
}

// Clock is the shared interface LiveClock and TestClock both satisfy.
type Clock interface {
	// TimestampNs returns the current time in nanoseconds since the Unix
	// epoch. Non-decreasing across calls (§8 invariant 4).
	TimestampNs() int64

	// SetTimer schedules a recurring timer firing every interval, optionally
	// bounded by [startNs, stopNs], both ends inclusive (a tick falling
	// exactly on stopNs still fires). A nil start fires the first tick one
	// interval from now; a nil stop runs until canceled.
	SetTimer(name string, intervalNs int64, startNs, stopNs *int64, handler Handler) error

	// SetAlarm schedules a one-shot callback at atNs.
	SetAlarm(name string, atNs int64, handler Handler) error

	// Cancel removes a timer or alarm by name. Idempotent: canceling an
	// unknown or already-fired name is a no-op, never an error.
	Cancel(name string)

	// CancelAll removes every scheduled timer/alarm.
	CancelAll()

	// TimerNames returns the names of all currently-scheduled timers/alarms,
	// for diagnostics and tests.
	TimerNames() []string
}

// entry is the internal bookkeeping shared by both Clock implementations.
type entry struct {
	name       string
	intervalNs int64 // 0 for a one-shot alarm
	nextFireNs int64
	stopNs     *int64
	handler    Handler
	seq        uint64 // insertion sequence, used to break (fire_time_ns) ties deterministically
}

func validateName(name string) error {
	if name == "" {
		return kernelerr.NewValidation("EMPTY_TIMER_NAME", "timer/alarm name must not be empty")
	}
	return nil
}
