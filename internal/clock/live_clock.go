package clock

import (
	"sync"
	"time"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// LiveClock reads the real wall clock and schedules timers/alarms with
// time.Timer, the same primitive the teacher's rate limiter and websocket
// ping loop build on (internal/exchange/ratelimit.go, internal/api/stream.go).
type LiveClock struct {
	mu      sync.Mutex
	timers  map[string]*liveTimer
}

type liveTimer struct {
	stop chan struct{}
}

// NewLiveClock creates a wall-clock backed Clock for live trading.
func NewLiveClock() *LiveClock {
	return &LiveClock{timers: make(map[string]*liveTimer)}
}

func (c *LiveClock) TimestampNs() int64 {
	return time.Now().UnixNano()
}

func (c *LiveClock) SetTimer(name string, intervalNs int64, startNs, stopNs *int64, handler Handler) error {
	if err := validateName(name); err != nil {
		return err
	}
	if intervalNs <= 0 {
		return kernelerr.NewValidation("INVALID_TIMER_INTERVAL", "timer interval must be > 0")
	}
	c.mu.Lock()
	if _, exists := c.timers[name]; exists {
		c.mu.Unlock()
		return kernelerr.NewValidation("TIMER_NAME_IN_USE", "timer "+name+" is already scheduled")
	}
	lt := &liveTimer{stop: make(chan struct{})}
	c.timers[name] = lt
	c.mu.Unlock()

	interval := time.Duration(intervalNs)
	go func() {
		if startNs != nil {
			delay := time.Duration(*startNs - time.Now().UnixNano())
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-lt.stop:
					return
				}
			}
		} else {
			select {
			case <-time.After(interval):
			case <-lt.stop:
				return
			}
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			now := time.Now().UnixNano()
			if stopNs != nil && now > *stopNs {
				c.Cancel(name)
				return
			}
			handler(TimerEvent{Name: name, TsEventNs: now})
			select {
			case <-ticker.C:
			case <-lt.stop:
				return
			}
		}
	}()
	return nil
}

func (c *LiveClock) SetAlarm(name string, atNs int64, handler Handler) error {
	if err := validateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.timers[name]; exists {
		c.mu.Unlock()
		return kernelerr.NewValidation("TIMER_NAME_IN_USE", "alarm "+name+" is already scheduled")
	}
	lt := &liveTimer{stop: make(chan struct{})}
	c.timers[name] = lt
	c.mu.Unlock()

	delay := time.Duration(atNs - time.Now().UnixNano())
	go func() {
		select {
		case <-time.After(delay):
			c.Cancel(name)
			handler(TimerEvent{Name: name, TsEventNs: time.Now().UnixNano()})
		case <-lt.stop:
		}
	}()
	return nil
}

func (c *LiveClock) Cancel(name string) {
	c.mu.Lock()
	lt, ok := c.timers[name]
	if ok {
		delete(c.timers, name)
	}
	c.mu.Unlock()
	if ok {
		close(lt.stop)
	}
}

func (c *LiveClock) CancelAll() {
	c.mu.Lock()
	names := make([]string, 0, len(c.timers))
	for n := range c.timers {
		names = append(names, n)
	}
	c.mu.Unlock()
	for _, n := range names {
		c.Cancel(n)
	}
}

func (c *LiveClock) TimerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.timers))
	for n := range c.timers {
		names = append(names, n)
	}
	return names
}
