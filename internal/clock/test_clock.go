package clock

import (
	"sort"
	"sync"

	"github.com/nautilus-go/kernel/internal/kernelerr"
)

// TestClock is a virtual clock driven entirely by AdvanceTime — it never
// reads the wall clock (§4.7: "No wall reads are permitted on a test-clock").
// The backtest driver (internal/backtest) owns the only TestClock instance
// and advances it as it heap-merges data streams (§5).
type TestClock struct {
	mu      sync.Mutex
	nowNs   int64
	entries map[string]*entry
	nextSeq uint64
}

// NewTestClock creates a TestClock starting at startNs (typically the first
// event's ts_event_ns in a backtest run).
func NewTestClock(startNs int64) *TestClock {
	return &TestClock{nowNs: startNs, entries: make(map[string]*entry)}
}

func (c *TestClock) TimestampNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowNs
}

func (c *TestClock) SetTimer(name string, intervalNs int64, startNs, stopNs *int64, handler Handler) error {
	if err := validateName(name); err != nil {
		return err
	}
	if intervalNs <= 0 {
		return kernelerr.NewValidation("INVALID_TIMER_INTERVAL", "timer interval must be > 0")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name]; exists {
		return kernelerr.NewValidation("TIMER_NAME_IN_USE", "timer "+name+" is already scheduled")
	}
	first := c.nowNs + intervalNs
	if startNs != nil {
		first = *startNs
	}
	c.entries[name] = &entry{name: name, intervalNs: intervalNs, nextFireNs: first, stopNs: stopNs, handler: handler, seq: c.nextSeq}
	c.nextSeq++
	return nil
}

func (c *TestClock) SetAlarm(name string, atNs int64, handler Handler) error {
	if err := validateName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[name]; exists {
		return kernelerr.NewValidation("TIMER_NAME_IN_USE", "alarm "+name+" is already scheduled")
	}
	c.entries[name] = &entry{name: name, nextFireNs: atNs, handler: handler, seq: c.nextSeq}
	c.nextSeq++
	return nil
}

func (c *TestClock) Cancel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

func (c *TestClock) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

func (c *TestClock) TimerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AdvanceTime moves the clock forward to toNs and returns every timer/alarm
// event that fired in [oldNow, toNs], ordered by (fire_time_ns, insertion_seq)
// per §4.7's determinism requirement. Handlers are invoked in that same
// order before this call returns, so callers that publish fired events on
// the bus get them in the documented order for free.
func (c *TestClock) AdvanceTime(toNs int64) []TimerEvent {
	c.mu.Lock()
	if toNs < c.nowNs {
		c.mu.Unlock()
		panic(kernelerr.NewInvariant("CLOCK_MOVED_BACKWARD", "AdvanceTime called with a time before the current clock time"))
	}

	var fired []TimerEvent
	type firing struct {
		e    *entry
		fire int64
	}
	var firings []firing

	for _, e := range c.entries {
		fireAt := e.nextFireNs
		for fireAt <= toNs {
			if e.stopNs != nil && fireAt > *e.stopNs {
				break
			}
			firings = append(firings, firing{e: e, fire: fireAt})
			if e.intervalNs == 0 {
				break // one-shot alarm fires at most once
			}
			fireAt += e.intervalNs
		}
	}

	sort.Slice(firings, func(i, j int) bool {
		if firings[i].fire != firings[j].fire {
			return firings[i].fire < firings[j].fire
		}
		return firings[i].e.seq < firings[j].e.seq
	})

	for _, f := range firings {
		fired = append(fired, TimerEvent{Name: f.e.name, TsEventNs: f.fire})
	}

	// Update next-fire times / remove expired one-shots and exhausted timers.
	for _, e := range c.entries {
		for e.nextFireNs <= toNs {
			if e.intervalNs == 0 {
				delete(c.entries, e.name)
				break
			}
			if e.stopNs != nil && e.nextFireNs > *e.stopNs {
				delete(c.entries, e.name)
				break
			}
			e.nextFireNs += e.intervalNs
		}
	}

	c.nowNs = toNs
	handlers := make([]Handler, len(fired))
	for i, f := range fired {
		for _, fr := range firings {
			if fr.e.name == f.Name && fr.fire == f.TsEventNs {
				handlers[i] = fr.e.handler
				break
			}
		}
	}
	c.mu.Unlock()

	for i, h := range handlers {
		if h != nil {
			h(fired[i])
		}
	}
	return fired
}
