// Package bus implements the kernel's MessageBus: a process-local hub that
// is the only channel of communication between engines (§4.2, §9 "Cyclic
// references" — engines reference the bus and the cache, never each
// other). Delivery is synchronous and in-order on the publisher's
// goroutine; the bus never copies payloads.
package bus

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Handler receives a message published on a topic the subscriber matched,
// or a point-to-point send/request/response delivered to an endpoint.
type Handler func(topic string, payload any)

// SubscriptionHandle identifies a live subscription for Unsubscribe.
type SubscriptionHandle uint64

type subscription struct {
	handle   SubscriptionHandle
	pattern  string
	handler  Handler
	priority int
	seq      uint64
}

type pendingResponse struct {
	handler Handler
}

// MessageBus is the single hub every engine and strategy is constructed
// with. It owns no reference back to any engine — per §9, the dependency
// points one way only.
type MessageBus struct {
	mu          sync.Mutex
	subs        []*subscription
	endpoints   map[string]Handler
	pending     map[string]pendingResponse
	nextHandle  SubscriptionHandle
	nextSeq     uint64
	nextCorrId  uint64
	logger      *slog.Logger
}

// New creates an empty MessageBus.
func New(logger *slog.Logger) *MessageBus {
	return &MessageBus{
		endpoints: make(map[string]Handler),
		pending:   make(map[string]pendingResponse),
		logger:    logger.With("component", "message-bus"),
	}
}

// Subscribe registers handler for every topic matching pattern (dotted
// segments, "*" a single-segment wildcard). Higher priority subscribers run
// first; ties break by subscription order (§4.2).
func (b *MessageBus) Subscribe(pattern string, priority int, handler Handler) SubscriptionHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextHandle++
	h := b.nextHandle
	b.nextSeq++
	sub := &subscription{handle: h, pattern: pattern, handler: handler, priority: priority, seq: b.nextSeq}
	b.subs = append(b.subs, sub)
	sort.SliceStable(b.subs, func(i, j int) bool {
		if b.subs[i].priority != b.subs[j].priority {
			return b.subs[i].priority > b.subs[j].priority
		}
		return b.subs[i].seq < b.subs[j].seq
	})
	return h
}

// Unsubscribe removes a previously registered subscription. Idempotent.
func (b *MessageBus) Unsubscribe(handle SubscriptionHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.handle == handle {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers payload synchronously, in priority-then-subscription
// order, to every subscriber whose pattern matches topic. A handler that
// panics or is otherwise caught misbehaving does not stop delivery to the
// remaining subscribers; the failure is captured and republished on
// "events.error" (§4.2).
func (b *MessageBus) Publish(topic string, payload any) {
	b.mu.Lock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if matchTopic(s.pattern, topic) {
			matched = append(matched, s)
		}
	}
	b.mu.Unlock()

	for _, s := range matched {
		b.dispatch(s.handler, topic, payload)
	}
}

func (b *MessageBus) dispatch(handler Handler, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber handler panicked", "topic", topic, "panic", r)
			if topic != "events.error" {
				b.Publish("events.error", fmt.Errorf("handler panic on topic %s: %v", topic, r))
			}
		}
	}()
	handler(topic, payload)
}

// RegisterEndpoint binds a single handler to a point-to-point endpoint name,
// used by Send and as the delivery target of Request.
func (b *MessageBus) RegisterEndpoint(endpoint string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[endpoint] = handler
}

// Send delivers payload to the single handler registered at endpoint,
// point-to-point (no pattern matching, no fan-out).
func (b *MessageBus) Send(endpoint string, payload any) {
	b.mu.Lock()
	handler, ok := b.endpoints[endpoint]
	b.mu.Unlock()
	if !ok {
		b.logger.Warn("send to unregistered endpoint dropped", "endpoint", endpoint)
		return
	}
	b.dispatch(handler, endpoint, payload)
}

// Request delivers payload to endpoint's handler tagged with a fresh
// correlation id (passed as the handler's topic argument), and registers
// onResponse as the sink for the matching Response call; the endpoint
// answers by calling Response with that id. Returns the correlation id.
func (b *MessageBus) Request(endpoint string, payload any, onResponse Handler) string {
	b.mu.Lock()
	b.nextCorrId++
	corrId := "req-" + strconv.FormatUint(b.nextCorrId, 10)
	b.pending[corrId] = pendingResponse{handler: onResponse}
	handler, ok := b.endpoints[endpoint]
	b.mu.Unlock()

	if !ok {
		b.logger.Warn("request to unregistered endpoint dropped", "endpoint", endpoint)
		return corrId
	}
	b.dispatch(handler, corrId, payload)
	return corrId
}

// Response fulfills a pending Request by correlation id, invoking the
// registered sink exactly once. Responding to an unknown or already-answered
// correlation id is a no-op.
func (b *MessageBus) Response(correlationId string, payload any) {
	b.mu.Lock()
	pr, ok := b.pending[correlationId]
	if ok {
		delete(b.pending, correlationId)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	b.dispatch(pr.handler, correlationId, payload)
}

// matchTopic reports whether a dotted topic matches a dotted pattern, where
// "*" in the pattern matches exactly one segment.
func matchTopic(pattern, topic string) bool {
	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")
	if len(pSegs) != len(tSegs) {
		return false
	}
	for i, p := range pSegs {
		if p != "*" && p != tSegs[i] {
			return false
		}
	}
	return true
}
