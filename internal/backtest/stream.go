package backtest

import (
	"container/heap"

	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/value"
)

// eventKind discriminates which field of marketEvent is populated.
type eventKind int

const (
	eventQuote eventKind = iota
	eventTrade
	eventBar
)

// marketEvent is one tick from the merged input streams, which are ordered
// by ts_event_ns, then stream priority, then insertion order.
type marketEvent struct {
	kind  eventKind
	quote data.QuoteTick
	trade data.TradeTick
	bar   data.Bar
}

func (m marketEvent) tsEventNs() int64 {
	switch m.kind {
	case eventQuote:
		return m.quote.TsEventNs
	case eventTrade:
		return m.trade.TsEventNs
	default:
		return m.bar.TsEventNs
	}
}

func (m marketEvent) instrumentId() value.InstrumentId {
	switch m.kind {
	case eventQuote:
		return m.quote.InstrumentId
	case eventTrade:
		return m.trade.InstrumentId
	default:
		return m.bar.InstrumentId
	}
}

// source yields a single registered stream's events in the order they were
// added (each stream is assumed pre-sorted by ts_event_ns, as the real
// venue/history feed would produce it).
type source interface {
	peek() (int64, bool)
	next() marketEvent
}

type quoteSource struct {
	ticks []data.QuoteTick
	i     int
}

func (s *quoteSource) peek() (int64, bool) {
	if s.i >= len(s.ticks) {
		return 0, false
	}
	return s.ticks[s.i].TsEventNs, true
}

func (s *quoteSource) next() marketEvent {
	e := marketEvent{kind: eventQuote, quote: s.ticks[s.i]}
	s.i++
	return e
}

type tradeSource struct {
	ticks []data.TradeTick
	i     int
}

func (s *tradeSource) peek() (int64, bool) {
	if s.i >= len(s.ticks) {
		return 0, false
	}
	return s.ticks[s.i].TsEventNs, true
}

func (s *tradeSource) next() marketEvent {
	e := marketEvent{kind: eventTrade, trade: s.ticks[s.i]}
	s.i++
	return e
}

type barSource struct {
	bars []data.Bar
	i    int
}

func (s *barSource) peek() (int64, bool) {
	if s.i >= len(s.bars) {
		return 0, false
	}
	return s.bars[s.i].TsEventNs, true
}

func (s *barSource) next() marketEvent {
	e := marketEvent{kind: eventBar, bar: s.bars[s.i]}
	s.i++
	return e
}

// streamHandle pairs a source with the stream priority and insertion
// sequence used to break ts_event_ns ties (§5 "ties break by stream
// priority then insertion order").
type streamHandle struct {
	src      source
	priority int
	seq      uint64
}

type eventHeap []*streamHandle

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	ti, _ := h[i].src.peek()
	tj, _ := h[j].src.peek()
	if ti != tj {
		return ti < tj
	}
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*streamHandle)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeStreams heap-merges every registered stream into one monotone
// sequence ordered by ts_event_ns, breaking ties by stream priority then
// insertion order (§5).
func mergeStreams(handles []*streamHandle) []marketEvent {
	h := &eventHeap{}
	heap.Init(h)
	for _, handle := range handles {
		if _, ok := handle.src.peek(); ok {
			heap.Push(h, handle)
		}
	}

	var out []marketEvent
	for h.Len() > 0 {
		handle := heap.Pop(h).(*streamHandle)
		out = append(out, handle.src.next())
		if _, ok := handle.src.peek(); ok {
			heap.Push(h, handle)
		}
	}
	return out
}
