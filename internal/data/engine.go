package data

import (
	"log/slog"
	"sync"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/value"
)

// key identifies one registered aggregator: one instrument, one bar type.
type key struct {
	instId  value.InstrumentId
	barType BarType
}

// Engine is the DataEngine of §4.8: it republishes raw ticks/bars on the
// bus and, for any (instrument, bar type) pair a strategy has registered
// interest in, derives bars from the ticks it sees.
type Engine struct {
	bus    *bus.MessageBus
	logger *slog.Logger

	mu          sync.Mutex
	aggregators map[key]BarAggregator
}

// New builds a DataEngine publishing onto b.
func New(b *bus.MessageBus, logger *slog.Logger) *Engine {
	return &Engine{
		bus:         b,
		logger:      logger.With("component", "data-engine"),
		aggregators: make(map[key]BarAggregator),
	}
}

// RegisterBarAggregator wires agg to receive every tick the engine sees for
// instId, publishing synthesized bars under barType whenever a window
// closes.
func (e *Engine) RegisterBarAggregator(instId value.InstrumentId, barType BarType, agg BarAggregator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aggregators[key{instId: instId, barType: barType}] = agg
}

// ProcessQuoteTick republishes q and feeds it to any registered aggregators.
func (e *Engine) ProcessQuoteTick(q QuoteTick) {
	e.bus.Publish(bus.TopicDataQuotes(q.InstrumentId), q)
	e.feedAggregators(q.InstrumentId, func(a BarAggregator) (Bar, bool) { return a.OnQuoteTick(q) })
}

// ProcessTradeTick republishes t and feeds it to any registered aggregators.
func (e *Engine) ProcessTradeTick(t TradeTick) {
	e.bus.Publish(bus.TopicDataTrades(t.InstrumentId), t)
	e.feedAggregators(t.InstrumentId, func(a BarAggregator) (Bar, bool) { return a.OnTradeTick(t) })
}

// ProcessBar republishes an already-formed bar (from a venue's native bar
// feed, rather than one derived locally).
func (e *Engine) ProcessBar(b Bar) {
	e.bus.Publish(bus.TopicDataBars(string(b.BarType)), b)
}

// ProcessOrderBookDelta republishes one incremental book change.
func (e *Engine) ProcessOrderBookDelta(d OrderBookDelta) {
	e.bus.Publish(bus.TopicDataBook(d.InstrumentId), d)
}

func (e *Engine) feedAggregators(instId value.InstrumentId, feed func(BarAggregator) (Bar, bool)) {
	e.mu.Lock()
	matches := make(map[key]BarAggregator)
	for k, agg := range e.aggregators {
		if k.instId == instId {
			matches[k] = agg
		}
	}
	e.mu.Unlock()

	for k, agg := range matches {
		if bar, closed := feed(agg); closed {
			e.bus.Publish(bus.TopicDataBars(string(k.barType)), bar)
		}
	}
}
