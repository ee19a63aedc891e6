package data

import "github.com/nautilus-go/kernel/internal/value"

// LateTickPolicy controls how an aggregator handles a tick whose TsEventNs
// falls before the aggregator's last emitted window — possible in live mode
// (wall-clock jitter, feed arrives out of order) but not in replay mode
// (ticks arrive pre-sorted).
type LateTickPolicy int

const (
	// DropLateTicks discards a late tick entirely — the wall-clock default,
	// since a window that already closed cannot be reopened without
	// retroactively changing a bar a subscriber may already have consumed.
	DropLateTicks LateTickPolicy = iota
	// IncludeLateTicks folds a late tick into the window that is still open
	// (the replay default — ticks are resequenced upstream by the backtest
	// driver's heap-merge, so "late" here only means "before this
	// aggregator's current window started", which a full replay has already
	// accounted for).
	IncludeLateTicks
)

// BarAggregator consumes ticks and emits a Bar each time its window closes.
type BarAggregator interface {
	// OnQuoteTick feeds a quote tick (only used for mid-price aggregations).
	OnQuoteTick(q QuoteTick) (Bar, bool)
	// OnTradeTick feeds a trade tick (the common case — time/tick/volume/value bars).
	OnTradeTick(t TradeTick) (Bar, bool)
}

type window struct {
	open     bool
	o, h, l, c value.Price
	volume   value.Quantity
	startNs  int64
	lastNs   int64
}

func (w *window) reset(px value.Price, size value.Quantity, tsNs int64) {
	w.open = true
	w.o, w.h, w.l, w.c = px, px, px, px
	w.volume = size
	w.startNs = tsNs
	w.lastNs = tsNs
}

func (w *window) extend(px value.Price, size value.Quantity, tsNs int64) {
	if px.GreaterThan(w.h) {
		w.h = px
	}
	if px.LessThan(w.l) {
		w.l = px
	}
	w.c = px
	if sum, err := w.volume.Add(size); err == nil {
		w.volume = sum
	}
	w.lastNs = tsNs
}

func (w *window) bar(barType BarType, instId value.InstrumentId) Bar {
	return Bar{
		BarType: barType, InstrumentId: instId,
		Open: w.o, High: w.h, Low: w.l, Close: w.c, Volume: w.volume,
		TsEventNs: w.lastNs, TsInitNs: w.lastNs,
	}
}

// TimeBarAggregator closes its window every intervalNs of ts_event_ns,
// aligned to multiples of intervalNs since the epoch.
type TimeBarAggregator struct {
	barType    BarType
	instId     value.InstrumentId
	intervalNs int64
	late       LateTickPolicy
	w          window
}

func NewTimeBarAggregator(barType BarType, instId value.InstrumentId, intervalNs int64, late LateTickPolicy) *TimeBarAggregator {
	return &TimeBarAggregator{barType: barType, instId: instId, intervalNs: intervalNs, late: late}
}

func (a *TimeBarAggregator) windowStart(tsNs int64) int64 {
	return (tsNs / a.intervalNs) * a.intervalNs
}

func (a *TimeBarAggregator) onTick(px value.Price, size value.Quantity, tsNs int64) (Bar, bool) {
	start := a.windowStart(tsNs)

	if !a.w.open {
		a.w.reset(px, size, tsNs)
		a.w.startNs = start
		return Bar{}, false
	}

	if start < a.w.startNs {
		if a.late == DropLateTicks {
			return Bar{}, false
		}
		a.w.extend(px, size, tsNs)
		return Bar{}, false
	}

	if start == a.w.startNs {
		a.w.extend(px, size, tsNs)
		return Bar{}, false
	}

	closed := a.w.bar(a.barType, a.instId)
	a.w.reset(px, size, tsNs)
	a.w.startNs = start
	return closed, true
}

func (a *TimeBarAggregator) OnQuoteTick(q QuoteTick) (Bar, bool) {
	mid, err := q.Mid()
	if err != nil {
		return Bar{}, false
	}
	return a.onTick(mid, value.ZeroQuantity(q.BidSize.Precision()), q.TsEventNs)
}

func (a *TimeBarAggregator) OnTradeTick(t TradeTick) (Bar, bool) {
	return a.onTick(t.Price, t.Size, t.TsEventNs)
}

// countBarAggregator is the shared implementation behind tick-count and
// volume/value thresholds: it accumulates into one open window and closes
// it the instant the configured threshold function reports done.
type countBarAggregator struct {
	barType BarType
	instId  value.InstrumentId
	w       window
	count   int
	done    func(count int, volume value.Quantity) bool
}

func (a *countBarAggregator) onTick(px value.Price, size value.Quantity, tsNs int64) (Bar, bool) {
	if !a.w.open {
		a.w.reset(px, size, tsNs)
	} else {
		a.w.extend(px, size, tsNs)
	}
	a.count++

	if a.done(a.count, a.w.volume) {
		closed := a.w.bar(a.barType, a.instId)
		a.w.open = false
		a.count = 0
		return closed, true
	}
	return Bar{}, false
}

func (a *countBarAggregator) OnQuoteTick(QuoteTick) (Bar, bool) { return Bar{}, false }

func (a *countBarAggregator) OnTradeTick(t TradeTick) (Bar, bool) {
	return a.onTick(t.Price, t.Size, t.TsEventNs)
}

// TickCountBarAggregator closes its window every n trade ticks.
type TickCountBarAggregator struct{ countBarAggregator }

func NewTickCountBarAggregator(barType BarType, instId value.InstrumentId, n int) *TickCountBarAggregator {
	a := &TickCountBarAggregator{}
	a.barType, a.instId = barType, instId
	a.done = func(count int, _ value.Quantity) bool { return count >= n }
	return a
}

// VolumeBarAggregator closes its window once cumulative traded size reaches
// threshold.
type VolumeBarAggregator struct{ countBarAggregator }

func NewVolumeBarAggregator(barType BarType, instId value.InstrumentId, threshold value.Quantity) *VolumeBarAggregator {
	a := &VolumeBarAggregator{}
	a.barType, a.instId = barType, instId
	a.done = func(_ int, volume value.Quantity) bool { return !volume.LessThan(threshold) }
	return a
}

// ValueBarAggregator closes its window once cumulative notional (price *
// size as float64 values, summed tick by tick) reaches thresholdNotional,
// in quote-currency units rather than raw mantissa units.
type ValueBarAggregator struct {
	barType          BarType
	instId           value.InstrumentId
	thresholdNotional float64
	w                window
	cumNotional      float64
}

func NewValueBarAggregator(barType BarType, instId value.InstrumentId, thresholdNotional float64) *ValueBarAggregator {
	return &ValueBarAggregator{barType: barType, instId: instId, thresholdNotional: thresholdNotional}
}

func (a *ValueBarAggregator) OnQuoteTick(QuoteTick) (Bar, bool) { return Bar{}, false }

func (a *ValueBarAggregator) OnTradeTick(t TradeTick) (Bar, bool) {
	if !a.w.open {
		a.w.reset(t.Price, t.Size, t.TsEventNs)
	} else {
		a.w.extend(t.Price, t.Size, t.TsEventNs)
	}
	a.cumNotional += t.Price.AsFloat64() * t.Size.AsFloat64()

	if a.cumNotional >= a.thresholdNotional {
		closed := a.w.bar(a.barType, a.instId)
		a.w.open = false
		a.cumNotional = 0
		return closed, true
	}
	return Bar{}, false
}
