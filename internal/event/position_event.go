package event

import "github.com/nautilus-go/kernel/internal/value"

// PositionEvent is the sum type Position aggregation (§4.4) emits on the
// bus topic events.position.{strategy_id}.{instrument_id}.
type PositionEvent interface {
	positionEvent()
	PositionID() value.PositionId
	TsEventNs() int64
}

type posBase struct {
	PosId   value.PositionId
	InstId  value.InstrumentId
	StratId value.StrategyId
	TsEvent int64
}

func (p posBase) positionEvent()          {}
func (p posBase) PositionID() value.PositionId { return p.PosId }
func (p posBase) TsEventNs() int64        { return p.TsEvent }

// PositionOpened is raised the instant a position is created by a position's
// first fill.
type PositionOpened struct {
	posBase
	Side       value.PositionSide
	Quantity   value.Quantity
	AvgOpenPx  value.Price
}

// PositionChanged is raised on every subsequent fill that does not close the
// position (extend, reduce, or flip through zero).
type PositionChanged struct {
	posBase
	Side          value.PositionSide
	Quantity      value.Quantity
	AvgOpenPx     value.Price
	RealizedPnL   value.Money
}

// PositionClosed is raised when a fill brings the position's quantity to
// zero; ClosedTsNs fixes the close time (§3).
type PositionClosed struct {
	posBase
	AvgOpenPx   value.Price
	AvgClosePx  value.Price
	RealizedPnL value.Money
	ClosedTsNs  int64
}

// PositionEnvelope carries the identity fields shared by every constructor.
type PositionEnvelope struct {
	PositionId   value.PositionId
	InstrumentId value.InstrumentId
	StrategyId   value.StrategyId
	TsEventNs    int64
}

func (e PositionEnvelope) base() posBase {
	return posBase{PosId: e.PositionId, InstId: e.InstrumentId, StratId: e.StrategyId, TsEvent: e.TsEventNs}
}

func NewPositionOpened(env PositionEnvelope, side value.PositionSide, qty value.Quantity, avgOpenPx value.Price) PositionOpened {
	return PositionOpened{posBase: env.base(), Side: side, Quantity: qty, AvgOpenPx: avgOpenPx}
}

func NewPositionChanged(env PositionEnvelope, side value.PositionSide, qty value.Quantity, avgOpenPx value.Price, realized value.Money) PositionChanged {
	return PositionChanged{posBase: env.base(), Side: side, Quantity: qty, AvgOpenPx: avgOpenPx, RealizedPnL: realized}
}

func NewPositionClosed(env PositionEnvelope, avgOpenPx, avgClosePx value.Price, realized value.Money, closedTsNs int64) PositionClosed {
	return PositionClosed{posBase: env.base(), AvgOpenPx: avgOpenPx, AvgClosePx: avgClosePx, RealizedPnL: realized, ClosedTsNs: closedTsNs}
}
