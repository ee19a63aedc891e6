// Package position implements Position aggregation (§4.4): a Position is
// built purely by applying fills in timestamp order, VWAP-averaging same
// side fills and realizing PnL as opposite-side fills reduce it.
package position

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/value"
)

// Fill is one execution applied to a Position, distinct from event.OrderFilled
// in that it carries only the fields position aggregation needs.
type Fill struct {
	ExecutionId value.ExecutionId
	Side        value.OrderSide
	Quantity    value.Quantity
	Price       value.Price
	TsEventNs   int64
}

// Position is the aggregate spec.md §3/§4.4 describes: quantity is always a
// non-negative magnitude, side carries the sign.
type Position struct {
	Id                 value.PositionId
	InstrumentId       value.InstrumentId
	StrategyId         value.StrategyId
	Side               value.PositionSide
	Quantity           value.Quantity
	PeakQuantity       value.Quantity
	AvgOpenPx          *value.Price
	AvgClosePx         *value.Price
	RealizedPnl        value.Money
	OpenedTsNs         int64
	ClosedTsNs         *int64
	Fills              []Fill

	// Instrument is the definition this position's PnL math is computed
	// against (settlement currency, contract multiplier). Kept as a plain
	// exported field — rather than re-deriving it — so a persistence
	// layer can round-trip a Position without reaching into unexported
	// state: position.New(p.Id, p.InstrumentId, p.StrategyId,
	// p.Instrument) plus a fill replay reproduces it exactly.
	Instrument value.Instrument

	cumOpenNotional  decimal.Decimal
	cumCloseNotional decimal.Decimal
	cumClosedQty     value.Quantity
}

// New builds an empty (FLAT) position, ready for its first fill.
func New(id value.PositionId, instId value.InstrumentId, stratId value.StrategyId, instrument value.Instrument) *Position {
	return &Position{
		Id:               id,
		InstrumentId:     instId,
		StrategyId:       stratId,
		Side:             value.Flat,
		Quantity:         value.ZeroQuantity(instrument.SizePrecision),
		PeakQuantity:     value.ZeroQuantity(instrument.SizePrecision),
		RealizedPnl:      value.ZeroMoney(instrument.SettlementCurrency),
		Instrument:       instrument,
		cumOpenNotional:  decimal.Zero,
		cumCloseNotional: decimal.Zero,
		cumClosedQty:     value.ZeroQuantity(instrument.SizePrecision),
	}
}

// IsOpen reports whether the position currently carries exposure.
func (p *Position) IsOpen() bool { return !p.Quantity.IsZero() }

func sideOf(s value.OrderSide) value.PositionSide {
	if s == value.Buy {
		return value.Long
	}
	return value.Short
}

func decimalOf(s interface{ String() string }) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s.String())
	if err != nil {
		return decimal.Decimal{}, kernelerr.NewValidation("MALFORMED_SCALAR", "could not parse scalar for pnl math")
	}
	return d, nil
}

// ApplyFill applies one fill to the position in timestamp order, returning
// the PositionEvents it produces (always exactly one: Opened, Changed, or
// Closed — never a split across multiple position ids; that allocation
// decision happens one layer up, against the OMS type, see ResolveOpenId).
func (p *Position) ApplyFill(f Fill) ([]event.PositionEvent, error) {
	env := event.PositionEnvelope{PositionId: p.Id, InstrumentId: p.InstrumentId, StrategyId: p.StrategyId, TsEventNs: f.TsEventNs}

	if !p.IsOpen() {
		return p.open(f, env)
	}

	fillSide := sideOf(f.Side)
	if fillSide == p.Side {
		return p.extend(f, env)
	}
	return p.reduce(f, env)
}

func (p *Position) open(f Fill, env event.PositionEnvelope) ([]event.PositionEvent, error) {
	px := f.Price
	qty := f.Quantity

	notional, err := decimalOf(px)
	if err != nil {
		return nil, err
	}
	qd, err := decimalOf(qty)
	if err != nil {
		return nil, err
	}

	p.Side = sideOf(f.Side)
	p.Quantity = qty
	p.PeakQuantity = qty
	p.AvgOpenPx = &px
	p.OpenedTsNs = f.TsEventNs
	p.ClosedTsNs = nil
	p.cumOpenNotional = notional.Mul(qd)
	p.Fills = append(p.Fills, f)

	return []event.PositionEvent{event.NewPositionOpened(env, p.Side, p.Quantity, px)}, nil
}

func (p *Position) extend(f Fill, env event.PositionEnvelope) ([]event.PositionEvent, error) {
	newQty, err := p.Quantity.Add(f.Quantity)
	if err != nil {
		return nil, err
	}

	px, err := decimalOf(f.Price)
	if err != nil {
		return nil, err
	}
	qd, err := decimalOf(f.Quantity)
	if err != nil {
		return nil, err
	}
	p.cumOpenNotional = p.cumOpenNotional.Add(px.Mul(qd))

	newQd, err := decimalOf(newQty)
	if err != nil {
		return nil, err
	}
	avgOpenPx, err := newPriceFromDecimal(p.cumOpenNotional.Div(newQd), f.Price.Precision())
	if err != nil {
		return nil, err
	}

	p.Quantity = newQty
	p.AvgOpenPx = &avgOpenPx
	if newQty.GreaterThan(p.PeakQuantity) {
		p.PeakQuantity = newQty
	}
	p.Fills = append(p.Fills, f)

	return []event.PositionEvent{event.NewPositionChanged(env, p.Side, p.Quantity, avgOpenPx, p.RealizedPnl)}, nil
}

// reduce applies an opposite-side fill: it closes up to the current
// quantity, realizing PnL on the closed leg, and — if the fill overshoots —
// flips the position to the other side on the residual with a fresh
// avg_open_px (§4.4 "fill that crosses zero splits").
func (p *Position) reduce(f Fill, env event.PositionEnvelope) ([]event.PositionEvent, error) {
	reduceQty := f.Quantity
	var residual value.Quantity
	crossesZero := f.Quantity.GreaterThan(p.Quantity)
	if crossesZero {
		reduceQty = p.Quantity
		var err error
		residual, err = f.Quantity.Sub(p.Quantity)
		if err != nil {
			return nil, err
		}
	}

	pnl, err := p.realizedDelta(reduceQty, f.Price)
	if err != nil {
		return nil, err
	}
	p.RealizedPnl, err = p.RealizedPnl.Add(pnl)
	if err != nil {
		return nil, err
	}

	if err := p.recordCloseVwap(reduceQty, f.Price); err != nil {
		return nil, err
	}

	p.Fills = append(p.Fills, f)

	newQty, err := p.Quantity.Sub(reduceQty)
	if err != nil {
		return nil, err
	}

	switch {
	case !crossesZero && newQty.IsZero():
		p.Quantity = newQty
		p.Side = value.Flat
		closedTs := f.TsEventNs
		p.ClosedTsNs = &closedTs
		return []event.PositionEvent{event.NewPositionClosed(env, *p.AvgOpenPx, *p.AvgClosePx, p.RealizedPnl, closedTs)}, nil

	case crossesZero:
		px := f.Price
		p.Side = sideOf(f.Side)
		p.Quantity = residual
		p.PeakQuantity = residual
		p.AvgOpenPx = &px
		qd, err := decimalOf(residual)
		if err != nil {
			return nil, err
		}
		pxd, err := decimalOf(px)
		if err != nil {
			return nil, err
		}
		p.cumOpenNotional = pxd.Mul(qd)
		return []event.PositionEvent{event.NewPositionChanged(env, p.Side, p.Quantity, px, p.RealizedPnl)}, nil

	default:
		p.Quantity = newQty
		return []event.PositionEvent{event.NewPositionChanged(env, p.Side, p.Quantity, *p.AvgOpenPx, p.RealizedPnl)}, nil
	}
}

// realizedDelta computes reduce_qty * (close_px - open_px) * direction *
// multiplier, direction +1 for a LONG position closing, -1 for SHORT.
func (p *Position) realizedDelta(reduceQty value.Quantity, closePx value.Price) (value.Money, error) {
	openPxD, err := decimalOf(*p.AvgOpenPx)
	if err != nil {
		return value.Money{}, err
	}
	closePxD, err := decimalOf(closePx)
	if err != nil {
		return value.Money{}, err
	}
	qtyD, err := decimalOf(reduceQty)
	if err != nil {
		return value.Money{}, err
	}

	direction := decimal.NewFromInt(1)
	if p.Side == value.Short {
		direction = decimal.NewFromInt(-1)
	}

	multiplier := decimal.NewFromFloat(p.Instrument.Multiplier)
	pnl := closePxD.Sub(openPxD).Mul(qtyD).Mul(direction).Mul(multiplier)
	return value.NewMoneyFromDecimal(pnl, p.Instrument.SettlementCurrency), nil
}

func (p *Position) recordCloseVwap(reduceQty value.Quantity, closePx value.Price) error {
	pxd, err := decimalOf(closePx)
	if err != nil {
		return err
	}
	qd, err := decimalOf(reduceQty)
	if err != nil {
		return err
	}
	p.cumCloseNotional = p.cumCloseNotional.Add(pxd.Mul(qd))

	newClosedQty, err := p.cumClosedQty.Add(reduceQty)
	if err != nil {
		return err
	}
	p.cumClosedQty = newClosedQty

	closedQd, err := decimalOf(newClosedQty)
	if err != nil {
		return err
	}
	avgClosePx, err := newPriceFromDecimal(p.cumCloseNotional.Div(closedQd), closePx.Precision())
	if err != nil {
		return err
	}
	p.AvgClosePx = &avgClosePx
	return nil
}

func newPriceFromDecimal(d decimal.Decimal, precision uint8) (value.Price, error) {
	return value.NewPriceFromString(d.String(), precision)
}
