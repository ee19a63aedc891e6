// Package event defines the kernel's domain events as tagged variants (sum
// types) per the redesign in spec.md §9: "re-architect as a tagged variant
// of OrderEvent/PositionEvent/AccountEvent, with exhaustive matching in
// state machines." Each event is immutable once constructed and carries
// ts_event_ns and ts_init_ns; events hold no sequence number.
package event

import (
	"github.com/nautilus-go/kernel/internal/value"
)

// OrderEvent is the sum type every event applied to an Order implements.
// Switch over the concrete type. The unexported orderEvent method keeps
// implementers inside this package, but the compiler does not check a type
// switch for missing cases: a variant without a case reaches the switch's
// default branch at run time.
type OrderEvent interface {
	orderEvent()
	ClientOrderID() value.ClientOrderId
	TsEventNs() int64
	TsInitNs() int64
}

// base carries the fields every OrderEvent shares.
type base struct {
	ClOrdId    value.ClientOrderId
	InstId     value.InstrumentId
	StratId    value.StrategyId
	TsEvent    int64
	TsInit     int64
}

func (b base) orderEvent()                     {}
func (b base) ClientOrderID() value.ClientOrderId { return b.ClOrdId }
func (b base) TsEventNs() int64                 { return b.TsEvent }
func (b base) TsInitNs() int64                  { return b.TsInit }

// OrderDenied is raised by RiskEngine pre-trade checks; the order never
// reaches SUBMITTED (§4.10).
type OrderDenied struct {
	base
	Reason string
}

// OrderSubmitted marks the order as sent downstream (to ExecutionClient or
// SimulatedExchange).
type OrderSubmitted struct {
	base
	AccountId value.AccountId
}

// OrderRejected is raised by the venue/SimulatedExchange; terminal.
type OrderRejected struct {
	base
	Reason string
}

// OrderAccepted assigns the venue order id and moves the order to ACCEPTED.
type OrderAccepted struct {
	base
	VenueOrderId value.VenueOrderId
}

// OrderTriggered marks a stop-limit's trigger condition as satisfied; the
// order becomes a working limit order.
type OrderTriggered struct {
	base
	VenueOrderId value.VenueOrderId
}

// OrderPendingUpdate is an overlay event preceding an OrderUpdated.
type OrderPendingUpdate struct {
	base
	VenueOrderId value.VenueOrderId
}

// OrderUpdated applies a new price and/or quantity to a resting order.
type OrderUpdated struct {
	base
	VenueOrderId value.VenueOrderId
	Price        *value.Price
	TriggerPrice *value.Price
	Quantity     *value.Quantity
}

// OrderPendingCancel is an overlay event preceding an OrderCanceled.
type OrderPendingCancel struct {
	base
	VenueOrderId value.VenueOrderId
}

// OrderCanceled is terminal; Reason distinguishes user cancels from
// TIF-driven cancels (e.g. "FOK" when a fill-or-kill order could not fully fill).
type OrderCanceled struct {
	base
	VenueOrderId value.VenueOrderId
	Reason       string
}

// OrderFilled records one execution against the order. LastPx is the
// venue-reported fill price for this execution (not the order's running
// volume-weighted average, which the Order aggregate recomputes).
type OrderFilled struct {
	base
	VenueOrderId  value.VenueOrderId
	ExecutionId   value.ExecutionId
	PositionId    value.PositionId
	Side          value.OrderSide
	LastQty       value.Quantity
	LastPx        value.Price
	Commission    value.Money
	Liquidity     string // "MAKER" or "TAKER"
}

// OrderExpired is terminal, raised when the order's time-in-force lapses.
type OrderExpired struct {
	base
	VenueOrderId value.VenueOrderId
}

func newBase(clOrdId value.ClientOrderId, instId value.InstrumentId, stratId value.StrategyId, tsEvent, tsInit int64) base {
	return base{ClOrdId: clOrdId, InstId: instId, StratId: stratId, TsEvent: tsEvent, TsInit: tsInit}
}

// InstrumentID and StrategyID are accessor helpers used by the bus topic
// router (events.order.{strategy_id}.{instrument_id}, §6).
func InstrumentID(e OrderEvent) value.InstrumentId {
	return e.(interface{ instrumentID() value.InstrumentId }).instrumentID()
}

func (b base) instrumentID() value.InstrumentId { return b.InstId }
func (b base) strategyID() value.StrategyId     { return b.StratId }

// StrategyID returns the owning strategy id of an OrderEvent.
func StrategyID(e OrderEvent) value.StrategyId {
	return e.(interface{ strategyID() value.StrategyId }).strategyID()
}

// Envelope is the caller-supplied identity/timing fields shared by every
// order event constructor below.
type Envelope struct {
	ClientOrderId value.ClientOrderId
	InstrumentId  value.InstrumentId
	StrategyId    value.StrategyId
	TsEventNs     int64
	TsInitNs      int64
}

func (e Envelope) base() base { return newBase(e.ClientOrderId, e.InstrumentId, e.StrategyId, e.TsEventNs, e.TsInitNs) }

func NewOrderDenied(env Envelope, reason string) OrderDenied {
	return OrderDenied{base: env.base(), Reason: reason}
}

func NewOrderSubmitted(env Envelope, accountId value.AccountId) OrderSubmitted {
	return OrderSubmitted{base: env.base(), AccountId: accountId}
}

func NewOrderRejected(env Envelope, reason string) OrderRejected {
	return OrderRejected{base: env.base(), Reason: reason}
}

func NewOrderAccepted(env Envelope, venueOrderId value.VenueOrderId) OrderAccepted {
	return OrderAccepted{base: env.base(), VenueOrderId: venueOrderId}
}

func NewOrderTriggered(env Envelope, venueOrderId value.VenueOrderId) OrderTriggered {
	return OrderTriggered{base: env.base(), VenueOrderId: venueOrderId}
}

func NewOrderPendingUpdate(env Envelope, venueOrderId value.VenueOrderId) OrderPendingUpdate {
	return OrderPendingUpdate{base: env.base(), VenueOrderId: venueOrderId}
}

func NewOrderUpdated(env Envelope, venueOrderId value.VenueOrderId, price, triggerPrice *value.Price, qty *value.Quantity) OrderUpdated {
	return OrderUpdated{base: env.base(), VenueOrderId: venueOrderId, Price: price, TriggerPrice: triggerPrice, Quantity: qty}
}

func NewOrderPendingCancel(env Envelope, venueOrderId value.VenueOrderId) OrderPendingCancel {
	return OrderPendingCancel{base: env.base(), VenueOrderId: venueOrderId}
}

func NewOrderCanceled(env Envelope, venueOrderId value.VenueOrderId, reason string) OrderCanceled {
	return OrderCanceled{base: env.base(), VenueOrderId: venueOrderId, Reason: reason}
}

func NewOrderFilled(env Envelope, venueOrderId value.VenueOrderId, execId value.ExecutionId, posId value.PositionId, side value.OrderSide, lastQty value.Quantity, lastPx value.Price, commission value.Money, liquidity string) OrderFilled {
	return OrderFilled{
		base: env.base(), VenueOrderId: venueOrderId, ExecutionId: execId, PositionId: posId,
		Side: side, LastQty: lastQty, LastPx: lastPx, Commission: commission, Liquidity: liquidity,
	}
}

func NewOrderExpired(env Envelope, venueOrderId value.VenueOrderId) OrderExpired {
	return OrderExpired{base: env.base(), VenueOrderId: venueOrderId}
}
