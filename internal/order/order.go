package order

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/value"
)

// Params are the immutable facts known when a strategy submits an order,
// before the venue has accepted anything (§4.3: the order exists in
// INITIALIZED before any event is applied).
type Params struct {
	ClientOrderId value.ClientOrderId
	InstrumentId  value.InstrumentId
	StrategyId    value.StrategyId
	Side          value.OrderSide
	Type          value.OrderType
	Quantity      value.Quantity
	Price         *value.Price // required for LIMIT, STOP_LIMIT
	TriggerPrice  *value.Price // required for STOP_MARKET, STOP_LIMIT
	TimeInForce   value.TimeInForce
}

// Order is the aggregate built and mutated purely by applying OrderEvents
// (§4.3). Two Orders built from the same Params and fed the same event
// sequence are always byte-identical — the replay invariant in §8.
type Order struct {
	Params
	VenueOrderId value.VenueOrderId
	AccountId    value.AccountId
	Status       Status
	FilledQty    value.Quantity
	AvgPx        *value.Price
	Events       []event.OrderEvent

	priorStatus Status // working status an overlay (PENDING_*) will restore to
	cumNotional decimal.Decimal
}

// New builds an order in INITIALIZED with zero fills.
func New(p Params) *Order {
	return &Order{
		Params:      p,
		Status:      Initialized,
		FilledQty:   value.ZeroQuantity(p.Quantity.Precision()),
		cumNotional: decimal.Zero,
	}
}

// Replay reconstructs an Order from its params and its full event history,
// in the order the events originally applied. Any illegal transition in the
// history surfaces the same InvariantViolation Apply would have raised live.
func Replay(p Params, events []event.OrderEvent) (*Order, error) {
	o := New(p)
	for _, ev := range events {
		if err := o.Apply(ev); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// LeavesQty is the quantity still unfilled.
func (o *Order) LeavesQty() value.Quantity {
	q, err := o.Quantity.Sub(o.FilledQty)
	if err != nil {
		// Quantity.Sub only errors on going negative, which would mean
		// FilledQty exceeded Quantity — an invariant this aggregate itself
		// must never allow Apply to produce.
		panic(err)
	}
	return q
}

// IsClosed reports whether the order can no longer receive events.
func (o *Order) IsClosed() bool { return o.Status.IsTerminal() }

// IsWorking reports whether the order currently rests at (or is pending
// at) the venue.
func (o *Order) IsWorking() bool { return o.Status.IsOpen() }

func illegalTransition(ev event.OrderEvent, from Status) error {
	return kernelerr.NewInvariant(
		"ILLEGAL_ORDER_TRANSITION",
		"cannot apply event to order in current status",
	).With("status", from.String()).With("client_order_id", string(ev.ClientOrderID()))
}

func requireStatus(ev event.OrderEvent, have Status, want ...Status) error {
	for _, s := range want {
		if have == s {
			return nil
		}
	}
	return illegalTransition(ev, have)
}
