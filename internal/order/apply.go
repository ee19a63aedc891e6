package order

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/value"
)

// newPriceFromDecimal rounds an arbitrary-precision intermediate (the
// running notional/quantity division behind avg_px) half-to-even to the
// order's price precision, reusing Price's own banker's-rounding constructor rather
// than re-implementing rounding here.
func newPriceFromDecimal(d decimal.Decimal, precision uint8) (value.Price, error) {
	return value.NewPriceFromString(d.String(), precision)
}

// Apply transitions the order by exactly one event, per the table in
// §4.3. An event the current status does not legally accept returns an
// InvariantViolation — the caller (ExecutionEngine) treats that as fatal
// (§7) rather than swallowing it, since it means the kernel's own state
// tracking has diverged from the venue's.
func (o *Order) Apply(ev event.OrderEvent) error {
	var err error
	switch e := ev.(type) {
	case event.OrderDenied:
		err = o.applyDenied(e)
	case event.OrderSubmitted:
		err = o.applySubmitted(e)
	case event.OrderRejected:
		err = o.applyRejected(e)
	case event.OrderAccepted:
		err = o.applyAccepted(e)
	case event.OrderTriggered:
		err = o.applyTriggered(e)
	case event.OrderPendingUpdate:
		err = o.applyPendingUpdate(e)
	case event.OrderUpdated:
		err = o.applyUpdated(e)
	case event.OrderPendingCancel:
		err = o.applyPendingCancel(e)
	case event.OrderCanceled:
		err = o.applyCanceled(e)
	case event.OrderFilled:
		err = o.applyFilled(e)
	case event.OrderExpired:
		err = o.applyExpired(e)
	default:
		err = illegalTransition(ev, o.Status)
	}
	if err != nil {
		return err
	}
	o.Events = append(o.Events, ev)
	return nil
}

func (o *Order) applyDenied(e event.OrderDenied) error {
	if err := requireStatus(e, o.Status, Initialized); err != nil {
		return err
	}
	o.Status = Denied
	return nil
}

func (o *Order) applySubmitted(e event.OrderSubmitted) error {
	if err := requireStatus(e, o.Status, Initialized); err != nil {
		return err
	}
	o.AccountId = e.AccountId
	o.Status = Submitted
	return nil
}

func (o *Order) applyRejected(e event.OrderRejected) error {
	if err := requireStatus(e, o.Status, Submitted); err != nil {
		return err
	}
	o.Status = Rejected
	return nil
}

func (o *Order) applyAccepted(e event.OrderAccepted) error {
	if err := requireStatus(e, o.Status, Submitted); err != nil {
		return err
	}
	o.VenueOrderId = e.VenueOrderId
	o.Status = Accepted
	return nil
}

func (o *Order) applyTriggered(e event.OrderTriggered) error {
	if err := requireStatus(e, o.Status, Accepted); err != nil {
		return err
	}
	o.VenueOrderId = e.VenueOrderId
	o.Status = Triggered
	return nil
}

func (o *Order) applyPendingUpdate(e event.OrderPendingUpdate) error {
	if err := requireStatus(e, o.Status, Accepted, Triggered, PartiallyFilled); err != nil {
		return err
	}
	o.priorStatus = o.Status
	o.Status = PendingUpdate
	return nil
}

func (o *Order) applyUpdated(e event.OrderUpdated) error {
	if err := requireStatus(e, o.Status, PendingUpdate); err != nil {
		return err
	}
	if e.Price != nil {
		o.Price = e.Price
	}
	if e.TriggerPrice != nil {
		o.TriggerPrice = e.TriggerPrice
	}
	if e.Quantity != nil {
		o.Quantity = *e.Quantity
	}
	o.Status = o.priorStatus
	return nil
}

func (o *Order) applyPendingCancel(e event.OrderPendingCancel) error {
	if err := requireStatus(e, o.Status, Accepted, Triggered, PartiallyFilled); err != nil {
		return err
	}
	o.priorStatus = o.Status
	o.Status = PendingCancel
	return nil
}

func (o *Order) applyCanceled(e event.OrderCanceled) error {
	if err := requireStatus(e, o.Status, PendingCancel, Accepted, Triggered, PartiallyFilled); err != nil {
		return err
	}
	o.Status = Canceled
	return nil
}

func (o *Order) applyFilled(e event.OrderFilled) error {
	if err := requireStatus(e, o.Status, Accepted, Triggered, PartiallyFilled); err != nil {
		return err
	}

	newFilled, err := o.FilledQty.Add(e.LastQty)
	if err != nil {
		return err
	}
	if newFilled.GreaterThan(o.Quantity) {
		return illegalTransition(e, o.Status)
	}

	px, err := decimal.NewFromString(e.LastPx.String())
	if err != nil {
		return err
	}
	qty, err := decimal.NewFromString(e.LastQty.String())
	if err != nil {
		return err
	}
	o.cumNotional = o.cumNotional.Add(px.Mul(qty))

	cumQty, err := decimal.NewFromString(newFilled.String())
	if err != nil {
		return err
	}
	avgPx, err := newPriceFromDecimal(o.cumNotional.Div(cumQty), e.LastPx.Precision())
	if err != nil {
		return err
	}

	o.FilledQty = newFilled
	o.AvgPx = &avgPx
	o.VenueOrderId = e.VenueOrderId
	if newFilled.Equal(o.Quantity) {
		o.Status = Filled
	} else {
		o.Status = PartiallyFilled
	}
	return nil
}

func (o *Order) applyExpired(e event.OrderExpired) error {
	if err := requireStatus(e, o.Status, Accepted, Triggered, PartiallyFilled, PendingUpdate, PendingCancel); err != nil {
		return err
	}
	o.Status = Expired
	return nil
}
