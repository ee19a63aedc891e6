package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/value"
)

func testInstrument() value.InstrumentId {
	return value.NewInstrumentId("AUD/USD", "SIM")
}

func mustPrice(t *testing.T, s string) value.Price {
	t.Helper()
	p, err := value.NewPriceFromString(s, 5)
	require.NoError(t, err)
	return p
}

func mustQty(t *testing.T, s string) value.Quantity {
	t.Helper()
	q, err := value.NewQuantityFromString(s, 0)
	require.NoError(t, err)
	return q
}

func newTestOrder(t *testing.T) *Order {
	t.Helper()
	px := mustPrice(t, "0.75000")
	return New(Params{
		ClientOrderId: "O-1",
		InstrumentId:  testInstrument(),
		StrategyId:    "S-1",
		Side:          value.Buy,
		Type:          value.Limit,
		Quantity:      mustQty(t, "1000000"),
		Price:         &px,
		TimeInForce:   value.TimeInForce{Kind: value.GTC},
	})
}

func envelope(o *Order) event.Envelope {
	return event.Envelope{
		ClientOrderId: o.ClientOrderId,
		InstrumentId:  o.InstrumentId,
		StrategyId:    o.StrategyId,
		TsEventNs:     1,
		TsInitNs:      1,
	}
}

func TestOrderLifecycleSubmittedToFilled(t *testing.T) {
	o := newTestOrder(t)
	require.Equal(t, Initialized, o.Status)

	require.NoError(t, o.Apply(event.NewOrderSubmitted(envelope(o), "SIM-001")))
	assert.Equal(t, Submitted, o.Status)

	require.NoError(t, o.Apply(event.NewOrderAccepted(envelope(o), "V-1")))
	assert.Equal(t, Accepted, o.Status)
	assert.Equal(t, value.VenueOrderId("V-1"), o.VenueOrderId)

	half := mustQty(t, "500000")
	fillPx := mustPrice(t, "0.75010")
	require.NoError(t, o.Apply(event.NewOrderFilled(envelope(o), "V-1", "E-1", "P-1",
		value.Buy, half, fillPx, value.Money{}, "MAKER")))
	assert.Equal(t, PartiallyFilled, o.Status)
	assert.True(t, o.FilledQty.Equal(half))
	require.NotNil(t, o.AvgPx)
	assert.Equal(t, "0.75010", o.AvgPx.String())

	require.NoError(t, o.Apply(event.NewOrderFilled(envelope(o), "V-1", "E-2", "P-1",
		value.Buy, half, fillPx, value.Money{}, "MAKER")))
	assert.Equal(t, Filled, o.Status)
	assert.True(t, o.FilledQty.Equal(o.Quantity))
	assert.True(t, o.LeavesQty().IsZero())
}

func TestOrderIllegalTransitionFailsLoudly(t *testing.T) {
	o := newTestOrder(t)
	err := o.Apply(event.NewOrderAccepted(envelope(o), "V-1"))
	require.Error(t, err)
	assert.Equal(t, Initialized, o.Status, "status must not change on a rejected transition")
}

func TestOrderPendingUpdateRestoresPriorStatus(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Apply(event.NewOrderSubmitted(envelope(o), "SIM-001")))
	require.NoError(t, o.Apply(event.NewOrderAccepted(envelope(o), "V-1")))
	require.NoError(t, o.Apply(event.NewOrderPendingUpdate(envelope(o), "V-1")))
	assert.Equal(t, PendingUpdate, o.Status)

	newPx := mustPrice(t, "0.76000")
	require.NoError(t, o.Apply(event.NewOrderUpdated(envelope(o), "V-1", &newPx, nil, nil)))
	assert.Equal(t, Accepted, o.Status)
	assert.Equal(t, "0.76000", o.Price.String())
}

func TestOrderReplayReproducesState(t *testing.T) {
	o := newTestOrder(t)
	events := []event.OrderEvent{
		event.NewOrderSubmitted(envelope(o), "SIM-001"),
		event.NewOrderAccepted(envelope(o), "V-1"),
		event.NewOrderFilled(envelope(o), "V-1", "E-1", "P-1", value.Buy,
			mustQty(t, "1000000"), mustPrice(t, "0.75050"), value.Money{}, "TAKER"),
	}
	for _, ev := range events {
		require.NoError(t, o.Apply(ev))
	}

	replayed, err := Replay(newTestOrder(t).Params, events)
	require.NoError(t, err)
	assert.Equal(t, o.Status, replayed.Status)
	assert.Equal(t, o.FilledQty.String(), replayed.FilledQty.String())
	assert.Equal(t, o.AvgPx.String(), replayed.AvgPx.String())
}

func TestOrderCancelFromPendingCancel(t *testing.T) {
	o := newTestOrder(t)
	require.NoError(t, o.Apply(event.NewOrderSubmitted(envelope(o), "SIM-001")))
	require.NoError(t, o.Apply(event.NewOrderAccepted(envelope(o), "V-1")))
	require.NoError(t, o.Apply(event.NewOrderPendingCancel(envelope(o), "V-1")))
	require.NoError(t, o.Apply(event.NewOrderCanceled(envelope(o), "V-1", "USER_CANCEL")))
	assert.Equal(t, Canceled, o.Status)
	assert.True(t, o.IsClosed())
}
