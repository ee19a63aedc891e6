package execution

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

type fakeClient struct {
	venue     value.Venue
	submitted []*order.Order
}

func (f *fakeClient) Venue() value.Venue { return f.venue }
func (f *fakeClient) Submit(ctx context.Context, o *order.Order) error {
	f.submitted = append(f.submitted, o)
	return nil
}
func (f *fakeClient) Modify(ctx context.Context, cmd ModifyOrder) error { return nil }
func (f *fakeClient) Cancel(ctx context.Context, cmd CancelOrder) error { return nil }

func testInstrument(t *testing.T) value.Instrument {
	t.Helper()
	tick, err := value.NewPriceFromString("0.0001", 4)
	require.NoError(t, err)
	lot, err := value.NewQuantityFromString("1", 0)
	require.NoError(t, err)
	return value.Instrument{
		Id:                 value.NewInstrumentId("AUD/USD", "SIM"),
		PricePrecision:     4,
		SizePrecision:      0,
		TickSize:           tick,
		LotSize:            lot,
		BaseCurrency:       value.AUD,
		QuoteCurrency:      value.USD,
		SettlementCurrency: value.USD,
		Multiplier:         1.0,
	}
}

func newTestEngine(t *testing.T) (*Engine, *cache.Cache, *fakeClient) {
	t.Helper()
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(testInstrument(t)))
	b := bus.New(slog.Default())
	e := New(b, c, map[value.Venue]value.OMSType{"SIM": value.Netting}, slog.Default())
	fc := &fakeClient{venue: "SIM"}
	e.RegisterClient(fc)
	return e, c, fc
}

func TestHandleSubmitRoutesToClient(t *testing.T) {
	e, c, fc := newTestEngine(t)

	qty, err := value.NewQuantityFromString("100", 0)
	require.NoError(t, err)
	px, err := value.NewPriceFromString("0.6500", 4)
	require.NoError(t, err)

	cmd := SubmitOrder{
		Params: order.Params{
			ClientOrderId: "CO-1",
			InstrumentId:  value.NewInstrumentId("AUD/USD", "SIM"),
			StrategyId:    "strat-1",
			Side:          value.Buy,
			Type:          value.Limit,
			Quantity:      qty,
			Price:         &px,
			TimeInForce:   value.TimeInForce{Kind: value.GTC},
		},
		AccountId: "ACC-1",
	}

	require.NoError(t, e.HandleSubmit(context.Background(), cmd))
	require.Len(t, fc.submitted, 1)

	o, ok := c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Submitted, o.Status)
}

func TestHandleSubmitRejectsUnknownInstrument(t *testing.T) {
	e, _, _ := newTestEngine(t)

	qty, _ := value.NewQuantityFromString("1", 0)
	cmd := SubmitOrder{
		Params: order.Params{
			ClientOrderId: "CO-2",
			InstrumentId:  value.NewInstrumentId("EUR/USD", "SIM"),
			StrategyId:    "strat-1",
			Side:          value.Buy,
			Type:          value.Market,
			Quantity:      qty,
		},
	}

	err := e.HandleSubmit(context.Background(), cmd)
	require.Error(t, err)
}

func TestProcessVenueEventOpensPositionOnFill(t *testing.T) {
	e, c, _ := newTestEngine(t)

	qty, _ := value.NewQuantityFromString("100", 0)
	px, _ := value.NewPriceFromString("0.6500", 4)
	cmd := SubmitOrder{
		Params: order.Params{
			ClientOrderId: "CO-3",
			InstrumentId:  value.NewInstrumentId("AUD/USD", "SIM"),
			StrategyId:    "strat-1",
			Side:          value.Buy,
			Type:          value.Limit,
			Quantity:      qty,
			Price:         &px,
			TimeInForce:   value.TimeInForce{Kind: value.GTC},
		},
		AccountId: "ACC-1",
	}
	require.NoError(t, e.HandleSubmit(context.Background(), cmd))

	env := event.Envelope{ClientOrderId: "CO-3", InstrumentId: cmd.Params.InstrumentId, StrategyId: "strat-1", TsEventNs: 1, TsInitNs: 1}
	require.NoError(t, e.ProcessVenueEvent(event.NewOrderAccepted(env, "VID-1")))

	legs := e.ResolveFillLegs(cmd.Params.InstrumentId, "strat-1", value.Buy, qty)
	require.Len(t, legs, 1)
	posId := legs[0].PositionId
	fillPx, _ := value.NewPriceFromString("0.6501", 4)
	commission := value.ZeroMoney(value.USD)
	fillEv := event.NewOrderFilled(env, "VID-1", e.NextExecutionId(), posId, value.Buy, qty, fillPx, commission, "TAKER")

	require.NoError(t, e.ProcessVenueEvent(fillEv))

	pos, ok := c.Position(posId)
	require.True(t, ok)
	assert.True(t, pos.IsOpen())
	assert.Equal(t, value.Long, pos.Side)
}
