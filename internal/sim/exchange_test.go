package sim

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

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

func newTestVenue(t *testing.T) (*execution.Engine, *Exchange, *cache.Cache, *bus.MessageBus) {
	t.Helper()
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(testInstrument(t)))
	b := bus.New(slog.Default())
	engine := execution.New(b, c, map[value.Venue]value.OMSType{"SIM": value.Netting}, slog.Default())

	startBal, err := value.NewMoney("100000", value.USD)
	require.NoError(t, err)
	ex, err := New(Config{
		Venue:            "SIM",
		OMSType:          value.Netting,
		AccountType:      value.Cash,
		AccountId:        "SIM-001",
		StartingBalances: []value.Money{startBal},
		FillModel:        NewFillModel(0, 0, 0, 1),
	}, c, engine, b, slog.Default())
	require.NoError(t, err)
	engine.RegisterClient(ex)
	return engine, ex, c, b
}

func newTestVenueHedging(t *testing.T) (*execution.Engine, *Exchange, *cache.Cache, *bus.MessageBus) {
	t.Helper()
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(testInstrument(t)))
	b := bus.New(slog.Default())
	engine := execution.New(b, c, map[value.Venue]value.OMSType{"SIM": value.Hedging}, slog.Default())

	startBal, err := value.NewMoney("100000", value.USD)
	require.NoError(t, err)
	ex, err := New(Config{
		Venue:            "SIM",
		OMSType:          value.Hedging,
		AccountType:      value.Cash,
		AccountId:        "SIM-001",
		StartingBalances: []value.Money{startBal},
		FillModel:        NewFillModel(0, 0, 0, 1),
	}, c, engine, b, slog.Default())
	require.NoError(t, err)
	engine.RegisterClient(ex)
	return engine, ex, c, b
}

func submit(t *testing.T, clOrdId value.ClientOrderId, side value.OrderSide, typ value.OrderType, qty string, px *string) execution.SubmitOrder {
	t.Helper()
	q, err := value.NewQuantityFromString(qty, 0)
	require.NoError(t, err)
	var pricePtr *value.Price
	if px != nil {
		p, err := value.NewPriceFromString(*px, 4)
		require.NoError(t, err)
		pricePtr = &p
	}
	return execution.SubmitOrder{
		Params: order.Params{
			ClientOrderId: clOrdId,
			InstrumentId:  value.NewInstrumentId("AUD/USD", "SIM"),
			StrategyId:    "S-1",
			Side:          side,
			Type:          typ,
			Quantity:      q,
			Price:         pricePtr,
			TimeInForce:   value.TimeInForce{Kind: value.GTC},
		},
		AccountId: "SIM-001",
	}
}

func px(t *testing.T, s string) value.Price {
	t.Helper()
	p, err := value.NewPriceFromString(s, 4)
	require.NoError(t, err)
	return p
}

func TestMarketOrderFillsImmediatelyAtTopOfBook(t *testing.T) {
	engine, ex, c, _ := newTestVenue(t)

	require.NoError(t, ex.ProcessQuoteTick(data.QuoteTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		BidPrice:     px(t, "0.7500"),
		AskPrice:     px(t, "0.7502"),
	}))

	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-1", value.Buy, value.Market, "1000", nil)))

	o, ok := c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Filled, o.Status)
	assert.Equal(t, "0.7502", o.AvgPx.String())
}

func TestLimitOrderRestsThenFillsOnQuoteCross(t *testing.T) {
	engine, ex, c, _ := newTestVenue(t)

	limitPx := "0.7490"
	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-1", value.Buy, value.Limit, "1000", &limitPx)))

	o, ok := c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Accepted, o.Status)

	require.NoError(t, ex.ProcessQuoteTick(data.QuoteTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		BidPrice:     px(t, "0.7485"),
		AskPrice:     px(t, "0.7488"),
	}))

	o, ok = c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Filled, o.Status)
	assert.Equal(t, "0.7490", o.AvgPx.String())
}

func TestStopMarketTriggersOnCross(t *testing.T) {
	engine, ex, c, _ := newTestVenue(t)

	require.NoError(t, ex.ProcessQuoteTick(data.QuoteTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		BidPrice:     px(t, "0.7500"),
		AskPrice:     px(t, "0.7502"),
	}))

	trigger := "0.7510"
	cmd := submit(t, "CO-1", value.Buy, value.StopMarket, "1000", nil)
	tp := px(t, trigger)
	cmd.Params.TriggerPrice = &tp
	require.NoError(t, engine.HandleSubmit(context.Background(), cmd))

	o, ok := c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Accepted, o.Status)

	require.NoError(t, ex.ProcessQuoteTick(data.QuoteTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		BidPrice:     px(t, "0.7511"),
		AskPrice:     px(t, "0.7513"),
	}))

	o, ok = c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Filled, o.Status)
}

// TestHedgingSplitsReducingFillAcrossPositions is scenario S4: under a
// HEDGING venue, two opening BUYs each get their own position, and a SELL
// that spans both splits 50k+30k, closing the first and reducing the
// second (§4.4 "distinct id per opening fill").
func TestHedgingSplitsReducingFillAcrossPositions(t *testing.T) {
	engine, ex, c, _ := newTestVenueHedging(t)

	require.NoError(t, ex.ProcessQuoteTick(data.QuoteTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		BidPrice:     px(t, "0.7500"),
		AskPrice:     px(t, "0.7502"),
	}))

	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-1", value.Buy, value.Market, "50000", nil)))
	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-2", value.Buy, value.Market, "50000", nil)))

	open := c.OpenPositionsByInstrumentAndStrategy(value.NewInstrumentId("AUD/USD", "SIM"), "S-1")
	require.Len(t, open, 2)
	require.NotEqual(t, open[0].Id, open[1].Id)
	// Both opening fills share ts_event_ns=0 in this test (no clock
	// advance between submits), so fall back to the same (ts, id)
	// ordering ResolveFillLegs itself uses to find which position opened
	// first: the HedgingId's embedded sequence number sorts lexically.
	pos1ID, pos2ID := open[0].Id, open[1].Id
	if open[0].Id > open[1].Id {
		pos1ID, pos2ID = pos2ID, pos1ID
	}

	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-3", value.Sell, value.Market, "80000", nil)))

	pos1, ok := c.Position(pos1ID)
	require.True(t, ok)
	assert.False(t, pos1.IsOpen())
	assert.Equal(t, "0", pos1.Quantity.String())

	pos2, ok := c.Position(pos2ID)
	require.True(t, ok)
	assert.True(t, pos2.IsOpen())
	assert.Equal(t, "20000", pos2.Quantity.String())
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	engine, _, c, _ := newTestVenue(t)

	limitPx := "0.7000"
	require.NoError(t, engine.HandleSubmit(context.Background(), submit(t, "CO-1", value.Buy, value.Limit, "1000", &limitPx)))
	require.NoError(t, engine.HandleCancel(context.Background(), execution.CancelOrder{ClientOrderId: "CO-1"}))

	o, ok := c.OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Canceled, o.Status)
}
