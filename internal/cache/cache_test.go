package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

func testInstrument() value.Instrument {
	tick, _ := value.NewPriceFromString("0.00001", 5)
	lot, _ := value.NewQuantityFromString("1", 0)
	return value.Instrument{
		Id:                 value.NewInstrumentId("AUD/USD", "SIM"),
		PricePrecision:     5,
		SizePrecision:      0,
		TickSize:           tick,
		LotSize:            lot,
		BaseCurrency:       value.AUD,
		QuoteCurrency:      value.USD,
		SettlementCurrency: value.USD,
		Multiplier:         1.0,
	}
}

func TestCacheIndexesOrdersAndPositions(t *testing.T) {
	c := New(nil)
	inst := testInstrument()
	require.NoError(t, c.AddInstrument(inst))

	px, _ := value.NewPriceFromString("0.75000", 5)
	qty, _ := value.NewQuantityFromString("1000", 0)
	o := order.New(order.Params{
		ClientOrderId: "O-1",
		InstrumentId:  inst.Id,
		StrategyId:    "S-1",
		Side:          value.Buy,
		Type:          value.Limit,
		Quantity:      qty,
		Price:         &px,
		TimeInForce:   value.TimeInForce{Kind: value.GTC},
	})
	require.NoError(t, c.AddOrder(o))

	got, ok := c.OrderByClientId("O-1")
	require.True(t, ok)
	assert.Equal(t, o, got)

	byInst := c.OrdersByInstrument(inst.Id)
	require.Len(t, byInst, 1)

	p := position.New(position.NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)
	require.NoError(t, c.AddPosition(p))
	require.NoError(t, c.CheckIntegrity())
}

func TestCacheIntegrityCatchesDanglingInstrument(t *testing.T) {
	c := New(nil)
	p := position.New("P-1", value.NewInstrumentId("BTC/USD", "SIM"), "S-1", testInstrument())
	require.NoError(t, c.AddPosition(p))
	require.Error(t, c.CheckIntegrity())
}

func TestCacheAccountRoundtrip(t *testing.T) {
	c := New(nil)
	a := account.New("SIM-001", "SIM", value.Cash)
	require.NoError(t, c.AddAccount(a))
	got, ok := c.Account("SIM-001")
	require.True(t, ok)
	assert.Equal(t, a, got)
}
