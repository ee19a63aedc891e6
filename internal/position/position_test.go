package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/value"
)

func testAudUsd(t *testing.T) value.Instrument {
	t.Helper()
	usd := value.USD
	aud := value.AUD
	tick, err := value.NewPriceFromString("0.00001", 5)
	require.NoError(t, err)
	lot, err := value.NewQuantityFromString("1", 0)
	require.NoError(t, err)
	return value.Instrument{
		Id:                 value.NewInstrumentId("AUD/USD", "SIM"),
		PricePrecision:     5,
		SizePrecision:      0,
		TickSize:           tick,
		LotSize:            lot,
		BaseCurrency:       aud,
		QuoteCurrency:      usd,
		SettlementCurrency: usd,
		Multiplier:         1.0,
	}
}

func qty(t *testing.T, s string) value.Quantity {
	t.Helper()
	q, err := value.NewQuantityFromString(s, 0)
	require.NoError(t, err)
	return q
}

func px(t *testing.T, s string) value.Price {
	t.Helper()
	p, err := value.NewPriceFromString(s, 5)
	require.NoError(t, err)
	return p
}

func TestPositionOpenAndExtendVWAP(t *testing.T) {
	inst := testAudUsd(t)
	p := New(NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)

	evs, err := p.ApplyFill(Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, value.Long, p.Side)
	assert.Equal(t, "0.75000", p.AvgOpenPx.String())

	evs, err = p.ApplyFill(Fill{ExecutionId: "E-2", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.76000"), TsEventNs: 2})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "0.75500", p.AvgOpenPx.String())
	assert.True(t, p.Quantity.Equal(qty(t, "200000")))
}

func TestPositionReduceRealizesPnl(t *testing.T) {
	inst := testAudUsd(t)
	p := New(NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)

	_, err := p.ApplyFill(Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)

	evs, err := p.ApplyFill(Fill{ExecutionId: "E-2", Side: value.Sell, Quantity: qty(t, "40000"), Price: px(t, "0.76000"), TsEventNs: 2})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.True(t, p.Quantity.Equal(qty(t, "60000")))
	assert.Equal(t, "400.00", p.RealizedPnl.Decimal().StringFixed(2))
}

func TestPositionFullCloseEmitsClosed(t *testing.T) {
	inst := testAudUsd(t)
	p := New(NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)

	_, err := p.ApplyFill(Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)

	evs, err := p.ApplyFill(Fill{ExecutionId: "E-2", Side: value.Sell, Quantity: qty(t, "100000"), Price: px(t, "0.75500"), TsEventNs: 2})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.False(t, p.IsOpen())
	assert.NotNil(t, p.ClosedTsNs)
}

func TestPositionCrossZeroFlipsSide(t *testing.T) {
	inst := testAudUsd(t)
	p := New(NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)

	_, err := p.ApplyFill(Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "50000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)

	evs, err := p.ApplyFill(Fill{ExecutionId: "E-2", Side: value.Sell, Quantity: qty(t, "80000"), Price: px(t, "0.76000"), TsEventNs: 2})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, value.Short, p.Side)
	assert.True(t, p.Quantity.Equal(qty(t, "30000")))
	assert.Equal(t, "0.76000", p.AvgOpenPx.String())
	assert.True(t, p.IsOpen())
}
