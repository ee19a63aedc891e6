package portfolio

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

func testAudUsd(t *testing.T) value.Instrument {
	t.Helper()
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
		BaseCurrency:       value.AUD,
		QuoteCurrency:      value.USD,
		SettlementCurrency: value.USD,
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

func quote(t *testing.T, instId value.InstrumentId, bid, ask string) data.QuoteTick {
	t.Helper()
	return data.QuoteTick{
		InstrumentId: instId,
		BidPrice:     px(t, bid),
		AskPrice:     px(t, ask),
		TsEventNs:    1,
		TsInitNs:     1,
	}
}

func TestExposuresByInstrumentMarksLongToBid(t *testing.T) {
	inst := testAudUsd(t)
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(inst))

	pos := position.New(position.NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)
	_, err := pos.ApplyFill(position.Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)
	require.NoError(t, c.AddPosition(pos))

	p := New(c, slog.Default())
	p.OnQuoteTick(quote(t, inst.Id, "0.76000", "0.76010"))

	exps := p.ExposuresByInstrument(inst.Id)
	require.Len(t, exps, 1)
	assert.Equal(t, value.Long, exps[0].Side)
	assert.Equal(t, "0.76000", exps[0].MarkPx.String())
	assert.Equal(t, "1000.00", exps[0].UnrealizedPnl.Decimal().StringFixed(2))
}

func TestExposuresByInstrumentMarksShortToAsk(t *testing.T) {
	inst := testAudUsd(t)
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(inst))

	pos := position.New(position.NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)
	_, err := pos.ApplyFill(position.Fill{ExecutionId: "E-1", Side: value.Sell, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)
	require.NoError(t, c.AddPosition(pos))

	p := New(c, slog.Default())
	p.OnQuoteTick(quote(t, inst.Id, "0.73990", "0.74000"))

	exps := p.ExposuresByInstrument(inst.Id)
	require.Len(t, exps, 1)
	assert.Equal(t, value.Short, exps[0].Side)
	assert.Equal(t, "0.74000", exps[0].MarkPx.String())
	assert.Equal(t, "1000.00", exps[0].UnrealizedPnl.Decimal().StringFixed(2))
}

func TestExposuresByInstrumentSkipsWithoutQuote(t *testing.T) {
	inst := testAudUsd(t)
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(inst))

	pos := position.New(position.NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)
	_, err := pos.ApplyFill(position.Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)
	require.NoError(t, c.AddPosition(pos))

	p := New(c, slog.Default())
	assert.Empty(t, p.ExposuresByInstrument(inst.Id))
}

func TestNetLiquidationValueSumsBalanceAndUnrealized(t *testing.T) {
	inst := testAudUsd(t)
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(inst))

	pos := position.New(position.NettingId(inst.Id, "S-1"), inst.Id, "S-1", inst)
	_, err := pos.ApplyFill(position.Fill{ExecutionId: "E-1", Side: value.Buy, Quantity: qty(t, "100000"), Price: px(t, "0.75000"), TsEventNs: 1})
	require.NoError(t, err)
	require.NoError(t, c.AddPosition(pos))

	acct := account.New("SIM-001", "SIM", value.Cash)
	usdBal, err := value.NewMoney("5000", value.USD)
	require.NoError(t, err)
	acct.Balances["USD"] = account.Balance{Total: usdBal, Free: usdBal}
	require.NoError(t, c.AddAccount(acct))

	p := New(c, slog.Default())
	p.OnQuoteTick(quote(t, inst.Id, "0.76000", "0.76010"))

	nlv, err := p.NetLiquidationValue("SIM-001", "S-1", value.USD)
	require.NoError(t, err)
	assert.Equal(t, "6000.00", nlv.Decimal().StringFixed(2))
}

func TestNetLiquidationValueErrorsOnUnknownAccount(t *testing.T) {
	c := cache.New(nil)
	p := New(c, slog.Default())
	_, err := p.NetLiquidationValue("NOPE", "S-1", value.USD)
	require.Error(t, err)
}
