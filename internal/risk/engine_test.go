package risk

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/clock"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

type recordingSubmitter struct {
	calls []execution.SubmitOrder
}

func (r *recordingSubmitter) HandleSubmit(ctx context.Context, cmd execution.SubmitOrder) error {
	r.calls = append(r.calls, cmd)
	return nil
}

func testInstrument() value.Instrument {
	tick, _ := value.NewPriceFromString("0.0005", 4)
	lot, _ := value.NewQuantityFromString("1", 0)
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

func newTestRiskEngine(t *testing.T, limits Limits) (*Engine, *recordingSubmitter) {
	t.Helper()
	e, sub, _ := newTestRiskEngineWithClock(t, limits, 100, 100)
	return e, sub
}

func newTestRiskEngineWithClock(t *testing.T, limits Limits, throttleBurst, throttleRate float64) (*Engine, *recordingSubmitter, *clock.TestClock) {
	t.Helper()
	c := cache.New(nil)
	require.NoError(t, c.AddInstrument(testInstrument()))
	b := bus.New(slog.Default())
	sub := &recordingSubmitter{}
	clk := clock.NewTestClock(0)
	e := New(b, c, clk, sub, limits, throttleBurst, throttleRate, slog.Default())
	return e, sub, clk
}

func submitCmd(t *testing.T, qtyStr, pxStr string) execution.SubmitOrder {
	t.Helper()
	qty, err := value.NewQuantityFromString(qtyStr, 0)
	require.NoError(t, err)
	px, err := value.NewPriceFromString(pxStr, 4)
	require.NoError(t, err)
	return execution.SubmitOrder{
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
	}
}

func TestHandleSubmitForwardsWhenWithinLimits(t *testing.T) {
	e, sub := newTestRiskEngine(t, Limits{})
	require.NoError(t, e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500")))
	assert.Len(t, sub.calls, 1)
}

func TestHandleSubmitDeniesOverMaxQuantity(t *testing.T) {
	maxQty, _ := value.NewQuantityFromString("50", 0)
	limits := Limits{MaxQuantityByInstrument: map[value.InstrumentId]value.Quantity{
		value.NewInstrumentId("AUD/USD", "SIM"): maxQty,
	}}
	e, sub := newTestRiskEngine(t, limits)

	err := e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500"))
	require.Error(t, err)
	assert.Empty(t, sub.calls)
}

func TestHandleSubmitDeniesWhenHalted(t *testing.T) {
	e, sub := newTestRiskEngine(t, Limits{})
	e.SetTradingState(value.NewInstrumentId("AUD/USD", "SIM"), value.Halted)

	err := e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500"))
	require.Error(t, err)
	assert.Empty(t, sub.calls)
}

func TestHandleSubmitDeniesOffTickGridPrice(t *testing.T) {
	e, sub := newTestRiskEngine(t, Limits{})

	err := e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6503"))
	require.Error(t, err)
	assert.Empty(t, sub.calls)
}

// TestThrottleRefillsOffTestClockNotWallClock pins the throttle to a
// one-token burst and refill rate: two submits back-to-back on an
// unadvanced TestClock must deny the second regardless of how much real
// wall-clock time elapses while the test runs, and advancing the TestClock
// by exactly one refill period must let the next submit through — proving
// the bucket reads clock.TimestampNs(), not time.Now() (§4.7, §8.5).
func TestThrottleRefillsOffTestClockNotWallClock(t *testing.T) {
	e, sub, clk := newTestRiskEngineWithClock(t, Limits{}, 1, 1)

	require.NoError(t, e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500")))
	assert.Len(t, sub.calls, 1)

	err := e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500"))
	require.Error(t, err)
	assert.Len(t, sub.calls, 1)

	clk.AdvanceTime(int64(time.Second))

	require.NoError(t, e.HandleSubmit(context.Background(), submitCmd(t, "100", "0.6500")))
	assert.Len(t, sub.calls, 2)
}
