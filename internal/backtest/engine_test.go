package backtest

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// buyOnFirstQuote submits a single market buy the first time it sees a quote
// tick, then records every order event it receives — just enough behavior to
// exercise Run/Reset end to end without needing a real trading strategy.
type buyOnFirstQuote struct {
	instId  value.InstrumentId
	submitted bool
	events  []event.OrderEvent
	started int
	stopped int
	reset   int
}

func (s *buyOnFirstQuote) OnStart(ctx *Context) {
	s.started++
	ctx.SubscribeQuoteTicks(s.instId)
}

func (s *buyOnFirstQuote) OnStop(ctx *Context)  { s.stopped++ }
func (s *buyOnFirstQuote) OnReset(ctx *Context) { s.reset++ }

func (s *buyOnFirstQuote) OnQuoteTick(ctx *Context, q data.QuoteTick) {
	if s.submitted {
		return
	}
	s.submitted = true
	qty, err := value.NewQuantityFromString("1000", 0)
	if err != nil {
		panic(err)
	}
	_ = ctx.SubmitOrder(context.Background(), order.Params{
		ClientOrderId: "CO-1",
		InstrumentId:  s.instId,
		Side:          value.Buy,
		Type:          value.Market,
		Quantity:      qty,
		TimeInForce:   value.TimeInForce{Kind: value.GTC},
	}, "SIM-001")
}

func (s *buyOnFirstQuote) OnTradeTick(ctx *Context, t data.TradeTick) {}
func (s *buyOnFirstQuote) OnBar(ctx *Context, b data.Bar)             {}

func (s *buyOnFirstQuote) OnOrderEvent(ctx *Context, ev event.OrderEvent) {
	s.events = append(s.events, ev)
}
func (s *buyOnFirstQuote) OnPositionEvent(ctx *Context, ev event.PositionEvent) {}

func (s *buyOnFirstQuote) OnSave() map[string][]byte  { return nil }
func (s *buyOnFirstQuote) OnLoad(state map[string][]byte) {}

func quote(t *testing.T, instId value.InstrumentId, bid, ask string, tsNs int64) data.QuoteTick {
	t.Helper()
	bidPx, err := value.NewPriceFromString(bid, 4)
	require.NoError(t, err)
	askPx, err := value.NewPriceFromString(ask, 4)
	require.NoError(t, err)
	return data.QuoteTick{
		InstrumentId: instId,
		BidPrice:     bidPx,
		AskPrice:     askPx,
		TsEventNs:    tsNs,
		TsInitNs:     tsNs,
	}
}

func TestEngineRunFillsMarketOrderAndDispatchesEvents(t *testing.T) {
	e, err := NewTestKernel(slog.Default())
	require.NoError(t, err)

	instId := value.NewInstrumentId("AUD/USD", "SIM")
	strat := &buyOnFirstQuote{instId: instId}
	e.AddStrategy("S-1", strat)

	e.AddQuoteTicks([]data.QuoteTick{
		quote(t, instId, "0.7500", "0.7502", 1_000_000_000),
		quote(t, instId, "0.7501", "0.7503", 2_000_000_000),
	}, 0)

	require.NoError(t, e.Run(nil, nil))

	assert.Equal(t, 1, strat.started)
	assert.True(t, strat.submitted)
	require.NotEmpty(t, strat.events)

	o, ok := e.Cache().OrderByClientId("CO-1")
	require.True(t, ok)
	assert.Equal(t, order.Filled, o.Status)

	e.Stop()
	assert.Equal(t, 1, strat.stopped)
}

func TestEngineResetRebuildsRuntimeButKeepsConfiguration(t *testing.T) {
	e, err := NewTestKernel(slog.Default())
	require.NoError(t, err)

	instId := value.NewInstrumentId("AUD/USD", "SIM")
	strat := &buyOnFirstQuote{instId: instId}
	e.AddStrategy("S-1", strat)
	e.AddQuoteTicks([]data.QuoteTick{quote(t, instId, "0.7500", "0.7502", 1_000_000_000)}, 0)

	require.NoError(t, e.Run(nil, nil))
	assert.True(t, strat.submitted)

	require.NoError(t, e.Reset())
	assert.Equal(t, 1, strat.reset)

	o, ok := e.Cache().OrderByClientId("CO-1")
	assert.False(t, ok, "fresh runtime after Reset should not carry over the old order")
	_ = o

	strat.submitted = false
	require.NoError(t, e.Run(nil, nil))
	assert.True(t, strat.submitted)
}

func TestEngineRunRespectsStartAndStopBounds(t *testing.T) {
	e, err := NewTestKernel(slog.Default())
	require.NoError(t, err)

	instId := value.NewInstrumentId("AUD/USD", "SIM")
	strat := &buyOnFirstQuote{instId: instId}
	e.AddStrategy("S-1", strat)
	e.AddQuoteTicks([]data.QuoteTick{quote(t, instId, "0.7500", "0.7502", 1_000_000_000)}, 0)

	start := int64(5_000_000_000)
	stop := int64(6_000_000_000)
	require.NoError(t, e.Run(&start, &stop))

	assert.False(t, strat.submitted, "quote before the start bound must not be dispatched")
}
