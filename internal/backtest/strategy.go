package backtest

import (
	"context"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/clock"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/portfolio"
	"github.com/nautilus-go/kernel/internal/risk"
	"github.com/nautilus-go/kernel/internal/value"
)

// Strategy is the External Interfaces contract of §6: the kernel never
// knows anything about a concrete strategy beyond this interface, and
// drives every callback synchronously on the Engine's single thread.
type Strategy interface {
	OnStart(ctx *Context)
	OnStop(ctx *Context)
	OnReset(ctx *Context)
	OnQuoteTick(ctx *Context, q data.QuoteTick)
	OnTradeTick(ctx *Context, t data.TradeTick)
	OnBar(ctx *Context, b data.Bar)
	OnOrderEvent(ctx *Context, ev event.OrderEvent)
	OnPositionEvent(ctx *Context, ev event.PositionEvent)
	OnSave() map[string][]byte
	OnLoad(state map[string][]byte)
}

// Context is the handle a Strategy uses to act: submit/modify/cancel
// orders, subscribe to bus topics, read the clock, and read Cache/Portfolio
// state. It never exposes the engines themselves, so a strategy cannot
// reach around the RiskEngine.
type Context struct {
	StrategyId value.StrategyId

	clock     clock.Clock
	bus       *bus.MessageBus
	cache     *cache.Cache
	portfolio *portfolio.Portfolio
	risk      *risk.Engine
	exec      *execution.Engine
	strategy  Strategy
}

// SubscribeQuoteTicks wires instId's quote topic to this strategy's
// OnQuoteTick — the Go shape of §6's subscribe_quote_ticks.
func (c *Context) SubscribeQuoteTicks(instId value.InstrumentId) bus.SubscriptionHandle {
	return c.bus.Subscribe(bus.TopicDataQuotes(instId), 0, func(_ string, payload any) {
		if q, ok := payload.(data.QuoteTick); ok {
			c.strategy.OnQuoteTick(c, q)
		}
	})
}

// SubscribeTradeTicks wires instId's trade topic to OnTradeTick.
func (c *Context) SubscribeTradeTicks(instId value.InstrumentId) bus.SubscriptionHandle {
	return c.bus.Subscribe(bus.TopicDataTrades(instId), 0, func(_ string, payload any) {
		if t, ok := payload.(data.TradeTick); ok {
			c.strategy.OnTradeTick(c, t)
		}
	})
}

// SubscribeBars wires barType's bar topic to OnBar.
func (c *Context) SubscribeBars(barType string) bus.SubscriptionHandle {
	return c.bus.Subscribe(bus.TopicDataBars(barType), 0, func(_ string, payload any) {
		if bar, ok := payload.(data.Bar); ok {
			c.strategy.OnBar(c, bar)
		}
	})
}

// SubmitOrder routes params through the RiskEngine's pre-trade checks
// (§4.10) before it ever reaches a venue.
func (c *Context) SubmitOrder(ctx context.Context, params order.Params, acctId value.AccountId) error {
	params.StrategyId = c.StrategyId
	return c.risk.HandleSubmit(ctx, execution.SubmitOrder{
		Params:    params,
		AccountId: acctId,
		TsInitNs:  c.clock.TimestampNs(),
	})
}

// ModifyOrder and CancelOrder go straight to the ExecutionEngine — only new
// order submission is risk-gated (§4.9, §4.10).
func (c *Context) ModifyOrder(ctx context.Context, cmd execution.ModifyOrder) error {
	cmd.TsInitNs = c.clock.TimestampNs()
	return c.exec.HandleModify(ctx, cmd)
}

func (c *Context) CancelOrder(ctx context.Context, cmd execution.CancelOrder) error {
	cmd.TsInitNs = c.clock.TimestampNs()
	return c.exec.HandleCancel(ctx, cmd)
}

// Subscribe registers handler for every topic matching pattern.
func (c *Context) Subscribe(pattern string, handler bus.Handler) bus.SubscriptionHandle {
	return c.bus.Subscribe(pattern, 0, handler)
}

func (c *Context) Clock() clock.Clock             { return c.clock }
func (c *Context) Cache() *cache.Cache            { return c.cache }
func (c *Context) Portfolio() *portfolio.Portfolio { return c.portfolio }
