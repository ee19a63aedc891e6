// Package risk implements the RiskEngine (§4.10): pre-trade validation,
// per-endpoint throttling, and a kill-switch gate on top of ExecutionEngine.
package risk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/clock"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/value"
)

// Limits configures the pre-trade checks applied to every instrument and
// strategy. A zero MaxQuantity/MaxNotional means "no limit configured" for
// that key — absent entries are permissive, not rejecting.
type Limits struct {
	MaxQuantityByInstrument map[value.InstrumentId]value.Quantity
	MaxNotionalByStrategy   map[value.StrategyId]float64
}

// Submitter is the downstream the RiskEngine forwards accepted commands to
// — ordinarily the ExecutionEngine, substitutable in tests.
type Submitter interface {
	HandleSubmit(ctx context.Context, cmd execution.SubmitOrder) error
}

// Engine is the RiskEngine of §4.10.
type Engine struct {
	bus    *bus.MessageBus
	cache  *cache.Cache
	clock  clock.Clock
	next   Submitter
	logger *slog.Logger

	limits Limits

	mu            sync.Mutex
	tradingState  map[value.InstrumentId]value.TradingState
	orderThrottle map[value.StrategyId]*TokenBucket
	throttleRate  float64 // orders/sec granted to a newly seen strategy
	throttleBurst float64
}

// New builds a RiskEngine forwarding accepted commands to next. clk is the
// single Clock handle the kernel passes into every engine (§9 "Global
// clock") — the throttle bucket refills off clk.TimestampNs() rather than
// the wall clock so it stays deterministic under a TestClock (§4.7).
// throttleBurst/throttleRate configure the per-strategy token bucket lazily
// created the first time a strategy submits (§4.10 "token-bucket per
// endpoint").
func New(b *bus.MessageBus, c *cache.Cache, clk clock.Clock, next Submitter, limits Limits, throttleBurst, throttleRate float64, logger *slog.Logger) *Engine {
	return &Engine{
		bus:           b,
		cache:         c,
		clock:         clk,
		next:          next,
		logger:        logger.With("component", "risk-engine"),
		limits:        limits,
		tradingState:  make(map[value.InstrumentId]value.TradingState),
		orderThrottle: make(map[value.StrategyId]*TokenBucket),
		throttleRate:  throttleRate,
		throttleBurst: throttleBurst,
	}
}

// SetTradingState gates all subsequent submits for instId; HALTED and
// REDUCING both deny new orders (§4.10).
func (e *Engine) SetTradingState(instId value.InstrumentId, state value.TradingState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradingState[instId] = state
}

func (e *Engine) throttleFor(stratId value.StrategyId) *TokenBucket {
	e.mu.Lock()
	defer e.mu.Unlock()
	tb, ok := e.orderThrottle[stratId]
	if !ok {
		tb = NewTokenBucket(e.throttleBurst, e.throttleRate, e.clock.TimestampNs())
		e.orderThrottle[stratId] = tb
	}
	return tb
}

// HandleSubmit runs every pre-trade check in order and either denies the
// order (publishing OrderDenied with a reason code) or forwards it to the
// routed Submitter.
func (e *Engine) HandleSubmit(ctx context.Context, cmd execution.SubmitOrder) error {
	env := event.Envelope{
		ClientOrderId: cmd.Params.ClientOrderId,
		InstrumentId:  cmd.Params.InstrumentId,
		StrategyId:    cmd.Params.StrategyId,
		TsEventNs:     cmd.TsInitNs,
		TsInitNs:      cmd.TsInitNs,
	}

	if reason, denied := e.check(cmd); denied {
		e.deny(env, reason)
		return kernelerr.NewRejected("ORDER_DENIED", reason).With("client_order_id", string(cmd.Params.ClientOrderId))
	}

	if !e.throttleFor(cmd.Params.StrategyId).TryTake(e.clock.TimestampNs()) {
		e.deny(env, "THROTTLED")
		return kernelerr.NewRejected("ORDER_DENIED", "THROTTLED").With("client_order_id", string(cmd.Params.ClientOrderId))
	}

	return e.next.HandleSubmit(ctx, cmd)
}

func (e *Engine) deny(env event.Envelope, reason string) {
	e.bus.Publish(bus.TopicOrderEvents(env.StrategyId, env.InstrumentId), event.NewOrderDenied(env, reason))
}

func (e *Engine) check(cmd execution.SubmitOrder) (reason string, denied bool) {
	inst, ok := e.cache.Instrument(cmd.Params.InstrumentId)
	if !ok {
		return "UNKNOWN_INSTRUMENT", true
	}

	e.mu.Lock()
	state := e.tradingState[cmd.Params.InstrumentId]
	e.mu.Unlock()
	if state == value.Halted || state == value.Reducing {
		return "TRADING_" + state.String(), true
	}

	if cmd.Params.Price != nil {
		if err := inst.ValidatePrice(*cmd.Params.Price); err != nil {
			return "PRICE_OFF_TICK_GRID", true
		}
	}

	if maxQty, ok := e.limits.MaxQuantityByInstrument[cmd.Params.InstrumentId]; ok && !maxQty.IsZero() {
		if cmd.Params.Quantity.GreaterThan(maxQty) {
			return "MAX_QUANTITY_EXCEEDED", true
		}
	}

	if maxNotional, ok := e.limits.MaxNotionalByStrategy[cmd.Params.StrategyId]; ok && maxNotional > 0 && cmd.Params.Price != nil {
		notional := cmd.Params.Price.AsFloat64() * cmd.Params.Quantity.AsFloat64()
		if notional > maxNotional {
			return "MAX_NOTIONAL_EXCEEDED", true
		}
	}

	return "", false
}
