// Package backtest implements the Backtest driver of §5/§6: it merges every
// registered data stream into one totally-ordered sequence, advances a
// TestClock through it with no blocking at all, and wires MessageBus, Cache,
// DataEngine, ExecutionEngine, RiskEngine, Portfolio, and one SimulatedExchange
// per configured venue together exactly as a live kernel would, so a
// Strategy cannot tell the difference.
package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/clock"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/portfolio"
	"github.com/nautilus-go/kernel/internal/risk"
	"github.com/nautilus-go/kernel/internal/sim"
	"github.com/nautilus-go/kernel/internal/value"
)

// VenueConfig configures one simulated venue (§6 "Backtest driver surface").
type VenueConfig struct {
	Venue            value.Venue
	OMSType          value.OMSType
	AccountType      value.AccountType
	AccountId        value.AccountId
	StartingBalances []value.Money
	FillModel        sim.FillModel
	Modules          []sim.SimulationModule
}

// EngineConfig configures the parts of the backtest driver that are not
// venues, instruments, data, or strategies (§6 "engine config").
type EngineConfig struct {
	Limits        risk.Limits
	ThrottleBurst float64
	ThrottleRate  float64
	StartNs       int64
}

type registeredStream struct {
	quotes   []data.QuoteTick
	trades   []data.TradeTick
	bars     []data.Bar
	priority int
}

type registeredStrategy struct {
	id value.StrategyId
	s  Strategy
}

// Engine is the Backtest driver. Its configuration (instruments, currencies,
// venues, data streams, strategies) survives Reset; its runtime state (bus,
// clock, cache, engines, venue exchanges) is rebuilt fresh by Run and Reset.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	currencies  []value.Currency
	instruments []value.Instrument
	venueCfgs   []VenueConfig
	streams     []registeredStream
	strategies  []registeredStrategy

	cacheDb cache.Database

	built       bool
	bus         *bus.MessageBus
	clock       *clock.TestClock
	cache       *cache.Cache
	dataEngine  *data.Engine
	execEngine  *execution.Engine
	riskEngine  *risk.Engine
	portfolio   *portfolio.Portfolio
	venues      map[value.Venue]*sim.Exchange
	contexts    map[value.StrategyId]*Context
	venueDate   map[value.Venue]string
}

// New builds an unconfigured backtest Engine. Call the Add* methods to
// configure it, then Run.
func New(cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger.With("component", "backtest-engine"),
	}
}

// AddCurrency registers a currency not already implied by an instrument.
func (e *Engine) AddCurrency(ccy value.Currency) { e.currencies = append(e.currencies, ccy) }

// AddInstrument registers inst, validating it up front so a malformed
// instrument fails at configuration time rather than mid-run.
func (e *Engine) AddInstrument(inst value.Instrument) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	e.instruments = append(e.instruments, inst)
	return nil
}

// AddExchange registers a simulated venue (§6's add_exchange).
func (e *Engine) AddExchange(cfg VenueConfig) { e.venueCfgs = append(e.venueCfgs, cfg) }

// SetCacheDatabase wires a write-through persistence backend (§4.6). Call
// before the first Run/Reset; the runtime cache is rebuilt against db every
// time build() runs, so the same db instance survives Reset.
func (e *Engine) SetCacheDatabase(db cache.Database) { e.cacheDb = db }

// AddStrategy registers a strategy under stratId. Strategies are started in
// registration order on Run/Reset.
func (e *Engine) AddStrategy(stratId value.StrategyId, s Strategy) {
	e.strategies = append(e.strategies, registeredStrategy{id: stratId, s: s})
}

// AddQuoteTicks registers one quote-tick stream, pre-sorted by TsEventNs by
// the caller (the historical source's natural order). priority breaks ties
// against other streams sharing a ts_event_ns (§5).
func (e *Engine) AddQuoteTicks(ticks []data.QuoteTick, priority int) {
	e.streams = append(e.streams, registeredStream{quotes: ticks, priority: priority})
}

// AddTradeTicks registers one trade-tick stream.
func (e *Engine) AddTradeTicks(ticks []data.TradeTick, priority int) {
	e.streams = append(e.streams, registeredStream{trades: ticks, priority: priority})
}

// AddBars registers one bar stream.
func (e *Engine) AddBars(bars []data.Bar, priority int) {
	e.streams = append(e.streams, registeredStream{bars: bars, priority: priority})
}

// build constructs a fresh MessageBus/Cache/Clock and wires every engine,
// venue, and strategy against them (§9 "Global clock" — one Clock handle
// constructed once and passed to everything).
func (e *Engine) build() error {
	b := bus.New(e.logger)
	clk := clock.NewTestClock(e.cfg.StartNs)
	c := cache.New(e.cacheDb)

	for _, ccy := range e.currencies {
		if err := c.AddCurrency(ccy); err != nil {
			return err
		}
	}
	for _, inst := range e.instruments {
		_ = c.AddCurrency(inst.BaseCurrency)
		_ = c.AddCurrency(inst.QuoteCurrency)
		_ = c.AddCurrency(inst.SettlementCurrency)
		if err := c.AddInstrument(inst); err != nil {
			return err
		}
	}

	omsByVenue := make(map[value.Venue]value.OMSType, len(e.venueCfgs))
	for _, vc := range e.venueCfgs {
		omsByVenue[vc.Venue] = vc.OMSType
	}

	dataEng := data.New(b, e.logger)
	execEng := execution.New(b, c, omsByVenue, e.logger)
	riskEng := risk.New(b, c, clk, execEng, e.cfg.Limits, e.cfg.ThrottleBurst, e.cfg.ThrottleRate, e.logger)
	pf := portfolio.New(c, e.logger)
	pf.Subscribe(b)

	venues := make(map[value.Venue]*sim.Exchange, len(e.venueCfgs))
	for _, vc := range e.venueCfgs {
		ex, err := sim.New(sim.Config{
			Venue:            vc.Venue,
			OMSType:          vc.OMSType,
			AccountType:      vc.AccountType,
			AccountId:        vc.AccountId,
			StartingBalances: vc.StartingBalances,
			FillModel:        vc.FillModel,
		}, c, execEng, b, e.logger)
		if err != nil {
			return err
		}
		for _, m := range vc.Modules {
			ex.AddModule(m)
		}
		execEng.RegisterClient(ex)
		venues[vc.Venue] = ex
	}

	contexts := make(map[value.StrategyId]*Context, len(e.strategies))
	for _, rs := range e.strategies {
		ctx := &Context{
			StrategyId: rs.id,
			clock:      clk,
			bus:        b,
			cache:      c,
			portfolio:  pf,
			risk:       riskEng,
			exec:       execEng,
			strategy:   rs.s,
		}
		contexts[rs.id] = ctx

		ctx.Subscribe(fmt.Sprintf("events.order.%s.*", rs.id), func(_ string, payload any) {
			if ev, ok := payload.(event.OrderEvent); ok {
				rs.s.OnOrderEvent(ctx, ev)
			}
		})
		ctx.Subscribe(fmt.Sprintf("events.position.%s.*", rs.id), func(_ string, payload any) {
			if ev, ok := payload.(event.PositionEvent); ok {
				rs.s.OnPositionEvent(ctx, ev)
			}
		})
	}

	e.bus = b
	e.clock = clk
	e.cache = c
	e.dataEngine = dataEng
	e.execEngine = execEng
	e.riskEngine = riskEng
	e.portfolio = pf
	e.venues = venues
	e.contexts = contexts
	e.venueDate = make(map[value.Venue]string)
	e.built = true

	for _, rs := range e.strategies {
		rs.s.OnStart(contexts[rs.id])
	}
	return nil
}

// Run merges every registered stream and dispatches it in order, advancing
// the TestClock explicitly at each step (§5 "no blocking at all ... the
// Clock is advanced explicitly by the engine driver"). startNs/stopNs, if
// non-nil, bound the window of events dispatched. Run builds the runtime on
// first call; call Reset to start a fresh run over the same configuration.
func (e *Engine) Run(startNs, stopNs *int64) error {
	if !e.built {
		if err := e.build(); err != nil {
			return err
		}
	}

	handles := make([]*streamHandle, 0, len(e.streams))
	for i, st := range e.streams {
		switch {
		case st.quotes != nil:
			handles = append(handles, &streamHandle{src: &quoteSource{ticks: st.quotes}, priority: st.priority, seq: uint64(i)})
		case st.trades != nil:
			handles = append(handles, &streamHandle{src: &tradeSource{ticks: st.trades}, priority: st.priority, seq: uint64(i)})
		case st.bars != nil:
			handles = append(handles, &streamHandle{src: &barSource{bars: st.bars}, priority: st.priority, seq: uint64(i)})
		}
	}

	for _, ev := range mergeStreams(handles) {
		ts := ev.tsEventNs()
		if startNs != nil && ts < *startNs {
			continue
		}
		if stopNs != nil && ts > *stopNs {
			break
		}

		for _, fired := range e.clock.AdvanceTime(ts) {
			_ = fired // timer handlers run synchronously inside AdvanceTime
		}

		instId := ev.instrumentId()
		if err := e.crossMidnightIfNeeded(instId.Venue, ts); err != nil {
			return err
		}

		ex, hasVenue := e.venues[instId.Venue]
		switch ev.kind {
		case eventQuote:
			e.dataEngine.ProcessQuoteTick(ev.quote)
			if hasVenue {
				if err := ex.ProcessQuoteTick(ev.quote); err != nil {
					return err
				}
			}
		case eventTrade:
			e.dataEngine.ProcessTradeTick(ev.trade)
			if hasVenue {
				if err := ex.ProcessTradeTick(ev.trade); err != nil {
					return err
				}
			}
		case eventBar:
			e.dataEngine.ProcessBar(ev.bar)
			if hasVenue {
				if err := ex.ProcessBar(ev.bar); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// crossMidnightIfNeeded calls the venue's rollover modules once per
// venue-local day boundary crossed, resolved from ts against a UTC
// calendar day — the simplification is documented as venue-local == UTC
// (§4.12 "Trigger time is venue-local midnight, resolved via the Clock").
func (e *Engine) crossMidnightIfNeeded(venue value.Venue, tsEventNs int64) error {
	ex, ok := e.venues[venue]
	if !ok {
		return nil
	}
	dateLocal := time.Unix(0, tsEventNs).UTC().Format("2006-01-02")
	prior, seen := e.venueDate[venue]
	e.venueDate[venue] = dateLocal
	if !seen || prior == dateLocal {
		return nil
	}
	return ex.OnVenueMidnight(dateLocal, tsEventNs)
}

// Reset restores initial state (fresh bus, clock, cache, engines, venue
// accounts) while retaining the added instruments, currencies, venues, data
// streams, and strategies (§6 "reset() restores initial state while
// retaining added instruments and data").
func (e *Engine) Reset() error {
	if e.built {
		for _, rs := range e.strategies {
			rs.s.OnReset(e.contexts[rs.id])
		}
	}
	e.built = false
	return e.build()
}

// Stop runs every strategy's OnStop against the current runtime. Call once
// after the last Run before reading final reports.
func (e *Engine) Stop() {
	if !e.built {
		return
	}
	for _, rs := range e.strategies {
		rs.s.OnStop(e.contexts[rs.id])
	}
}

func (e *Engine) Cache() *cache.Cache             { return e.cache }
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.portfolio }
func (e *Engine) Clock() clock.Clock              { return e.clock }
func (e *Engine) Bus() *bus.MessageBus            { return e.bus }

// Venue returns the simulated exchange registered for venue, if built.
func (e *Engine) Venue(venue value.Venue) (*sim.Exchange, error) {
	ex, ok := e.venues[venue]
	if !ok {
		return nil, kernelerr.NewNotFound("VENUE_NOT_CONFIGURED", "no exchange configured for venue").
			With("venue", string(venue))
	}
	return ex, nil
}
