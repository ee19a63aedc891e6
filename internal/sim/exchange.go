// Package sim implements the SimulatedExchange of spec.md §4.12: a
// per-instrument matching engine driven by incoming market data, gated by a
// FillModel, that fills orders and republishes account state the same way
// a live venue adapter would — letting ExecutionEngine, RiskEngine, and
// Portfolio run unmodified in a backtest.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/account"
	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/execution"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// Notifier is the narrow slice of ExecutionEngine the exchange calls back
// into — it never holds a concrete *execution.Engine, mirroring the
// dependency discipline RiskEngine's Submitter interface already applies.
type Notifier interface {
	ProcessVenueEvent(ev event.OrderEvent) error
	NextExecutionId() value.ExecutionId
	ResolveFillLegs(instId value.InstrumentId, stratId value.StrategyId, side value.OrderSide, qty value.Quantity) []execution.FillLeg
}

type topOfBook struct {
	bid, ask value.Price
	known    bool
}

// Exchange is the SimulatedExchange: it implements execution.Client so it
// plugs into ExecutionEngine exactly like an HTTPExecutionClient would.
type Exchange struct {
	venue     value.Venue
	oms       value.OMSType
	acctType  value.AccountType
	accountId value.AccountId

	cache    *cache.Cache
	notifier Notifier
	bus      *bus.MessageBus
	logger   *slog.Logger

	fillModel FillModel
	modules   []SimulationModule

	mu        sync.Mutex
	books     map[value.InstrumentId]*book
	tops      map[value.InstrumentId]topOfBook
	venueSeq  uint64
}

var _ execution.Client = (*Exchange)(nil)

// Config configures one simulated venue (§6 "Backtest driver surface" —
// venues: venue, OMS type, account type, base currency, starting balances).
type Config struct {
	Venue              value.Venue
	OMSType            value.OMSType
	AccountType        value.AccountType
	AccountId          value.AccountId
	StartingBalances   []value.Money
	FillModel          FillModel
}

// New builds a simulated venue and seeds its account with StartingBalances.
func New(cfg Config, c *cache.Cache, notifier Notifier, b *bus.MessageBus, logger *slog.Logger) (*Exchange, error) {
	acct := account.New(cfg.AccountId, cfg.Venue, cfg.AccountType)
	balances := make([]event.Balance, 0, len(cfg.StartingBalances))
	for _, m := range cfg.StartingBalances {
		balances = append(balances, event.Balance{Currency: m.Currency(), Total: m, Locked: value.ZeroMoney(m.Currency()), Free: m})
	}
	if err := acct.Apply(event.NewAccountState(cfg.AccountId, cfg.AccountType, balances, nil, 0, "STARTING_BALANCE")); err != nil {
		return nil, err
	}
	if err := c.AddAccount(acct); err != nil {
		return nil, err
	}

	return &Exchange{
		venue:     cfg.Venue,
		oms:       cfg.OMSType,
		acctType:  cfg.AccountType,
		accountId: cfg.AccountId,
		cache:     c,
		notifier:  notifier,
		bus:       b,
		logger:    logger.With("component", "sim-exchange", "venue", string(cfg.Venue)),
		fillModel: cfg.FillModel,
		books:     make(map[value.InstrumentId]*book),
		tops:      make(map[value.InstrumentId]topOfBook),
	}, nil
}

// AddModule registers a pluggable SimulationModule (e.g. nightly rollover).
func (ex *Exchange) AddModule(m SimulationModule) { ex.modules = append(ex.modules, m) }

// OnVenueMidnight runs every registered SimulationModule for the venue-local
// day boundary dateLocal — called by the backtest driver as the Clock
// crosses midnight (§4.12 "Trigger time is venue-local midnight, resolved
// via the Clock").
func (ex *Exchange) OnVenueMidnight(dateLocal string, tsEventNs int64) error {
	for _, m := range ex.modules {
		if err := m.OnVenueMidnight(ex, dateLocal, tsEventNs); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exchange) Venue() value.Venue { return ex.venue }

func (ex *Exchange) bookFor(instId value.InstrumentId) *book {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	b, ok := ex.books[instId]
	if !ok {
		b = newBook()
		ex.books[instId] = b
	}
	return b
}

func (ex *Exchange) nextVenueOrderId() value.VenueOrderId {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.venueSeq++
	return value.VenueOrderId(fmt.Sprintf("SIM-%s-%d", ex.venue, ex.venueSeq))
}

func (ex *Exchange) env(o *order.Order, tsEventNs int64) event.Envelope {
	return event.Envelope{
		ClientOrderId: o.ClientOrderId,
		InstrumentId:  o.InstrumentId,
		StrategyId:    o.StrategyId,
		TsEventNs:     tsEventNs,
		TsInitNs:      tsEventNs,
	}
}

// Submit accepts o at the venue and attempts an immediate fill for MARKET
// orders and marketable LIMIT orders; everything else rests in the book
// (§4.12 "Order handling on submit").
func (ex *Exchange) Submit(ctx context.Context, o *order.Order) error {
	inst, ok := ex.cache.Instrument(o.InstrumentId)
	if !ok {
		return kernelerr.NewNotFound("UNKNOWN_INSTRUMENT", "sim exchange received order for unknown instrument").
			With("instrument_id", o.InstrumentId.String())
	}

	venueOrderId := ex.nextVenueOrderId()
	if err := ex.notifier.ProcessVenueEvent(event.NewOrderAccepted(ex.env(o, 0), venueOrderId)); err != nil {
		return err
	}

	switch o.Type {
	case value.Market:
		return ex.fillMarket(o, inst, "TAKER")
	case value.Limit:
		top, known := ex.topOf(o.InstrumentId)
		if known && marketableLimit(o, top) {
			return ex.fillAt(o, inst, *o.Price, "TAKER")
		}
		ex.bookFor(o.InstrumentId).add(o)
		return nil
	case value.StopMarket, value.StopLimit:
		ex.bookFor(o.InstrumentId).add(o)
		return nil
	default:
		return kernelerr.NewValidation("UNKNOWN_ORDER_TYPE", "sim exchange cannot route this order type")
	}
}

func marketableLimit(o *order.Order, top topOfBook) bool {
	if o.Side == value.Buy {
		return o.Price.GreaterOrEqual(top.ask)
	}
	return o.Price.LessOrEqual(top.bid)
}

// Modify re-rests a working order at a new price/quantity. The sim applies
// it immediately (no venue round-trip latency to simulate) and re-sorts the
// book so the order loses time priority, mirroring a real venue's
// cancel-replace semantics.
func (ex *Exchange) Modify(ctx context.Context, cmd execution.ModifyOrder) error {
	o, ok := ex.cache.OrderByClientId(cmd.ClientOrderId)
	if !ok {
		return kernelerr.NewNotFound("ORDER_NOT_FOUND", "modify references unknown order").
			With("client_order_id", string(cmd.ClientOrderId))
	}
	b := ex.bookFor(o.InstrumentId)
	b.remove(cmd.ClientOrderId)

	if err := ex.notifier.ProcessVenueEvent(event.NewOrderPendingUpdate(ex.env(o, cmd.TsInitNs), o.VenueOrderId)); err != nil {
		return err
	}
	if err := ex.notifier.ProcessVenueEvent(event.NewOrderUpdated(ex.env(o, cmd.TsInitNs), o.VenueOrderId, cmd.Price, cmd.TriggerPrice, cmd.Quantity)); err != nil {
		return err
	}
	b.add(o)
	return nil
}

// Cancel removes a resting order from its book and terminates it.
func (ex *Exchange) Cancel(ctx context.Context, cmd execution.CancelOrder) error {
	o, ok := ex.cache.OrderByClientId(cmd.ClientOrderId)
	if !ok {
		return kernelerr.NewNotFound("ORDER_NOT_FOUND", "cancel references unknown order").
			With("client_order_id", string(cmd.ClientOrderId))
	}
	ex.bookFor(o.InstrumentId).remove(cmd.ClientOrderId)

	if err := ex.notifier.ProcessVenueEvent(event.NewOrderPendingCancel(ex.env(o, cmd.TsInitNs), o.VenueOrderId)); err != nil {
		return err
	}
	return ex.notifier.ProcessVenueEvent(event.NewOrderCanceled(ex.env(o, cmd.TsInitNs), o.VenueOrderId, "USER_CANCEL"))
}

func (ex *Exchange) topOf(instId value.InstrumentId) (topOfBook, bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	t, ok := ex.tops[instId]
	return t, ok && t.known
}

// ProcessQuoteTick updates the synthetic top-of-book for instId and runs a
// match pass over its resting orders.
func (ex *Exchange) ProcessQuoteTick(q data.QuoteTick) error {
	ex.mu.Lock()
	ex.tops[q.InstrumentId] = topOfBook{bid: q.BidPrice, ask: q.AskPrice, known: true}
	ex.mu.Unlock()
	return ex.match(q.InstrumentId, q.TsEventNs)
}

// ProcessTradeTick records nothing from the trade — it does not move the
// synthetic bid/ask — and reruns a match pass against the current
// top-of-book, only if one is already known from a prior quote.
func (ex *Exchange) ProcessTradeTick(t data.TradeTick) error {
	if _, known := ex.topOf(t.InstrumentId); !known {
		return nil
	}
	return ex.match(t.InstrumentId, t.TsEventNs)
}

// ProcessBar walks the bar's open/high/low/close envelope as a sequence of
// synthetic zero-spread quotes, in the conservative order convention: a
// bullish bar (close >= open) is walked open→low→high→close, a bearish bar
// open→high→low→close, so a triggered stop is never given the benefit of
// the more favorable excursion (§4.12 "Bar-driven matching").
func (ex *Exchange) ProcessBar(b data.Bar) error {
	var path []value.Price
	if b.Close.GreaterOrEqual(b.Open) {
		path = []value.Price{b.Open, b.Low, b.High, b.Close}
	} else {
		path = []value.Price{b.Open, b.High, b.Low, b.Close}
	}
	for _, px := range path {
		ex.mu.Lock()
		ex.tops[b.InstrumentId] = topOfBook{bid: px, ask: px, known: true}
		ex.mu.Unlock()
		if err := ex.match(b.InstrumentId, b.TsEventNs); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exchange) match(instId value.InstrumentId, tsEventNs int64) error {
	inst, ok := ex.cache.Instrument(instId)
	if !ok {
		return nil
	}
	top, ok := ex.topOf(instId)
	if !ok {
		return nil
	}
	b := ex.bookFor(instId)
	buys, sells := b.snapshotSides()

	for _, ro := range buys {
		if err := ex.matchOne(ro, inst, top, tsEventNs); err != nil {
			return err
		}
	}
	for _, ro := range sells {
		if err := ex.matchOne(ro, inst, top, tsEventNs); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Exchange) matchOne(ro *restingOrder, inst value.Instrument, top topOfBook, tsEventNs int64) error {
	o := ro.o
	if o.IsClosed() {
		ex.bookFor(o.InstrumentId).remove(o.ClientOrderId)
		return nil
	}

	switch o.Type {
	case value.StopMarket, value.StopLimit:
		return ex.matchStop(ro, o, inst, top, tsEventNs)
	case value.Limit:
		return ex.matchLimit(ro, o, inst, top, tsEventNs)
	default:
		return nil
	}
}

func (ex *Exchange) matchStop(ro *restingOrder, o *order.Order, inst value.Instrument, top topOfBook, tsEventNs int64) error {
	if o.Status == order.Triggered {
		// STOP_LIMIT already converted: re-check as a working limit.
		return ex.matchLimit(ro, o, inst, top, tsEventNs)
	}
	if o.TriggerPrice == nil {
		return nil
	}
	trigger := *o.TriggerPrice

	var fires bool
	if o.Side == value.Buy {
		if top.ask.GreaterThan(trigger) {
			fires = true
		} else if top.ask.Equal(trigger) {
			fires = ex.fillModel.triggersOnTouch()
		}
	} else {
		if top.bid.LessThan(trigger) {
			fires = true
		} else if top.bid.Equal(trigger) {
			fires = ex.fillModel.triggersOnTouch()
		}
	}
	if !fires {
		return nil
	}

	if o.Type == value.StopMarket {
		ex.bookFor(o.InstrumentId).remove(o.ClientOrderId)
		return ex.fillMarket(o, inst, "TAKER")
	}

	// STOP_LIMIT: trigger, then re-check marketability as a working limit.
	if err := ex.notifier.ProcessVenueEvent(event.NewOrderTriggered(ex.env(o, tsEventNs), o.VenueOrderId)); err != nil {
		return err
	}
	return ex.matchLimit(ro, o, inst, top, tsEventNs)
}

// matchLimit fills a marketable or just-triggered limit at its own
// limitPx — "fill as market at the limit price" per §4.12. Note this
// literally fills a triggered STOP_LIMIT at its limit price, not at
// whatever tighter price the ask/bid has reached (spec.md's scenario S3
// narrates a fill at an intermediate tick the book walked through before
// settling at the limit; §4.12's own matching rule and S3's narrated
// outcome don't agree, and no original_source/ matching-engine test
// vector exists to arbitrate which one is authoritative — this follows
// the §4.12 rule).
func (ex *Exchange) matchLimit(ro *restingOrder, o *order.Order, inst value.Instrument, top topOfBook, tsEventNs int64) error {
	if o.Price == nil {
		return nil
	}
	limitPx := *o.Price

	var fills bool
	if o.Side == value.Buy {
		if top.ask.LessThan(limitPx) {
			fills = true
		} else if top.ask.Equal(limitPx) {
			fills = ex.fillModel.fillsOnTouch()
		}
	} else {
		if top.bid.GreaterThan(limitPx) {
			fills = true
		} else if top.bid.Equal(limitPx) {
			fills = ex.fillModel.fillsOnTouch()
		}
	}
	if !fills {
		return nil
	}

	ex.bookFor(o.InstrumentId).remove(o.ClientOrderId)
	return ex.fillAt(o, inst, limitPx, "MAKER")
}

// fillMarket fills a MARKET order at the current top-of-book taker side,
// applying one tick of adverse slippage when the FillModel's slippage gate
// hits (§4.12 "if prob_slippage hits, the fill price is shifted by one tick
// against the taker").
func (ex *Exchange) fillMarket(o *order.Order, inst value.Instrument, liquidity string) error {
	top, known := ex.topOf(o.InstrumentId)
	if !known {
		return ex.notifier.ProcessVenueEvent(event.NewOrderRejected(ex.env(o, 0), "NO_MARKET_DATA"))
	}

	fillPx := top.ask
	direction := 1
	if o.Side == value.Sell {
		fillPx = top.bid
		direction = -1
	}
	if ex.fillModel.slips() {
		shifted, err := fillPx.OneTick(inst.TickSize, direction)
		if err == nil {
			fillPx = shifted
		}
	}
	return ex.fillAt(o, inst, fillPx, liquidity)
}

// fillAt executes o.LeavesQty() at px, publishing one OrderFilled per
// position leg the fill routes to (a HEDGING reducing fill may close more
// than one open position, oldest first — §4.4) and settling the account
// for each leg's own commission and, for a margin account, locked margin
// (§4.12 "Post-fill").
func (ex *Exchange) fillAt(o *order.Order, inst value.Instrument, px value.Price, liquidity string) error {
	qty := o.LeavesQty()
	if qty.IsZero() {
		return nil
	}

	legs := ex.notifier.ResolveFillLegs(o.InstrumentId, o.StrategyId, o.Side, qty)
	for _, leg := range legs {
		execId := ex.notifier.NextExecutionId()
		commission := ex.commission(inst, leg.Quantity, px, liquidity)

		env := ex.env(o, 0)
		filled := event.NewOrderFilled(env, o.VenueOrderId, execId, leg.PositionId, o.Side, leg.Quantity, px, commission, liquidity)
		if err := ex.notifier.ProcessVenueEvent(filled); err != nil {
			return err
		}

		if err := ex.settleFill(inst, o, leg.Quantity, px, commission); err != nil {
			return err
		}
	}
	return nil
}

// commission applies the instrument's maker/taker bps plus a fixed fee to
// the fill's notional (§4.12 "Commission model is pluggable").
func (ex *Exchange) commission(inst value.Instrument, qty value.Quantity, px value.Price, liquidity string) value.Money {
	bps := inst.Fees.TakerBps
	if liquidity == "MAKER" {
		bps = inst.Fees.MakerBps
	}
	notional := decimal.NewFromFloat(qty.AsFloat64() * px.AsFloat64() * inst.Multiplier)
	rate := decimal.NewFromFloat(bps / 10000)
	variable := value.NewMoneyFromDecimal(notional.Mul(rate), inst.SettlementCurrency)
	total, err := variable.Add(inst.Fees.Fixed)
	if err != nil {
		return variable
	}
	return total
}

// settleFill updates the venue account: a cash account debits notional (for
// a buy) or credits it (for a sell) plus always debits commission; a margin
// account instead locks/unlocks initial margin against the instrument and
// only debits commission from free balance.
func (ex *Exchange) settleFill(inst value.Instrument, o *order.Order, qty value.Quantity, px value.Price, commission value.Money) error {
	acct, ok := ex.cache.Account(ex.accountId)
	if !ok {
		return kernelerr.NewNotFound("ACCOUNT_NOT_FOUND", "sim exchange account missing from cache").
			With("account_id", string(ex.accountId))
	}

	ccy := inst.SettlementCurrency
	bal := acct.BalanceOf(ccy)
	total := bal.Total
	free := bal.Free

	notional := value.NewMoneyFromDecimal(
		decimal.NewFromFloat(qty.AsFloat64()*px.AsFloat64()*inst.Multiplier), ccy)

	var err error
	switch ex.acctType {
	case value.Cash:
		if o.Side == value.Buy {
			total, err = total.Sub(notional)
		} else {
			total, err = total.Add(notional)
		}
		if err != nil {
			return err
		}
		free = total
	case value.Margin:
		initial := value.NewMoneyFromDecimal(
			decimal.NewFromFloat(notional.AsFloat64()*inst.Margin.InitialRate), ccy)
		locked := bal.Locked
		locked, err = locked.Add(initial)
		if err != nil {
			return err
		}
		free, err = total.Sub(locked)
		if err != nil {
			return err
		}
	}

	total, err = total.Sub(commission)
	if err != nil {
		return err
	}
	free, err = free.Sub(commission)
	if err != nil {
		return err
	}

	locked, err := total.Sub(free)
	if err != nil {
		return err
	}
	newBalances := []event.Balance{{Currency: ccy, Total: total, Locked: locked, Free: free}}

	state := event.NewAccountState(ex.accountId, ex.acctType, newBalances, nil, 0, "FILL")
	if err := acct.Apply(state); err != nil {
		return err
	}
	if err := ex.cache.UpdateAccount(acct); err != nil {
		return err
	}
	ex.bus.Publish(bus.TopicAccountEvents(ex.accountId), state)
	return nil
}
