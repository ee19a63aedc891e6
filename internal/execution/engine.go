package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

// Engine is the ExecutionEngine of §4.9: the only component that mutates an
// Order via its state machine, and the sole writer of Position state off
// the back of an OrderFilled.
type Engine struct {
	bus    *bus.MessageBus
	cache  *cache.Cache
	logger *slog.Logger

	mu       sync.Mutex
	clients  map[value.Venue]Client
	omsType  map[value.Venue]value.OMSType
	hedgeSeq map[string]uint64
	execSeq  uint64
}

// New builds an ExecutionEngine. omsType supplies the OMS policy (NETTING
// vs HEDGING) per venue — read by ResolveFillLegs on every fill to decide
// PositionId allocation (§4.4).
func New(b *bus.MessageBus, c *cache.Cache, omsType map[value.Venue]value.OMSType, logger *slog.Logger) *Engine {
	return &Engine{
		bus:      b,
		cache:    c,
		logger:   logger.With("component", "execution-engine"),
		clients:  make(map[value.Venue]Client),
		omsType:  omsType,
		hedgeSeq: make(map[string]uint64),
	}
}

// RegisterClient binds a venue to the Client that routed commands for that
// venue's instruments are forwarded to.
func (e *Engine) RegisterClient(c Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clients[c.Venue()] = c
}

func (e *Engine) clientFor(instId value.InstrumentId) (Client, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.clients[instId.Venue]
	return c, ok
}

// HandleSubmit validates cmd against the cache, creates the Order in
// INITIALIZED, applies OrderSubmitted, persists it, and forwards to the
// routed Client.
func (e *Engine) HandleSubmit(ctx context.Context, cmd SubmitOrder) error {
	if _, ok := e.cache.Instrument(cmd.Params.InstrumentId); !ok {
		return kernelerr.NewValidation("UNKNOWN_INSTRUMENT", "submit references unknown instrument").
			With("instrument_id", cmd.Params.InstrumentId.String())
	}
	if _, exists := e.cache.OrderByClientId(cmd.Params.ClientOrderId); exists {
		return kernelerr.NewValidation("DUPLICATE_CLIENT_ORDER_ID", "client_order_id already in use").
			With("client_order_id", string(cmd.Params.ClientOrderId))
	}

	o := order.New(cmd.Params)
	if err := e.cache.AddOrder(o); err != nil {
		return err
	}

	env := event.Envelope{
		ClientOrderId: cmd.Params.ClientOrderId,
		InstrumentId:  cmd.Params.InstrumentId,
		StrategyId:    cmd.Params.StrategyId,
		TsEventNs:     cmd.TsInitNs,
		TsInitNs:      cmd.TsInitNs,
	}
	if err := e.applyAndPublish(o, event.NewOrderSubmitted(env, cmd.AccountId)); err != nil {
		return err
	}

	client, ok := e.clientFor(cmd.Params.InstrumentId)
	if !ok {
		return kernelerr.NewNotFound("NO_ROUTED_CLIENT", "no execution client registered for venue").
			With("venue", string(cmd.Params.InstrumentId.Venue))
	}
	return client.Submit(ctx, o)
}

// HandleModify validates and forwards a resting order's modify request.
func (e *Engine) HandleModify(ctx context.Context, cmd ModifyOrder) error {
	o, ok := e.cache.OrderByClientId(cmd.ClientOrderId)
	if !ok {
		return kernelerr.NewNotFound("ORDER_NOT_FOUND", "modify references unknown order").
			With("client_order_id", string(cmd.ClientOrderId))
	}
	if !o.IsWorking() {
		return kernelerr.NewValidation("ORDER_NOT_WORKING", "cannot modify an order that is not working").
			With("client_order_id", string(cmd.ClientOrderId)).With("status", o.Status.String())
	}
	client, ok := e.clientFor(o.InstrumentId)
	if !ok {
		return kernelerr.NewNotFound("NO_ROUTED_CLIENT", "no execution client registered for venue").
			With("venue", string(o.InstrumentId.Venue))
	}
	return client.Modify(ctx, cmd)
}

// HandleCancel validates and forwards a working order's cancel request.
func (e *Engine) HandleCancel(ctx context.Context, cmd CancelOrder) error {
	o, ok := e.cache.OrderByClientId(cmd.ClientOrderId)
	if !ok {
		return kernelerr.NewNotFound("ORDER_NOT_FOUND", "cancel references unknown order").
			With("client_order_id", string(cmd.ClientOrderId))
	}
	if o.IsClosed() {
		return kernelerr.NewValidation("ORDER_ALREADY_CLOSED", "cannot cancel a terminal order").
			With("client_order_id", string(cmd.ClientOrderId)).With("status", o.Status.String())
	}
	client, ok := e.clientFor(o.InstrumentId)
	if !ok {
		return kernelerr.NewNotFound("NO_ROUTED_CLIENT", "no execution client registered for venue").
			With("venue", string(o.InstrumentId.Venue))
	}
	return client.Cancel(ctx, cmd)
}

// ProcessVenueEvent is the callback a Client (live or simulated) uses to
// deliver an OrderEvent asynchronously: it applies the event to the order
// via the state machine, persists it, recomputes position on a fill, and
// publishes on events.order.* / events.position.* (§4.9).
func (e *Engine) ProcessVenueEvent(ev event.OrderEvent) error {
	o, ok := e.cache.OrderByClientId(ev.ClientOrderID())
	if !ok {
		return kernelerr.NewNotFound("ORDER_NOT_FOUND", "venue event references unknown order").
			With("client_order_id", string(ev.ClientOrderID()))
	}

	if err := e.applyAndPublish(o, ev); err != nil {
		return err
	}

	if fill, ok := ev.(event.OrderFilled); ok {
		if err := e.applyFill(o, fill); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyAndPublish(o *order.Order, ev event.OrderEvent) error {
	if err := o.Apply(ev); err != nil {
		return err
	}
	if err := e.cache.UpdateOrder(o); err != nil {
		return err
	}
	e.bus.Publish(bus.TopicOrderEvents(event.StrategyID(ev), event.InstrumentID(ev)), ev)
	return nil
}

func (e *Engine) applyFill(o *order.Order, fill event.OrderFilled) error {
	inst, ok := e.cache.Instrument(o.InstrumentId)
	if !ok {
		return kernelerr.NewNotFound("UNKNOWN_INSTRUMENT", "fill references unknown instrument").
			With("instrument_id", o.InstrumentId.String())
	}

	pos, ok := e.cache.Position(fill.PositionId)
	isNew := !ok
	if isNew {
		pos = position.New(fill.PositionId, o.InstrumentId, o.StrategyId, inst)
	}

	events, err := pos.ApplyFill(position.Fill{
		ExecutionId: fill.ExecutionId,
		Side:        fill.Side,
		Quantity:    fill.LastQty,
		Price:       fill.LastPx,
		TsEventNs:   fill.TsEventNs(),
	})
	if err != nil {
		return err
	}

	if isNew {
		if err := e.cache.AddPosition(pos); err != nil {
			return err
		}
	} else {
		if err := e.cache.UpdatePosition(pos); err != nil {
			return err
		}
	}

	for _, pev := range events {
		e.bus.Publish(bus.TopicPositionEvents(o.StrategyId, o.InstrumentId), pev)
	}
	return nil
}

// NextExecutionId allocates the next monotonically increasing execution id,
// used by an ExecutionClient to stamp an OrderFilled (§4.12 "post-fill").
func (e *Engine) NextExecutionId() value.ExecutionId {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.execSeq++
	return value.ExecutionId(fmt.Sprintf("EXEC-%d", e.execSeq))
}

// ResolveFillLegs allocates the PositionId(s) a fill of qty on side against
// instId+stratId should route to, honoring the venue's configured OMS type
// (§4.4). Under NETTING the whole qty is always one leg, since Position
// itself handles a same-position side flip. Under HEDGING, each opening
// fill gets its own PositionId (glossary: "distinct id per opening fill"),
// so a reducing fill must close existing open positions oldest-first,
// across ids, splitting across as many legs as it takes to exhaust qty —
// any quantity left over once every opposite-side open position is
// exhausted opens a fresh position under a new HedgingId.
func (e *Engine) ResolveFillLegs(instId value.InstrumentId, stratId value.StrategyId, side value.OrderSide, qty value.Quantity) []FillLeg {
	oms := e.omsType[instId.Venue]
	if oms != value.Hedging {
		return []FillLeg{{PositionId: position.NettingId(instId, stratId), Quantity: qty}}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.cache.OpenPositionsByInstrumentAndStrategy(instId, stratId)
	sort.Slice(open, func(i, j int) bool {
		if open[i].OpenedTsNs != open[j].OpenedTsNs {
			return open[i].OpenedTsNs < open[j].OpenedTsNs
		}
		return open[i].Id < open[j].Id
	})

	var legs []FillLeg
	remaining := qty
	for _, pos := range open {
		if remaining.IsZero() {
			break
		}
		if !closes(pos.Side, side) {
			continue
		}
		legQty := remaining
		if pos.Quantity.LessThan(remaining) {
			legQty = pos.Quantity
		}
		legs = append(legs, FillLeg{PositionId: pos.Id, Quantity: legQty})
		remaining, _ = remaining.Sub(legQty)
	}

	if !remaining.IsZero() || len(legs) == 0 {
		key := instId.String() + "|" + string(stratId)
		e.hedgeSeq[key]++
		legs = append(legs, FillLeg{PositionId: position.HedgingId(instId, stratId, e.hedgeSeq[key]), Quantity: remaining})
	}
	return legs
}

// closes reports whether an order on side reduces an open position of the
// given side: a sell reduces a long, a buy reduces a short.
func closes(posSide value.PositionSide, side value.OrderSide) bool {
	return (posSide == value.Long && side == value.Sell) || (posSide == value.Short && side == value.Buy)
}
