// Package portfolio implements the Portfolio component (§4.11): derived
// account PnL, exposures, and net liquidation value computed from Cache
// state plus the latest quotes. Portfolio never mutates orders or
// positions — it only reads the Cache and returns derived state on demand.
package portfolio

import (
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/cache"
	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/position"
	"github.com/nautilus-go/kernel/internal/value"
)

// Exposure is one open position's current mark.
type Exposure struct {
	InstrumentId  value.InstrumentId
	Side          value.PositionSide
	Quantity      value.Quantity
	AvgOpenPx     *value.Price
	MarkPx        value.Price
	UnrealizedPnl value.Money
}

// Portfolio tracks the latest quote per instrument and the cross rates
// implied by them, and derives unrealized PnL and net liquidation value on
// demand from Cache state (§4.11).
type Portfolio struct {
	cache  *cache.Cache
	logger *slog.Logger

	mu         sync.RWMutex
	lastQuote  map[value.InstrumentId]data.QuoteTick
}

// New builds a Portfolio reading from c.
func New(c *cache.Cache, logger *slog.Logger) *Portfolio {
	return &Portfolio{
		cache:     c,
		logger:    logger.With("component", "portfolio"),
		lastQuote: make(map[value.InstrumentId]data.QuoteTick),
	}
}

// Subscribe wires the Portfolio to the bus's quote topics so its cross-rate
// table and marks stay current as ticks arrive.
func (p *Portfolio) Subscribe(b *bus.MessageBus) {
	b.Subscribe(bus.TopicDataQuotesPattern, 0, func(topic string, payload any) {
		if q, ok := payload.(data.QuoteTick); ok {
			p.OnQuoteTick(q)
		}
	})
}

// OnQuoteTick records the latest quote for an instrument.
func (p *Portfolio) OnQuoteTick(q data.QuoteTick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastQuote[q.InstrumentId] = q
}

func (p *Portfolio) quote(instId value.InstrumentId) (data.QuoteTick, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.lastQuote[instId]
	return q, ok
}

// markPosition marks pos to the side-appropriate side of the latest quote:
// bid for a long closing out, ask for a short closing out (§4.11).
func (p *Portfolio) markPosition(pos *position.Position) (Exposure, error) {
	q, ok := p.quote(pos.InstrumentId)
	if !ok {
		return Exposure{}, kernelerr.NewNotFound("NO_QUOTE", "no quote seen yet for instrument").
			With("instrument_id", pos.InstrumentId.String())
	}

	markPx := q.BidPrice
	if pos.Side == value.Short {
		markPx = q.AskPrice
	}

	openPxD, err := decimal.NewFromString(pos.AvgOpenPx.String())
	if err != nil {
		return Exposure{}, kernelerr.NewValidation("MALFORMED_SCALAR", "could not parse avg_open_px")
	}
	markPxD, err := decimal.NewFromString(markPx.String())
	if err != nil {
		return Exposure{}, kernelerr.NewValidation("MALFORMED_SCALAR", "could not parse mark price")
	}
	qtyD, err := decimal.NewFromString(pos.Quantity.String())
	if err != nil {
		return Exposure{}, kernelerr.NewValidation("MALFORMED_SCALAR", "could not parse quantity")
	}

	direction := decimal.NewFromInt(1)
	if pos.Side == value.Short {
		direction = decimal.NewFromInt(-1)
	}
	multiplier := decimal.NewFromFloat(pos.Instrument.Multiplier)
	unrealized := markPxD.Sub(openPxD).Mul(qtyD).Mul(direction).Mul(multiplier)

	return Exposure{
		InstrumentId:  pos.InstrumentId,
		Side:          pos.Side,
		Quantity:      pos.Quantity,
		AvgOpenPx:     pos.AvgOpenPx,
		MarkPx:        markPx,
		UnrealizedPnl: value.NewMoneyFromDecimal(unrealized, pos.Instrument.SettlementCurrency),
	}, nil
}

// ExposuresByInstrument returns the marked Exposure for every open position
// against instId. A position whose instrument has no quote yet is skipped
// rather than erroring — an unreachable mark is a transient data gap, not
// an invariant violation.
func (p *Portfolio) ExposuresByInstrument(instId value.InstrumentId) []Exposure {
	var out []Exposure
	for _, pos := range p.cache.OpenPositionsByInstrument(instId) {
		exp, err := p.markPosition(pos)
		if err != nil {
			continue
		}
		out = append(out, exp)
	}
	return out
}

// ExposuresByStrategy returns the marked Exposure for every open position
// owned by stratId.
func (p *Portfolio) ExposuresByStrategy(stratId value.StrategyId) []Exposure {
	var out []Exposure
	for _, pos := range p.cache.PositionsByStrategy(stratId) {
		if !pos.IsOpen() {
			continue
		}
		exp, err := p.markPosition(pos)
		if err != nil {
			continue
		}
		out = append(out, exp)
	}
	return out
}

// NetLiquidationValue sums acctId's balances (each converted to
// settlementCcy by convertMoney) plus unrealized PnL across every open
// position owned by stratId (§4.11).
func (p *Portfolio) NetLiquidationValue(acctId value.AccountId, stratId value.StrategyId, settlementCcy value.Currency) (value.Money, error) {
	acct, ok := p.cache.Account(acctId)
	if !ok {
		return value.Money{}, kernelerr.NewNotFound("ACCOUNT_NOT_FOUND", "net liquidation value requires a known account").
			With("account_id", string(acctId))
	}

	total := decimal.Zero
	for _, bal := range acct.Balances {
		converted, err := p.convertMoney(bal.Total, settlementCcy)
		if err != nil {
			return value.Money{}, err
		}
		total = total.Add(converted.Decimal())
	}

	for _, exp := range p.ExposuresByStrategy(stratId) {
		converted, err := p.convertMoney(exp.UnrealizedPnl, settlementCcy)
		if err != nil {
			return value.Money{}, err
		}
		total = total.Add(converted.Decimal())
	}

	return value.NewMoneyFromDecimal(total, settlementCcy), nil
}

// convertMoney converts m into settlementCcy via the direct or inverse cross
// rate implied by the latest mid quote of one instrument pairing the two
// currencies. Only a single quoted pair is used: a conversion that would
// need a chain through a third currency is not attempted and returns
// NO_CROSS_RATE.
func (p *Portfolio) convertMoney(m value.Money, to value.Currency) (value.Money, error) {
	if m.Currency().Code == to.Code {
		return m, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, q := range p.lastQuote {
		mid, err := q.Mid()
		if err != nil {
			continue
		}
		midD, err := decimal.NewFromString(mid.String())
		if err != nil {
			continue
		}

		switch value.Symbol(m.Currency().Code + "/" + to.Code) {
		case q.InstrumentId.Symbol:
			return value.NewMoneyFromDecimal(m.Decimal().Mul(midD), to), nil
		}
		switch value.Symbol(to.Code + "/" + m.Currency().Code) {
		case q.InstrumentId.Symbol:
			if midD.IsZero() {
				continue
			}
			return value.NewMoneyFromDecimal(m.Decimal().Div(midD), to), nil
		}
	}
	return value.Money{}, kernelerr.NewNotFound("NO_CROSS_RATE", "no quote available to convert currency").
		With("from", m.Currency().Code).With("to", to.Code)
}
