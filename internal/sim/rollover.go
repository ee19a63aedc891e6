package sim

import (
	"github.com/shopspring/decimal"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/value"
)

// SimulationModule is a pluggable post-fill/periodic hook into the
// SimulatedExchange (§4.12 "Rollover. Optional module..."). Today the only
// implementation is RolloverModule, but the interface exists so a future
// module (e.g. a funding-rate schedule for perpetuals) slots in the same
// way without changing Exchange's wiring.
type SimulationModule interface {
	// OnVenueMidnight runs once per venue-local day boundary, dateLocal in
	// "YYYY-MM-DD" form, as resolved by the driving Clock.
	OnVenueMidnight(ex *Exchange, dateLocal string, tsEventNs int64) error
}

// RolloverModule applies nightly interest to open FX positions using a
// rate schedule keyed by (date, instrument) drawn from each Instrument's
// Rollover field (§4.12 "Rollover").
type RolloverModule struct{}

func (RolloverModule) OnVenueMidnight(ex *Exchange, dateLocal string, tsEventNs int64) error {
	acct, ok := ex.cache.Account(ex.accountId)
	if !ok {
		return nil
	}

	for instId := range ex.books {
		inst, ok := ex.cache.Instrument(instId)
		if !ok || len(inst.Rollover) == 0 {
			continue
		}
		rate, ok := rolloverRateFor(inst.Rollover, dateLocal)
		if !ok {
			continue
		}

		for _, pos := range ex.cache.OpenPositionsByInstrument(instId) {
			r := rate.LongRate
			if pos.Side == value.Short {
				r = rate.ShortRate
			}
			notional := decimal.NewFromFloat(pos.Quantity.AsFloat64() * pos.AvgOpenPx.AsFloat64() * inst.Multiplier)
			interest := value.NewMoneyFromDecimal(notional.Mul(decimal.NewFromFloat(r)), inst.SettlementCurrency)

			ccy := inst.SettlementCurrency
			bal := acct.BalanceOf(ccy)
			total, err := bal.Total.Add(interest)
			if err != nil {
				return err
			}
			free, err := bal.Free.Add(interest)
			if err != nil {
				return err
			}
			newBalances := []event.Balance{{Currency: ccy, Total: total, Locked: bal.Locked, Free: free}}
			state := event.NewAccountState(ex.accountId, ex.acctType, newBalances, nil, tsEventNs, "ROLLOVER")
			if err := acct.Apply(state); err != nil {
				return err
			}
			if err := ex.cache.UpdateAccount(acct); err != nil {
				return err
			}
			ex.bus.Publish(bus.TopicAccountEvents(ex.accountId), state)
		}
	}
	return nil
}

func rolloverRateFor(schedule []value.RolloverRate, dateLocal string) (value.RolloverRate, bool) {
	for _, r := range schedule {
		if r.Date == dateLocal {
			return r, true
		}
	}
	return value.RolloverRate{}, false
}
