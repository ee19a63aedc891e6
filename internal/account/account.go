// Package account implements the Account aggregate (§3): cash or margin,
// holding per-currency balances and, for margin accounts, per-instrument
// margin usage. Updated purely by applying event.AccountEvent values.
package account

import (
	"github.com/nautilus-go/kernel/internal/event"
	"github.com/nautilus-go/kernel/internal/kernelerr"
	"github.com/nautilus-go/kernel/internal/value"
)

// Balance mirrors event.Balance but is the account's own mutable copy.
type Balance struct {
	Total  value.Money
	Locked value.Money
	Free   value.Money
}

// Account tracks balances per currency and, for MARGIN accounts,
// initial/maintenance margin usage per instrument.
type Account struct {
	Id        value.AccountId
	Venue     value.Venue
	Type      value.AccountType
	Balances  map[string]Balance                    // keyed by currency code
	Margins   map[value.InstrumentId]event.MarginBalance // MARGIN accounts only
	Events    []event.AccountEvent
}

// New builds an empty account of the given type.
func New(id value.AccountId, venue value.Venue, accType value.AccountType) *Account {
	return &Account{
		Id:       id,
		Venue:    venue,
		Type:     accType,
		Balances: make(map[string]Balance),
		Margins:  make(map[value.InstrumentId]event.MarginBalance),
	}
}

// Apply replaces the account's balance/margin snapshot with the state
// reported by an AccountState event (account updates are full-state, not
// incremental — the venue/SimulatedExchange always reports the post-update
// totals, never a delta).
func (a *Account) Apply(ev event.AccountEvent) error {
	state, ok := ev.(event.AccountState)
	if !ok {
		return kernelerr.NewInvariant("UNKNOWN_ACCOUNT_EVENT", "account received an event it does not recognize")
	}

	for _, b := range state.Balances {
		total, err := b.Locked.Add(b.Free)
		if err != nil {
			return err
		}
		if cmp, err := total.Compare(b.Total); err != nil || cmp != 0 {
			if err != nil {
				return err
			}
			return kernelerr.NewInvariant("BALANCE_INVARIANT_BROKEN",
				"reported total does not equal locked+free for "+b.Total.Currency().Code)
		}
		a.Balances[b.Total.Currency().Code] = Balance{Total: b.Total, Locked: b.Locked, Free: b.Free}
	}
	for _, m := range state.Margins {
		a.Margins[m.Instrument] = m
	}

	a.Events = append(a.Events, ev)
	return nil
}

// BalanceOf returns the account's balance in ccy, or the currency's zero
// balance if never reported.
func (a *Account) BalanceOf(ccy value.Currency) Balance {
	if b, ok := a.Balances[ccy.Code]; ok {
		return b
	}
	zero := value.ZeroMoney(ccy)
	return Balance{Total: zero, Locked: zero, Free: zero}
}
