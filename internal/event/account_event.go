package event

import "github.com/nautilus-go/kernel/internal/value"

// AccountEvent is the sum type published on events.account.{account_id}.
// Today there is a single variant (AccountState), kept as an interface so a
// future MarginCallEvent or similar slots in without touching subscribers
// that type-switch defensively.
type AccountEvent interface {
	accountEvent()
	AccountID() value.AccountId
	TsEventNs() int64
}

// Balance is a single currency balance line within an AccountState event.
type Balance struct {
	Currency value.Currency
	Total    value.Money
	Locked   value.Money
	Free     value.Money
}

// MarginBalance records initial/maintenance margin locked for one instrument
// in a margin account.
type MarginBalance struct {
	Instrument value.InstrumentId
	Initial    value.Money
	Maintenance value.Money
}

// AccountState is a full snapshot of an account's balances (and, for margin
// accounts, per-instrument margin) as of TsEventNs. The kernel always
// publishes full snapshots rather than deltas, so a late subscriber that
// misses intermediate states is never left with a stale partial view.
type AccountState struct {
	AcctId   value.AccountId
	AType    value.AccountType
	Balances []Balance
	Margins  []MarginBalance
	TsEvent  int64
	Reason   string // e.g. "FILL", "ROLLOVER", "DEPOSIT"
}

func (a AccountState) accountEvent()            {}
func (a AccountState) AccountID() value.AccountId { return a.AcctId }
func (a AccountState) TsEventNs() int64         { return a.TsEvent }

func NewAccountState(acctId value.AccountId, aType value.AccountType, balances []Balance, margins []MarginBalance, tsEvent int64, reason string) AccountState {
	return AccountState{AcctId: acctId, AType: aType, Balances: balances, Margins: margins, TsEvent: tsEvent, Reason: reason}
}
