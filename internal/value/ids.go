// Package value holds the kernel's fixed-point scalar and identifier types:
// Price, Quantity, Money, Currency, Instrument, and the opaque id wrappers
// every other package threads through the bus, cache, and engines.
//
// Identifiers are opaque strings with typed wrappers so a ClientOrderId can
// never be passed where a VenueOrderId is expected, even though both are
// strings under the hood. Equality is textual; ordering is irrelevant except
// for deterministic iteration, where callers sort by the underlying string.
package value

import "strings"

// TraderId identifies the trader (process) that owns a set of strategies.
type TraderId string

// StrategyId identifies one strategy instance within a trader.
type StrategyId string

// Symbol is the venue-local ticker, e.g. "AUD/USD".
type Symbol string

// Venue identifies a trading venue or simulated exchange, e.g. "SIM".
type Venue string

// InstrumentId is Symbol.Venue, e.g. "AUD/USD.SIM".
type InstrumentId struct {
	Symbol Symbol
	Venue  Venue
}

// NewInstrumentId builds an InstrumentId from its symbol and venue.
func NewInstrumentId(symbol Symbol, venue Venue) InstrumentId {
	return InstrumentId{Symbol: symbol, Venue: venue}
}

// ParseInstrumentId parses the canonical "SYMBOL.VENUE" string form.
func ParseInstrumentId(s string) (InstrumentId, bool) {
	idx := strings.LastIndexByte(s, '.')
	if idx < 0 {
		return InstrumentId{}, false
	}
	return InstrumentId{Symbol: Symbol(s[:idx]), Venue: Venue(s[idx+1:])}, true
}

func (i InstrumentId) String() string {
	return string(i.Symbol) + "." + string(i.Venue)
}

// ClientOrderId is assigned by the strategy/trader and is globally unique
// within a trader for the life of the process.
type ClientOrderId string

// VenueOrderId is assigned by the venue (or SimulatedExchange) on ACCEPTED.
type VenueOrderId string

// PositionId is assigned by exchange logic or the hedging scheme (§4.4).
type PositionId string

// AccountId identifies an account as "VENUE-ACCOUNT_NUMBER".
type AccountId string

// ExecutionId identifies a single fill/execution. ExecutionEngine issues
// them from one monotonically increasing counter shared by all venues.
type ExecutionId string
