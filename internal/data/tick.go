// Package data implements DataEngine (§4.8): ingestion of market data
// (QuoteTick, TradeTick, Bar, OrderBookDelta), republished on the bus at
// data.quotes.{instrument_id}, data.trades.{instrument_id},
// data.bars.{bar_type}, plus on-demand bar aggregation from ticks.
package data

import "github.com/nautilus-go/kernel/internal/value"

// QuoteTick is a best-bid/best-ask snapshot for one instrument.
type QuoteTick struct {
	InstrumentId value.InstrumentId
	BidPrice     value.Price
	AskPrice     value.Price
	BidSize      value.Quantity
	AskSize      value.Quantity
	TsEventNs    int64
	TsInitNs     int64
}

func (q QuoteTick) Mid() (value.Price, error) {
	sum, err := q.BidPrice.Add(q.AskPrice)
	if err != nil {
		return value.Price{}, err
	}
	half := sum.Raw() / 2
	return value.NewPriceFromInt(half, q.BidPrice.Precision())
}

// TradeTick is a single executed trade observed on the venue (not
// necessarily one of ours — used for last-price and bar aggregation).
type TradeTick struct {
	InstrumentId value.InstrumentId
	Price        value.Price
	Size         value.Quantity
	AggressorSide value.OrderSide
	TradeId      string
	TsEventNs    int64
	TsInitNs     int64
}

// BarType names the aggregation a Bar was built under, e.g.
// "AUD/USD.SIM-1-MINUTE-LAST" or "AUD/USD.SIM-1000-TICK-LAST".
type BarType string

// Bar is an OHLCV aggregation over a time/tick/volume/value window.
type Bar struct {
	BarType      BarType
	InstrumentId value.InstrumentId
	Open         value.Price
	High         value.Price
	Low          value.Price
	Close        value.Price
	Volume       value.Quantity
	TsEventNs    int64
	TsInitNs     int64
}

// BookAction enumerates the kind of change an OrderBookDelta carries.
type BookAction int

const (
	Add BookAction = iota
	Update
	Delete
	Clear
)

// OrderBookDelta is one incremental change to a venue's resting book,
// consumed by the SimulatedExchange and any depth-aware strategy.
type OrderBookDelta struct {
	InstrumentId value.InstrumentId
	Action       BookAction
	Side         value.OrderSide
	Price        value.Price
	Size         value.Quantity
	TsEventNs    int64
	TsInitNs     int64
}
