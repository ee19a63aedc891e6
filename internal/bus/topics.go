package bus

import (
	"fmt"

	"github.com/nautilus-go/kernel/internal/value"
)

// Topic builders for the glob topics spec.md §6 names. Centralizing them
// here means every engine agrees on the exact dotted shape, and a
// console/dashboard subscriber can glob-match the same patterns.
const (
	TopicDataQuotesPattern = "data.quotes.*"
	TopicDataTradesPattern = "data.trades.*"
	TopicDataBarsPattern   = "data.bars.*"
	TopicDataBookPattern   = "data.book.*"

	TopicOrderEventsPattern    = "events.order.*.*"
	TopicPositionEventsPattern = "events.position.*.*"
	TopicAccountEventsPattern  = "events.account.*"

	TopicCommandsPattern = "commands.trading.*"

	TopicErrors   = "events.error"
	TopicDegraded = "events.system.degraded"
)

func TopicDataQuotes(id value.InstrumentId) string { return fmt.Sprintf("data.quotes.%s", id) }
func TopicDataTrades(id value.InstrumentId) string { return fmt.Sprintf("data.trades.%s", id) }
func TopicDataBars(barType string) string          { return fmt.Sprintf("data.bars.%s", barType) }
func TopicDataBook(id value.InstrumentId) string   { return fmt.Sprintf("data.book.%s", id) }

func TopicOrderEvents(stratId value.StrategyId, instId value.InstrumentId) string {
	return fmt.Sprintf("events.order.%s.%s", stratId, instId)
}

func TopicPositionEvents(stratId value.StrategyId, instId value.InstrumentId) string {
	return fmt.Sprintf("events.position.%s.%s", stratId, instId)
}

func TopicAccountEvents(acctId value.AccountId) string {
	return fmt.Sprintf("events.account.%s", acctId)
}

func TopicCommandsTrading(stratId value.StrategyId) string {
	return fmt.Sprintf("commands.trading.%s", stratId)
}
