package position

import (
	"fmt"

	"github.com/nautilus-go/kernel/internal/value"
)

// NettingId is the single PositionId a NETTING venue uses for every fill
// against one instrument+strategy pair, for the life of the trader.
func NettingId(instId value.InstrumentId, stratId value.StrategyId) value.PositionId {
	return value.PositionId(fmt.Sprintf("%s-%s", instId, stratId))
}

// HedgingId allocates a distinct PositionId per opening fill under a
// HEDGING venue; seq must be supplied by a monotonically increasing
// counter owned by the caller (typically the cache or ExecutionEngine).
func HedgingId(instId value.InstrumentId, stratId value.StrategyId, seq uint64) value.PositionId {
	return value.PositionId(fmt.Sprintf("%s-%s-%d", instId, stratId, seq))
}

// ResolveOpenId picks the PositionId a new opening fill should create under
// the given OMS type. For NETTING it is always the same id; for HEDGING the
// caller supplies a fresh sequence number.
func ResolveOpenId(oms value.OMSType, instId value.InstrumentId, stratId value.StrategyId, hedgingSeq uint64) value.PositionId {
	if oms == value.Hedging {
		return HedgingId(instId, stratId, hedgingSeq)
	}
	return NettingId(instId, stratId)
}
