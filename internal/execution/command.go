// Package execution implements the ExecutionEngine (§4.9): validates order
// commands against the cache, routes them to a per-venue ExecutionClient,
// and applies resulting order events back through the order state machine.
package execution

import (
	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// SubmitOrder is a strategy's request to send a new order to a venue.
type SubmitOrder struct {
	Params    order.Params
	AccountId value.AccountId
	TsInitNs  int64
}

// ModifyOrder requests a price/quantity change to a resting order.
type ModifyOrder struct {
	ClientOrderId value.ClientOrderId
	Price         *value.Price
	TriggerPrice  *value.Price
	Quantity      *value.Quantity
	TsInitNs      int64
}

// CancelOrder requests cancellation of a working order.
type CancelOrder struct {
	ClientOrderId value.ClientOrderId
	TsInitNs      int64
}

// FillLeg is one (PositionId, Quantity) routing decision for a fill. Under
// NETTING a fill is always a single leg; under HEDGING a reducing fill can
// split across every open position it closes, oldest first, per §4.4.
type FillLeg struct {
	PositionId value.PositionId
	Quantity   value.Quantity
}
