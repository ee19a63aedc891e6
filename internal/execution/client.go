package execution

import (
	"context"

	"github.com/nautilus-go/kernel/internal/order"
	"github.com/nautilus-go/kernel/internal/value"
)

// Client is the routed destination for a validated command — a live venue
// adapter or, in backtest mode, the SimulatedExchange. Its methods return
// no events; resulting OrderEvents arrive through Engine.ProcessVenueEvent
// (live: from a venue feed goroutine; backtest: by a direct synchronous call
// from the exchange, which may happen before Submit/Modify/Cancel returns).
type Client interface {
	Venue() value.Venue
	Submit(ctx context.Context, o *order.Order) error
	Modify(ctx context.Context, cmd ModifyOrder) error
	Cancel(ctx context.Context, cmd CancelOrder) error
}
