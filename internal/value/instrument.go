package value

import "github.com/nautilus-go/kernel/internal/kernelerr"

// MarginSchedule holds initial/maintenance margin rates (as fractions of
// notional) for an instrument, used by Portfolio and the SimulatedExchange's
// margin-account bookkeeping.
type MarginSchedule struct {
	InitialRate     float64
	MaintenanceRate float64
}

// FeeSchedule holds maker/taker commission rates in basis points plus a
// fixed per-fill fee, consumed by the SimulatedExchange's commission model.
type FeeSchedule struct {
	MakerBps float64
	TakerBps float64
	Fixed    Money
}

// RolloverRate is one entry of an instrument's rollover interest schedule,
// keyed by (date, currency pair) per §4.12.
type RolloverRate struct {
	Date     string // YYYY-MM-DD, venue-local
	LongRate float64
	ShortRate float64
}

// Instrument is immutable once added to the kernel (§3). All price/quantity
// values produced for this instrument must share its precisions and be on
// its tick/lot grid.
type Instrument struct {
	Id             InstrumentId
	PricePrecision uint8
	SizePrecision  uint8
	TickSize       Price
	LotSize        Quantity
	BaseCurrency   Currency
	QuoteCurrency  Currency
	SettlementCurrency Currency
	Margin         MarginSchedule
	Fees           FeeSchedule
	Rollover       []RolloverRate // optional; empty means no rollover module applies
	Multiplier     float64        // contract multiplier applied to PnL (1.0 for spot)
}

// Validate checks the invariants spec.md §3 requires of an Instrument.
func (i Instrument) Validate() error {
	if i.TickSize.Precision() != i.PricePrecision {
		return kernelerr.NewValidation("TICK_PRECISION_MISMATCH", "tick size precision must match instrument price precision")
	}
	if i.LotSize.Precision() != i.SizePrecision {
		return kernelerr.NewValidation("LOT_PRECISION_MISMATCH", "lot size precision must match instrument size precision")
	}
	if i.TickSize.IsZero() {
		return kernelerr.NewValidation("ZERO_TICK_SIZE", "tick size must be > 0")
	}
	if i.LotSize.IsZero() {
		return kernelerr.NewValidation("ZERO_LOT_SIZE", "lot size must be > 0")
	}
	if i.Multiplier <= 0 {
		return kernelerr.NewValidation("INVALID_MULTIPLIER", "contract multiplier must be > 0")
	}
	return nil
}

// MakePrice rounds v onto this instrument's price precision.
func (i Instrument) MakePrice(v float64) Price {
	return NewPriceFromFloat64(v, i.PricePrecision)
}

// MakeQuantity rounds v onto this instrument's size precision.
func (i Instrument) MakeQuantity(v float64) (Quantity, error) {
	return NewQuantityFromFloat64(v, i.SizePrecision)
}

// ValidatePrice checks a price is on this instrument's tick grid.
func (i Instrument) ValidatePrice(p Price) error {
	if !p.OnTickGrid(i.TickSize) {
		return kernelerr.NewValidation("PRICE_OFF_TICK_GRID", "price "+p.String()+" is not a multiple of tick size "+i.TickSize.String())
	}
	return nil
}

// ValidateQuantity checks a quantity is a positive multiple of the lot size.
func (i Instrument) ValidateQuantity(q Quantity) error {
	if q.IsZero() {
		return kernelerr.NewValidation("ZERO_QUANTITY", "order quantity must be > 0")
	}
	if !q.OfLotSize(i.LotSize) {
		return kernelerr.NewValidation("QUANTITY_OFF_LOT_SIZE", "quantity "+q.String()+" is not a multiple of lot size "+i.LotSize.String())
	}
	return nil
}
