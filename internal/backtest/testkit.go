package backtest

import (
	"log/slog"

	"github.com/nautilus-go/kernel/internal/sim"
	"github.com/nautilus-go/kernel/internal/value"
)

// TestInstrumentAudUsd returns the canonical AUD/USD.SIM spot FX instrument
// used across backtest tests and examples, mirroring the original's
// TestStubs.instrument_usdjpy() stub.
func TestInstrumentAudUsd() (value.Instrument, error) {
	tick := value.NewPriceFromFloat64(0.0001, 4)
	lot, err := value.NewQuantityFromFloat64(1, 0)
	if err != nil {
		return value.Instrument{}, err
	}
	return value.Instrument{
		Id:                 value.NewInstrumentId("AUD/USD", "SIM"),
		PricePrecision:     4,
		SizePrecision:      0,
		TickSize:           tick,
		LotSize:            lot,
		BaseCurrency:       value.AUD,
		QuoteCurrency:      value.USD,
		SettlementCurrency: value.USD,
		Multiplier:         1.0,
	}, nil
}

// NewTestKernel builds a backtest Engine wired with one SIM venue (Netting,
// Cash, 100,000 USD starting balance) and the AUD/USD.SIM instrument — the
// Go shape of the original's TestStubs fixture, letting a test add data and
// a strategy and call Run without repeating this wiring.
func NewTestKernel(logger *slog.Logger) (*Engine, error) {
	e := New(EngineConfig{ThrottleBurst: 100, ThrottleRate: 100}, logger)

	inst, err := TestInstrumentAudUsd()
	if err != nil {
		return nil, err
	}
	if err := e.AddInstrument(inst); err != nil {
		return nil, err
	}

	startBal, err := value.NewMoney("100000", value.USD)
	if err != nil {
		return nil, err
	}
	e.AddExchange(VenueConfig{
		Venue:            "SIM",
		OMSType:          value.Netting,
		AccountType:      value.Cash,
		AccountId:        "SIM-001",
		StartingBalances: []value.Money{startBal},
		FillModel:        sim.NewFillModel(0, 0, 0, 1),
	})
	return e, nil
}
