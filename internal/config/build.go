package config

import (
	"fmt"
	"strings"

	"github.com/nautilus-go/kernel/internal/backtest"
	"github.com/nautilus-go/kernel/internal/risk"
	"github.com/nautilus-go/kernel/internal/sim"
	"github.com/nautilus-go/kernel/internal/value"
)

// ToEngineConfig translates the YAML-shaped EngineConfig into the
// risk-limit/throttle parameters backtest.New expects.
func (c *Config) ToEngineConfig() (backtest.EngineConfig, error) {
	limits := risk.Limits{
		MaxNotionalByStrategy:   make(map[value.StrategyId]float64, len(c.Engine.MaxNotionalByStrategy)),
		MaxQuantityByInstrument: make(map[value.InstrumentId]value.Quantity, len(c.Engine.MaxQuantityByInstrument)),
	}
	for stratId, notional := range c.Engine.MaxNotionalByStrategy {
		limits.MaxNotionalByStrategy[value.StrategyId(stratId)] = notional
	}
	for instIdStr, qtyStr := range c.Engine.MaxQuantityByInstrument {
		instId, err := parseInstrumentId(instIdStr)
		if err != nil {
			return backtest.EngineConfig{}, err
		}
		qty, err := value.NewQuantityFromString(qtyStr, 8)
		if err != nil {
			return backtest.EngineConfig{}, fmt.Errorf("engine.max_quantity_by_instrument[%s]: %w", instIdStr, err)
		}
		limits.MaxQuantityByInstrument[instId] = qty
	}

	var startNs int64
	if !c.Engine.StartTime.IsZero() {
		startNs = c.Engine.StartTime.UnixNano()
	}

	return backtest.EngineConfig{
		Limits:        limits,
		ThrottleBurst: c.Engine.ThrottleBurst,
		ThrottleRate:  c.Engine.ThrottleRate,
		StartNs:       startNs,
	}, nil
}

// ToVenueConfig translates one YAML venue entry into backtest.VenueConfig,
// parsing "amount CCY" balance strings against the Currency registry.
func (vc *VenueConfig) ToVenueConfig() (backtest.VenueConfig, error) {
	var omsType value.OMSType
	switch vc.OMSType {
	case "NETTING":
		omsType = value.Netting
	case "HEDGING":
		omsType = value.Hedging
	default:
		return backtest.VenueConfig{}, fmt.Errorf("unknown oms_type %q", vc.OMSType)
	}

	var acctType value.AccountType
	switch vc.AccountType {
	case "CASH":
		acctType = value.Cash
	case "MARGIN":
		acctType = value.Margin
	default:
		return backtest.VenueConfig{}, fmt.Errorf("unknown account_type %q", vc.AccountType)
	}

	balances := make([]value.Money, 0, len(vc.StartingBalances))
	for _, b := range vc.StartingBalances {
		m, err := parseMoney(b)
		if err != nil {
			return backtest.VenueConfig{}, fmt.Errorf("venue %s starting_balances: %w", vc.Venue, err)
		}
		balances = append(balances, m)
	}

	var modules []sim.SimulationModule
	if vc.RolloverEnabled {
		modules = append(modules, sim.RolloverModule{})
	}

	return backtest.VenueConfig{
		Venue:            value.Venue(vc.Venue),
		OMSType:          omsType,
		AccountType:      acctType,
		AccountId:        value.AccountId(vc.AccountId),
		StartingBalances: balances,
		FillModel: sim.NewFillModel(
			vc.FillModel.ProbFillAtLimit,
			vc.FillModel.ProbFillAtStop,
			vc.FillModel.ProbSlippage,
			vc.FillModel.RandomSeed,
		),
		Modules: modules,
	}, nil
}

// parseMoney parses "100000 USD" against the registered Currency flyweight.
func parseMoney(s string) (value.Money, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return value.Money{}, fmt.Errorf("expected \"amount CCY\", got %q", s)
	}
	ccy, ok := value.LookupCurrency(parts[1])
	if !ok {
		return value.Money{}, fmt.Errorf("unknown currency %q", parts[1])
	}
	return value.NewMoney(parts[0], ccy)
}

// parseInstrumentId parses "SYMBOL.VENUE" into an InstrumentId.
func parseInstrumentId(s string) (value.InstrumentId, error) {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return value.InstrumentId{}, fmt.Errorf("expected \"SYMBOL.VENUE\", got %q", s)
	}
	return value.NewInstrumentId(value.Symbol(s[:idx]), value.Venue(s[idx+1:])), nil
}
