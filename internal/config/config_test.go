package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/value"
)

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{ThrottleBurst: 100, ThrottleRate: 100},
		Venues: []VenueConfig{{
			Venue:            "SIM",
			OMSType:          "NETTING",
			AccountType:      "CASH",
			AccountId:        "SIM-001",
			StartingBalances: []string{"100000 USD"},
		}},
		Strategy: StrategyConfig{Id: "S-1", Name: "ema-cross"},
		Cache:    CacheConfig{Backend: "memory"},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingVenues(t *testing.T) {
	cfg := validConfig()
	cfg.Venues = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownOMSType(t *testing.T) {
	cfg := validConfig()
	cfg.Venues[0].OMSType = "BOGUS"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownCacheBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Backend = "redis"
	assert.Error(t, cfg.Validate())
}

func TestToVenueConfigParsesStartingBalances(t *testing.T) {
	vc := validConfig().Venues[0]
	out, err := vc.ToVenueConfig()
	require.NoError(t, err)

	assert.Equal(t, value.Venue("SIM"), out.Venue)
	assert.Equal(t, value.Netting, out.OMSType)
	assert.Equal(t, value.Cash, out.AccountType)
	require.Len(t, out.StartingBalances, 1)
	assert.Equal(t, "100000.00 USD", out.StartingBalances[0].String())
	assert.Equal(t, value.USD, out.StartingBalances[0].Currency())
}

func TestToVenueConfigRejectsUnknownCurrency(t *testing.T) {
	vc := validConfig().Venues[0]
	vc.StartingBalances = []string{"100 ZZZ"}
	_, err := vc.ToVenueConfig()
	assert.Error(t, err)
}

func TestToEngineConfigParsesLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.MaxNotionalByStrategy = map[string]float64{"S-1": 500000}
	cfg.Engine.MaxQuantityByInstrument = map[string]string{"AUD/USD.SIM": "1000000"}

	out, err := cfg.ToEngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 500000.0, out.Limits.MaxNotionalByStrategy["S-1"])
	qty, ok := out.Limits.MaxQuantityByInstrument[value.NewInstrumentId("AUD/USD", "SIM")]
	require.True(t, ok)
	assert.Equal(t, "1000000.00000000", qty.String())
}
