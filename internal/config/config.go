// Package config defines all configuration for the backtest kernel.
// Config is loaded from the YAML file passed to Load (cmd/backtest defaults
// to configs/backtest.yaml) with
// overridable fields settable via NAUTILUS_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Engine   EngineConfig    `mapstructure:"engine"`
	Venues   []VenueConfig   `mapstructure:"venues"`
	Data     DataConfig      `mapstructure:"data"`
	Strategy StrategyConfig  `mapstructure:"strategy"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Cache    CacheConfig     `mapstructure:"cache"`
}

// EngineConfig tunes the backtest driver itself: pre-trade risk limits, the
// order-submission token-bucket throttle, and the run window's start.
type EngineConfig struct {
	MaxNotionalByStrategy map[string]float64 `mapstructure:"max_notional_by_strategy"`
	MaxQuantityByInstrument map[string]string `mapstructure:"max_quantity_by_instrument"`
	ThrottleBurst  float64 `mapstructure:"throttle_burst"`
	ThrottleRate   float64 `mapstructure:"throttle_rate"`
	StartTime      time.Time `mapstructure:"start_time"`
}

// VenueConfig configures one simulated exchange (§6 "Backtest driver
// surface"). Balances are given as "amount CCY" pairs, e.g. "100000 USD".
type VenueConfig struct {
	Venue            string   `mapstructure:"venue"`
	OMSType          string   `mapstructure:"oms_type"` // NETTING | HEDGING
	AccountType      string   `mapstructure:"account_type"` // CASH | MARGIN
	AccountId        string   `mapstructure:"account_id"`
	StartingBalances []string `mapstructure:"starting_balances"`
	FillModel        FillModelConfig `mapstructure:"fill_model"`
	RolloverEnabled  bool     `mapstructure:"rollover_enabled"`
}

// FillModelConfig mirrors sim.FillModel's constructor parameters.
type FillModelConfig struct {
	ProbFillAtLimit float64 `mapstructure:"prob_fill_at_limit"`
	ProbFillAtStop  float64 `mapstructure:"prob_fill_at_stop"`
	ProbSlippage    float64 `mapstructure:"prob_slippage"`
	RandomSeed      int64   `mapstructure:"random_seed"`
}

// DataConfig names the historical data streams to load and replay, and the
// priority each stream holds when its ts_event_ns ties another's (§5).
type DataConfig struct {
	QuoteTickFiles []DataSourceConfig `mapstructure:"quote_tick_files"`
	TradeTickFiles []DataSourceConfig `mapstructure:"trade_tick_files"`
	BarFiles       []DataSourceConfig `mapstructure:"bar_files"`
}

type DataSourceConfig struct {
	Path     string `mapstructure:"path"`
	Priority int    `mapstructure:"priority"`
}

// StrategyConfig names which registered strategy to run and passes it a
// free-form parameter bag, so cmd/backtest need not know any strategy's
// concrete config shape.
type StrategyConfig struct {
	Id     string         `mapstructure:"id"`
	Name   string         `mapstructure:"name"`
	Params map[string]any `mapstructure:"params"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig selects the CacheDatabase backend (§4.6): "memory" keeps no
// durable copy, "json" persists to cachedb.JSONFileDatabase, "sql" persists
// to cachedb.SQLDatabase over gorm/sqlite.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// Load reads config from a YAML file with env var overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("NAUTILUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if lvl := os.Getenv("NAUTILUS_LOGGING_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if backend := os.Getenv("NAUTILUS_CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges, failing fast before
// any engine is built.
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return fmt.Errorf("at least one venue is required")
	}
	for i, vc := range c.Venues {
		if vc.Venue == "" {
			return fmt.Errorf("venues[%d].venue is required", i)
		}
		switch vc.OMSType {
		case "NETTING", "HEDGING":
		default:
			return fmt.Errorf("venues[%d].oms_type must be NETTING or HEDGING", i)
		}
		switch vc.AccountType {
		case "CASH", "MARGIN":
		default:
			return fmt.Errorf("venues[%d].account_type must be CASH or MARGIN", i)
		}
		if vc.AccountId == "" {
			return fmt.Errorf("venues[%d].account_id is required", i)
		}
		if len(vc.StartingBalances) == 0 {
			return fmt.Errorf("venues[%d].starting_balances must have at least one entry", i)
		}
	}
	if c.Strategy.Id == "" {
		return fmt.Errorf("strategy.id is required")
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Engine.ThrottleBurst <= 0 {
		return fmt.Errorf("engine.throttle_burst must be > 0")
	}
	if c.Engine.ThrottleRate <= 0 {
		return fmt.Errorf("engine.throttle_rate must be > 0")
	}
	switch c.Cache.Backend {
	case "", "memory", "json", "sql":
	default:
		return fmt.Errorf("cache.backend must be one of: memory, json, sql")
	}
	return nil
}
