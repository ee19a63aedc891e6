// backtest is the thinnest possible driver entrypoint over the backtest
// kernel (internal/backtest): load config, wire the configured venues and
// cache database, and run or reset the engine. The data files listed in the
// config's data section are not loaded.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nautilus-go/kernel/internal/backtest"
	"github.com/nautilus-go/kernel/internal/cachedb"
	"github.com/nautilus-go/kernel/internal/config"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the nautilus-go event-driven backtest kernel over historical data",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the configured engine and run it over every registered data stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := buildEngine()
		if err != nil {
			return err
		}
		if err := eng.Run(nil, nil); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		eng.Stop()
		logger.Info("run complete")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Build the configured engine, run it once, then reset and run it again",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, logger, err := buildEngine()
		if err != nil {
			return err
		}
		if err := eng.Run(nil, nil); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		if err := eng.Reset(); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		if err := eng.Run(nil, nil); err != nil {
			return fmt.Errorf("run after reset: %w", err)
		}
		eng.Stop()
		logger.Info("reset run complete")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "configs/backtest.yaml", "path to the backtest config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetCmd)
}

// buildEngine loads config, builds the logger, and wires a backtest.Engine
// with every configured venue and the selected cache database. It does not
// load the configured data files or add instruments; the strategy itself is
// left for the caller to register, since no concrete Strategy is in scope
// here (§1 Non-goals).
func buildEngine() (*backtest.Engine, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	engCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("engine config: %w", err)
	}
	eng := backtest.New(engCfg, logger)

	switch cfg.Cache.Backend {
	case "json":
		db, err := cachedb.OpenJSONFileDatabase(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open json cachedb: %w", err)
		}
		eng.SetCacheDatabase(db)
	case "sql":
		db, err := cachedb.OpenSQLDatabase(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql cachedb: %w", err)
		}
		eng.SetCacheDatabase(db)
	}

	for _, vc := range cfg.Venues {
		venueCfg, err := vc.ToVenueConfig()
		if err != nil {
			return nil, nil, fmt.Errorf("venue %s: %w", vc.Venue, err)
		}
		eng.AddExchange(venueCfg)
	}

	logger.Info("backtest engine configured",
		"venues", len(cfg.Venues),
		"strategy", cfg.Strategy.Name,
	)
	return eng, logger, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
