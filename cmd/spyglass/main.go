package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/config"
	"github.com/lai-labs/spyglass/internal/cost"
	"github.com/lai-labs/spyglass/internal/friction"
	"github.com/lai-labs/spyglass/internal/harvest"
	"github.com/lai-labs/spyglass/internal/janitor"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/procmine"
	"github.com/lai-labs/spyglass/internal/rover"
	"github.com/lai-labs/spyglass/internal/scout"
	"github.com/lai-labs/spyglass/internal/storage"
)

// Shared state initialized by the root command before any subcommand runs
var (
	configPath string
	verbose    bool

	cfg      *config.Config
	store    storage.Storage
	oracleAI oracle.Client
)

var rootCmd = &cobra.Command{
	Use:   "spyglass",
	Short: "Behavioral observability and process mining pipeline",
	Long: `Spyglass captures user behavior events, mines them for friction and
process patterns, proposes automations, and certifies build quality.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		store, err = storage.NewStorage(cmd.Context(), &storage.Config{
			Driver: cfg.Storage.Driver,
			Path:   cfg.Storage.Path,
			DSN:    cfg.Storage.DSN,
		})
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}

		oracleAI = newOracle(cfg.Oracle)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				slog.Error("failed to close storage", "error", err)
			}
		}
	},
}

// newOracle builds the AI client, falling back to the disabled no-op when
// no key is configured anywhere
func newOracle(oc config.OracleConfig) oracle.Client {
	client, err := oracle.NewAnthropicClient(&oracle.Config{APIKey: oc.APIKey, Model: oc.Model})
	if err != nil {
		slog.Info("oracle unavailable, AI annotations disabled", "reason", err)
		return oracle.Disabled()
	}
	return client
}

// newDispatcher registers the full agent roster in its run_all order
func newDispatcher() (*agent.Dispatcher, error) {
	var budgets *cost.Budgets
	if cfg.BudgetsPath != "" {
		var err error
		budgets, err = cost.LoadBudgets(cfg.BudgetsPath)
		if err != nil {
			return nil, err
		}
	}

	runner := agent.NewRunner(store)
	d := agent.NewDispatcher(runner, store)
	d.Register(friction.New(store, oracleAI))
	d.Register(procmine.New(store))
	d.Register(scout.New(store, oracleAI))
	d.Register(rover.New(store))
	d.Register(cost.New(store, budgets))
	d.Register(harvest.New(store))
	d.Register(janitor.New(store, cfg.Retention))
	return d, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./spyglass.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
