package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/api"
	"github.com/lai-labs/spyglass/internal/learning"
)

// Agent cadences for the background scheduler
var agentSchedule = []struct {
	action   string
	interval time.Duration
}{
	{"run_friction_detector", 15 * time.Minute},
	{"run_process_miner", time.Hour},
	{"run_health_rover", 10 * time.Minute},
	{"run_knowledge_harvester", 4 * time.Hour},
	{"run_automation_scout", 24 * time.Hour},
	{"run_cost_watcher", 24 * time.Hour},
	{"run_retention_janitor", 24 * time.Hour},
}

var noSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and agent scheduler",
	Long: `Start the ingestion API, the metrics endpoint, and the background
scheduler that runs each agent at its cadence. Shuts down cleanly on
SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dispatcher, err := newDispatcher()
		if err != nil {
			return err
		}

		accumulator := learning.NewAccumulator(store, oracleAI)
		certifier := learning.NewCertifier(store)
		server := api.NewServer(store, dispatcher, accumulator, certifier, cfg.API)

		httpSrv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		var wg sync.WaitGroup
		if !noSchedule {
			for _, sched := range agentSchedule {
				wg.Add(1)
				go func(action string, interval time.Duration) {
					defer wg.Done()
					runOnSchedule(ctx, dispatcher, action, interval)
				}(sched.action, sched.interval)
			}
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("spyglass listening", "addr", cfg.Addr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			slog.Info("shutting down")
		case err := <-errCh:
			stop()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
		wg.Wait()
		return nil
	},
}

// runOnSchedule dispatches one action repeatedly. Failures are already in
// the audit table, so they only get a log line here.
func runOnSchedule(ctx context.Context, d *agent.Dispatcher, action string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, action); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scheduled run failed", "action", action, "error", err)
			}
		}
	}
}

func init() {
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve HTTP only, without the agent scheduler")
	rootCmd.AddCommand(serveCmd)
}
