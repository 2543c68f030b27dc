// Package agent provides the execution framework shared by every analysis
// agent: a common interface, a panic-safe runner that writes the audit row,
// and the action dispatcher behind the HTTP and CLI surfaces.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

// Report is what an agent returns from one successful run
type Report struct {
	// Summary is a one-line human-readable description of what happened
	Summary string
	// ItemsProcessed counts the records the agent produced or touched
	ItemsProcessed int
	// TokensUsed is the oracle token total for this run, zero when the
	// oracle was disabled or unused
	TokensUsed int64
}

// Agent is one analysis pass over stored events. Run must be safe to call
// repeatedly; every agent reads a bounded window and writes derived records.
type Agent interface {
	Name() string
	Run(ctx context.Context) (*Report, error)
}

// Runner executes agents and records the audit row for every run. One
// AgentExecution is written per run regardless of outcome, including panics.
type Runner struct {
	store storage.Storage
}

// NewRunner creates a runner backed by the given store
func NewRunner(store storage.Storage) *Runner {
	return &Runner{store: store}
}

// Run executes one agent and returns its audit record. The returned error is
// the agent's failure if any; audit write failures are logged, not returned,
// so a broken audit table cannot mask the real outcome.
func (r *Runner) Run(ctx context.Context, a Agent) (*types.AgentExecution, error) {
	start := time.Now()

	report, runErr := r.runSafely(ctx, a)

	exec := &types.AgentExecution{
		ID:          uuid.New().String(),
		AgentName:   a.Name(),
		Status:      types.ExecutionSuccess,
		DurationMs:  time.Since(start).Milliseconds(),
		CompletedAt: time.Now().UTC(),
	}

	if runErr != nil {
		exec.Status = types.ExecutionFailed
		exec.Error = runErr.Error()
	} else if report != nil {
		exec.OutputSummary = report.Summary
		exec.ItemsProcessed = report.ItemsProcessed
		exec.AITokensUsed = report.TokensUsed
	}

	recordRun(a.Name(), exec.Status, time.Since(start))

	if err := r.store.RecordAgentExecution(ctx, exec); err != nil {
		slog.Error("failed to record agent execution",
			"agent", a.Name(),
			"error", err)
	}

	if runErr != nil {
		slog.Error("agent run failed",
			"agent", a.Name(),
			"duration_ms", exec.DurationMs,
			"error", runErr)
		return exec, runErr
	}

	slog.Info("agent run complete",
		"agent", a.Name(),
		"duration_ms", exec.DurationMs,
		"items", exec.ItemsProcessed,
		"summary", exec.OutputSummary)
	return exec, nil
}

// runSafely converts a panicking agent into an ordinary failed run
func (r *Runner) runSafely(ctx context.Context, a Agent) (report *Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("agent %s panicked: %v\n%s", a.Name(), rec, debug.Stack())
		}
	}()
	return a.Run(ctx)
}
