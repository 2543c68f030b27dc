// Package rover snapshots system health: table growth, API error rate and
// latency percentiles, and agent run outcomes. One HealthCheck row per
// component per run, never mutated.
package rover

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/storage"
	"github.com/lai-labs/spyglass/internal/types"
)

const (
	// Row-count thresholds per table
	rowCountWarn     = 50_000
	rowCountCritical = 100_000

	// API thresholds over the error window
	errorWindow      = time.Hour
	logSampleSize    = 500
	p95ThresholdMs   = 1000
	errorRateMax     = 0.05
	serverErrorFloor = 500

	// agentLookback bounds the executions considered per agent
	agentLookback = 25
)

// Rover runs the fixed health checklist
type Rover struct {
	store storage.Storage
}

// New creates a health rover
func New(store storage.Storage) *Rover {
	return &Rover{store: store}
}

// Name implements agent.Agent
func (r *Rover) Name() string { return "health_rover" }

// Run performs every component check concurrently and stores one snapshot
// per component. A failing check yields an unhealthy snapshot rather than
// failing the run.
func (r *Rover) Run(ctx context.Context) (*agent.Report, error) {
	now := time.Now().UTC()
	checks := make([]*types.HealthCheck, 3)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		checks[0] = r.checkDatabase(gctx, now)
		return nil
	})
	g.Go(func() error {
		checks[1] = r.checkAPI(gctx, now)
		return nil
	})
	g.Go(func() error {
		checks[2] = r.checkAgents(gctx, now)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := r.store.StoreHealthChecks(ctx, checks); err != nil {
		return nil, fmt.Errorf("failed to store health checks: %w", err)
	}

	unhealthy := 0
	for _, c := range checks {
		if c.Status != types.HealthHealthy {
			unhealthy++
		}
	}
	return &agent.Report{
		Summary:        fmt.Sprintf("checked %d components, %d need attention", len(checks), unhealthy),
		ItemsProcessed: len(checks),
	}, nil
}

// failedCheck is the snapshot written when a check itself cannot run
func failedCheck(component string, now time.Time, err error) *types.HealthCheck {
	return &types.HealthCheck{
		ID:        uuid.New().String(),
		Component: component,
		Status:    types.HealthUnhealthy,
		Metrics:   map[string]interface{}{},
		Anomalies: []map[string]interface{}{
			{"type": "check_failed", "error": err.Error()},
		},
		Suggestions: []map[string]interface{}{},
		CheckedAt:   now,
	}
}

// checkDatabase flags tables growing past the size thresholds
func (r *Rover) checkDatabase(ctx context.Context, now time.Time) *types.HealthCheck {
	if err := r.store.Ping(ctx); err != nil {
		return failedCheck("database", now, err)
	}

	counts, err := r.store.TableRowCounts(ctx)
	if err != nil {
		return failedCheck("database", now, err)
	}

	status := types.HealthHealthy
	metrics := map[string]interface{}{}
	var anomalies, suggestions []map[string]interface{}

	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		n := counts[table]
		metrics[table+"_rows"] = n
		switch {
		case n > rowCountCritical:
			status = types.HealthUnhealthy
			anomalies = append(anomalies, map[string]interface{}{
				"type": "table_size", "table": table, "rows": n, "severity": "high",
			})
			suggestions = append(suggestions, map[string]interface{}{
				"table": table, "action": "apply retention policy or archive old rows",
			})
		case n > rowCountWarn:
			if status == types.HealthHealthy {
				status = types.HealthDegraded
			}
			anomalies = append(anomalies, map[string]interface{}{
				"type": "table_size", "table": table, "rows": n, "severity": "medium",
			})
		}
	}

	if anomalies == nil {
		anomalies = []map[string]interface{}{}
	}
	if suggestions == nil {
		suggestions = []map[string]interface{}{}
	}
	return &types.HealthCheck{
		ID:          uuid.New().String(),
		Component:   "database",
		Status:      status,
		Metrics:     metrics,
		Anomalies:   anomalies,
		Suggestions: suggestions,
		CheckedAt:   now,
	}
}

// checkAPI computes error rate and latency percentiles from a recent log
// sample
func (r *Rover) checkAPI(ctx context.Context, now time.Time) *types.HealthCheck {
	logs, err := r.store.GetAPILogs(ctx, now.Add(-errorWindow), logSampleSize)
	if err != nil {
		return failedCheck("api", now, err)
	}

	status := types.HealthHealthy
	metrics := map[string]interface{}{"sample_size": len(logs)}
	var anomalies, suggestions []map[string]interface{}

	if len(logs) > 0 {
		errorCount := 0
		durations := make([]int64, 0, len(logs))
		for _, l := range logs {
			if l.StatusCode >= serverErrorFloor {
				errorCount++
			}
			durations = append(durations, l.DurationMs)
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		errorRate := float64(errorCount) / float64(len(logs))
		p50 := percentile(durations, 0.50)
		p95 := percentile(durations, 0.95)
		p99 := percentile(durations, 0.99)

		metrics["error_rate"] = errorRate
		metrics["p50_ms"] = p50
		metrics["p95_ms"] = p95
		metrics["p99_ms"] = p99

		if errorRate > errorRateMax {
			status = types.HealthDegraded
			anomalies = append(anomalies, map[string]interface{}{
				"type": "error_rate", "rate": errorRate,
			})
			suggestions = append(suggestions, map[string]interface{}{
				"action": "inspect recent 5xx responses",
			})
		}
		if p95 > p95ThresholdMs {
			status = types.HealthDegraded
			anomalies = append(anomalies, map[string]interface{}{
				"type": "latency", "p95_ms": p95,
			})
			suggestions = append(suggestions, map[string]interface{}{
				"action": "profile slow endpoints",
			})
		}
	}

	if anomalies == nil {
		anomalies = []map[string]interface{}{}
	}
	if suggestions == nil {
		suggestions = []map[string]interface{}{}
	}
	return &types.HealthCheck{
		ID:          uuid.New().String(),
		Component:   "api",
		Status:      status,
		Metrics:     metrics,
		Anomalies:   anomalies,
		Suggestions: suggestions,
		CheckedAt:   now,
	}
}

// checkAgents degrades when any agent's most recent run failed
func (r *Rover) checkAgents(ctx context.Context, now time.Time) *types.HealthCheck {
	execs, err := r.store.GetRecentAgentExecutions(ctx, "", agentLookback)
	if err != nil {
		return failedCheck("agents", now, err)
	}

	latest := make(map[string]*types.AgentExecution)
	for _, e := range execs {
		if _, seen := latest[e.AgentName]; !seen {
			latest[e.AgentName] = e
		}
	}

	status := types.HealthHealthy
	metrics := map[string]interface{}{"agents_observed": len(latest)}
	var anomalies []map[string]interface{}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := latest[name]
		if e.Status == types.ExecutionFailed {
			status = types.HealthDegraded
			anomalies = append(anomalies, map[string]interface{}{
				"type": "agent_failure", "agent": name, "error": e.Error,
			})
		}
	}

	if anomalies == nil {
		anomalies = []map[string]interface{}{}
	}
	return &types.HealthCheck{
		ID:          uuid.New().String(),
		Component:   "agents",
		Status:      status,
		Metrics:     metrics,
		Anomalies:   anomalies,
		Suggestions: []map[string]interface{}{},
		CheckedAt:   now,
	}
}

// percentile returns the nearest-rank percentile of a sorted slice
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
