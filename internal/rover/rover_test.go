package rover

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

func newRover(t *testing.T) (*Rover, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func seedAPILogs(t *testing.T, store *sqlite.SQLiteStorage, count int, durationMs int64, statusCode int) {
	t.Helper()
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		if err := store.StoreAPILog(context.Background(), &types.APILogEntry{
			ID:         uuid.New().String(),
			Path:       "/api/events",
			Method:     "POST",
			StatusCode: statusCode,
			DurationMs: durationMs,
			CreatedAt:  now.Add(-time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("failed to seed api log: %v", err)
		}
	}
}

func findCheck(t *testing.T, checks []*types.HealthCheck, component string) *types.HealthCheck {
	t.Helper()
	for _, c := range checks {
		if c.Component == component {
			return c
		}
	}
	t.Fatalf("no %s check found", component)
	return nil
}

func runRover(t *testing.T, r *Rover, store *sqlite.SQLiteStorage) []*types.HealthCheck {
	t.Helper()
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("rover run failed: %v", err)
	}
	checks, err := store.GetRecentHealthChecks(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to load checks: %v", err)
	}
	return checks
}

func TestRoverWritesOneSnapshotPerComponent(t *testing.T) {
	r, store := newRover(t)
	checks := runRover(t, r, store)

	if len(checks) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(checks))
	}
	for _, component := range []string{"database", "api", "agents"} {
		c := findCheck(t, checks, component)
		if c.Status != types.HealthHealthy {
			t.Errorf("empty system should be healthy, %s is %s", component, c.Status)
		}
	}
}

func TestRoverFlagsSlowAPI(t *testing.T) {
	r, store := newRover(t)
	seedAPILogs(t, store, 20, 1500, 200)

	checks := runRover(t, r, store)
	api := findCheck(t, checks, "api")
	if api.Status != types.HealthDegraded {
		t.Errorf("expected degraded api, got %s", api.Status)
	}
	if len(api.Anomalies) == 0 {
		t.Error("expected latency anomaly recorded")
	}
	p95, ok := api.Metrics["p95_ms"].(float64)
	if !ok || p95 < 1000 {
		t.Errorf("expected p95 above threshold, got %v", api.Metrics["p95_ms"])
	}
}

func TestRoverFlagsErrorRate(t *testing.T) {
	r, store := newRover(t)
	seedAPILogs(t, store, 18, 50, 200)
	seedAPILogs(t, store, 2, 50, 500)

	checks := runRover(t, r, store)
	api := findCheck(t, checks, "api")
	if api.Status != types.HealthDegraded {
		t.Errorf("expected degraded api at 10%% errors, got %s", api.Status)
	}
}

func TestRoverFlagsFailedAgents(t *testing.T) {
	r, store := newRover(t)
	now := time.Now().UTC()

	// An older success followed by a failure: the latest run decides
	for _, exec := range []*types.AgentExecution{
		{ID: uuid.New().String(), AgentName: "process_miner", Status: types.ExecutionSuccess, CompletedAt: now.Add(-time.Hour)},
		{ID: uuid.New().String(), AgentName: "process_miner", Status: types.ExecutionFailed, Error: "window query failed", CompletedAt: now},
	} {
		if err := store.RecordAgentExecution(context.Background(), exec); err != nil {
			t.Fatalf("failed to seed execution: %v", err)
		}
	}

	checks := runRover(t, r, store)
	agents := findCheck(t, checks, "agents")
	if agents.Status != types.HealthDegraded {
		t.Errorf("expected degraded agents, got %s", agents.Status)
	}
	if len(agents.Anomalies) != 1 {
		t.Errorf("expected 1 anomaly, got %d", len(agents.Anomalies))
	}
}

func TestPercentile(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if got := percentile(sorted, 0.50); got != 50 {
		t.Errorf("p50: got %d", got)
	}
	if got := percentile(sorted, 0.95); got != 90 {
		t.Errorf("p95: got %d", got)
	}
	if got := percentile(nil, 0.95); got != 0 {
		t.Errorf("empty percentile: got %d", got)
	}
}
