package cost

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTokens(t *testing.T, store *sqlite.SQLiteStorage, completedAt time.Time, tokens int64) {
	t.Helper()
	exec := &types.AgentExecution{
		ID:           uuid.New().String(),
		AgentName:    "automation_scout",
		Status:       types.ExecutionSuccess,
		AITokensUsed: tokens,
		CompletedAt:  completedAt,
	}
	if err := store.RecordAgentExecution(context.Background(), exec); err != nil {
		t.Fatalf("failed to seed execution: %v", err)
	}
}

func TestWatcherProjectsTokenSpend(t *testing.T) {
	store := newTestStore(t)

	// Day 15 of a 30-day month: projection doubles the actual
	now := time.Date(2026, time.September, 15, 12, 0, 0, 0, time.UTC)
	seedTokens(t, store, now.Add(-24*time.Hour), 1_500_000)
	seedTokens(t, store, now.Add(-48*time.Hour), 500_000)
	// Last month's usage must not count
	seedTokens(t, store, time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC), 9_000_000)

	w := New(store, &Budgets{Services: []ServiceBudget{
		{Name: "ai_oracle", Budget: 40, PricePerMillionTokens: 9},
	}})
	w.now = func() time.Time { return now }

	report, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.ItemsProcessed != 1 {
		t.Fatalf("expected 1 service processed, got %d", report.ItemsProcessed)
	}

	records, err := store.GetCostRecords(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("failed to load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 cost record, got %d", len(records))
	}
	rec := records[0]
	if rec.Service != "ai_oracle" {
		t.Errorf("service = %q", rec.Service)
	}
	// 2M tokens at $9/MTok
	if rec.ActualCost != 18 {
		t.Errorf("actual cost = %v, want 18", rec.ActualCost)
	}
	if rec.ProjectedCost != 36 {
		t.Errorf("projected cost = %v, want 36", rec.ProjectedCost)
	}
	// 36 > 0.8*40
	if len(rec.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(rec.Alerts))
	}
	if rec.Alerts[0].Type != "projected_overspend" {
		t.Errorf("alert type = %q", rec.Alerts[0].Type)
	}
}

func TestWatcherStaysQuietUnderBudget(t *testing.T) {
	store := newTestStore(t)

	now := time.Date(2026, time.September, 15, 12, 0, 0, 0, time.UTC)
	seedTokens(t, store, now.Add(-time.Hour), 1_000_000)

	w := New(store, &Budgets{Services: []ServiceBudget{
		{Name: "ai_oracle", Budget: 500, PricePerMillionTokens: 9},
	}})
	w.now = func() time.Time { return now }

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	records, err := store.GetCostRecords(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("failed to load records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if len(records[0].Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", records[0].Alerts)
	}
}

func TestWatcherProratesFlatServices(t *testing.T) {
	store := newTestStore(t)

	// Day 10 of a 30-day month
	now := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)

	w := New(store, &Budgets{Services: []ServiceBudget{
		{Name: "hosting", Budget: 100, MonthlyCost: 60},
	}})
	w.now = func() time.Time { return now }

	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	records, err := store.GetCostRecords(context.Background(), time.Time{}, 10)
	if err != nil {
		t.Fatalf("failed to load records: %v", err)
	}
	rec := records[0]
	if rec.ActualCost != 20 {
		t.Errorf("actual cost = %v, want 20", rec.ActualCost)
	}
	// Flat cost projects back to its monthly amount
	if rec.ProjectedCost != 60 {
		t.Errorf("projected cost = %v, want 60", rec.ProjectedCost)
	}
	if len(rec.Alerts) != 0 {
		t.Errorf("expected no alerts, got %v", rec.Alerts)
	}
}

func TestLoadBudgets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budgets.yaml")
	content := `services:
  - name: ai_oracle
    budget: 250
    price_per_million_tokens: 9
  - name: hosting
    budget: 80
    monthly_cost: 45
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write budgets file: %v", err)
	}

	b, err := LoadBudgets(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(b.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(b.Services))
	}
	if b.Services[0].PricePerMillionTokens != 9 {
		t.Errorf("price = %v", b.Services[0].PricePerMillionTokens)
	}
	if b.Services[1].MonthlyCost != 45 {
		t.Errorf("monthly cost = %v", b.Services[1].MonthlyCost)
	}

	if _, err := LoadBudgets(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewDefaultsBudgets(t *testing.T) {
	w := New(newTestStore(t), nil)
	if len(w.budgets.Services) != 1 || w.budgets.Services[0].Name != "ai_oracle" {
		t.Errorf("unexpected default budgets: %+v", w.budgets.Services)
	}
}
