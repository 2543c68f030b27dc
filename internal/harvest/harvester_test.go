package harvest

import (
	"context"
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

func TestHarvesterCollectsAllSources(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	proposal := &types.AutomationProposal{
		ID:                 uuid.New().String(),
		TenantID:           "t1",
		Title:              "Automate weekly export",
		Description:        "Users export the same report every Monday.",
		Category:           types.CategoryManualReport,
		CurrentTimeMinutes: 5,
		FrequencyPerWeek:   4,
		EstimatedDevHours:  8,
		Status:             types.StatusProposed,
		ProposedAt:         now,
	}
	if err := store.StoreAutomationProposals(ctx, []*types.AutomationProposal{proposal}); err != nil {
		t.Fatalf("failed to seed proposal: %v", err)
	}

	frictions := []*types.FrictionEvent{
		{
			ID: uuid.New().String(), TenantID: "t1", UserID: "u1",
			FrictionType: types.FrictionRageClick, Severity: types.SeverityCritical,
			Screen: "/invoices", Element: "#save", Count: 12,
			Details: map[string]interface{}{"window_ms": 2100}, DetectedAt: now,
		},
		// Sub-critical severity must not be harvested
		{
			ID: uuid.New().String(), TenantID: "t1", UserID: "u2",
			FrictionType: types.FrictionBacktrack, Severity: types.SeverityMedium,
			Screen: "/deals", Count: 1,
			Details: map[string]interface{}{"from": "/deals", "to": "/contacts"}, DetectedAt: now,
		},
	}
	if err := store.StoreFrictionEvents(ctx, frictions); err != nil {
		t.Fatalf("failed to seed frictions: %v", err)
	}

	learning := &types.BuildLearning{
		ID:           uuid.New().String(),
		BuildID:      "build-1",
		ModuleType:   "crud_api",
		LearningType: types.LearningPatternSuccess,
		Description:  "Table-driven handlers passed all gates on the first round.",
		Confidence:   0.65,
		LearnedAt:    now,
	}
	if err := store.StoreBuildLearnings(ctx, []*types.BuildLearning{learning}); err != nil {
		t.Fatalf("failed to seed learning: %v", err)
	}

	h := New(store)
	report, err := h.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.ItemsProcessed != 3 {
		t.Fatalf("expected 3 items harvested, got %d", report.ItemsProcessed)
	}

	byCategory := map[string]*types.KnowledgeItem{}
	for _, query := range []string{"export", "rage", "table-driven"} {
		items, err := store.SearchKnowledge(ctx, query, 10)
		if err != nil {
			t.Fatalf("search %q failed: %v", query, err)
		}
		if len(items) != 1 {
			t.Fatalf("search %q returned %d items, want 1", query, len(items))
		}
		byCategory[items[0].Category] = items[0]
	}

	if got := byCategory["automation_opportunity"]; got == nil {
		t.Fatal("missing proposal item")
	} else {
		if got.Confidence != 0.7 {
			t.Errorf("proposal confidence = %v, want 0.7", got.Confidence)
		}
		if got.SourceID != proposal.ID {
			t.Errorf("proposal source id = %q", got.SourceID)
		}
	}
	if got := byCategory["ux_issue"]; got == nil {
		t.Fatal("missing friction item")
	} else if got.Confidence != 0.8 {
		t.Errorf("friction confidence = %v, want 0.8", got.Confidence)
	}
	if got := byCategory["learning"]; got == nil {
		t.Fatal("missing learning item")
	} else if got.Confidence != 0.65 {
		t.Errorf("learning confidence = %v, want its own 0.65", got.Confidence)
	}
}

func TestHarvesterSkipsOldRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-6 * time.Hour)

	stale := &types.AutomationProposal{
		ID: uuid.New().String(), TenantID: "t1",
		Title: "Old proposal", Description: "Outside the window.",
		Category: types.CategoryManualReport, CurrentTimeMinutes: 5,
		FrequencyPerWeek: 1, Status: types.StatusProposed, ProposedAt: old,
	}
	if err := store.StoreAutomationProposals(ctx, []*types.AutomationProposal{stale}); err != nil {
		t.Fatalf("failed to seed proposal: %v", err)
	}

	report, err := New(store).Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.ItemsProcessed != 0 {
		t.Errorf("expected nothing harvested, got %d", report.ItemsProcessed)
	}
}

func TestHarvesterEmptySystem(t *testing.T) {
	report, err := New(newTestStore(t)).Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if report.ItemsProcessed != 0 {
		t.Errorf("expected 0 items, got %d", report.ItemsProcessed)
	}
}
