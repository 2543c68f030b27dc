package scout

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

type stubOracle struct {
	response string
	err      error
}

func (s *stubOracle) Complete(ctx context.Context, system, prompt string) (*oracle.Completion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &oracle.Completion{Text: s.response, InputTokens: 100, OutputTokens: 50}, nil
}

func (s *stubOracle) Enabled() bool { return true }

func newScout(t *testing.T, oc oracle.Client) (*Scout, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, oc), store
}

func activity(eventType events.EventType, user, screen string, at time.Time) *events.BehaviorEvent {
	return &events.BehaviorEvent{
		ID:        uuid.New().String(),
		SessionID: "sess-" + user,
		TenantID:  "tenant-a",
		UserID:    user,
		Type:      eventType,
		Screen:    screen,
		Metadata:  map[string]interface{}{},
		Timestamp: at,
	}
}

func runScout(t *testing.T, s *Scout, store *sqlite.SQLiteStorage) []*types.AutomationProposal {
	t.Helper()
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("scout run failed: %v", err)
	}
	proposals, err := store.GetAutomationProposals(context.Background(), time.Time{}, 100)
	if err != nil {
		t.Fatalf("failed to load proposals: %v", err)
	}
	return proposals
}

func TestExportSignal(t *testing.T) {
	s, store := newScout(t, oracle.Disabled())
	base := time.Now().UTC().Add(-24 * time.Hour)

	var evts []*events.BehaviorEvent
	for i := 0; i < 12; i++ {
		evts = append(evts, activity(events.EventTypeExport, "user-1", "/contacts", base.Add(time.Duration(i)*time.Hour)))
	}
	if err := store.StoreBehaviorEvents(context.Background(), evts); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	proposals := runScout(t, s, store)
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}

	p := proposals[0]
	if !strings.Contains(p.Title, "/contacts") {
		t.Errorf("proposal does not reference screen: %q", p.Title)
	}
	if p.Category != types.CategoryManualReport {
		t.Errorf("unexpected category: %s", p.Category)
	}
	if p.FrequencyPerWeek != 12 {
		t.Errorf("expected frequency 12, got %v", p.FrequencyPerWeek)
	}

	wantROI := exportMinutes / 60 * 12 * 4.33
	if math.Abs(p.ROIHoursPerMonth()-wantROI) > 1e-9 {
		t.Errorf("ROI mismatch: got %v, want %v", p.ROIHoursPerMonth(), wantROI)
	}
}

func TestExportBelowThreshold(t *testing.T) {
	s, store := newScout(t, oracle.Disabled())
	base := time.Now().UTC().Add(-24 * time.Hour)

	evts := []*events.BehaviorEvent{
		activity(events.EventTypeExport, "user-1", "/contacts", base),
		activity(events.EventTypeExport, "user-1", "/contacts", base.Add(time.Hour)),
	}
	if err := store.StoreBehaviorEvents(context.Background(), evts); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	if proposals := runScout(t, s, store); len(proposals) != 0 {
		t.Errorf("expected no proposals below threshold, got %d", len(proposals))
	}
}

func TestCopyPasteSignal(t *testing.T) {
	s, store := newScout(t, oracle.Disabled())
	base := time.Now().UTC().Add(-24 * time.Hour)

	var evts []*events.BehaviorEvent
	for i := 0; i < 6; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		evts = append(evts,
			activity(events.EventTypeCopy, "user-1", "/contacts", at),
			activity(events.EventTypePaste, "user-1", "/billing", at.Add(10*time.Second)),
		)
	}
	if err := store.StoreBehaviorEvents(context.Background(), evts); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	proposals := runScout(t, s, store)
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}
	if proposals[0].Category != types.CategoryCopyPaste {
		t.Errorf("unexpected category: %s", proposals[0].Category)
	}
	if proposals[0].FrequencyPerWeek != 6 {
		t.Errorf("expected frequency 6, got %v", proposals[0].FrequencyPerWeek)
	}
}

func TestSequenceSignal(t *testing.T) {
	s, store := newScout(t, oracle.Disabled())
	base := time.Now().UTC().Add(-24 * time.Hour)

	var evts []*events.BehaviorEvent
	for i := 0; i < 5; i++ {
		user := "user-" + string(rune('a'+i))
		at := base.Add(time.Duration(i) * time.Hour)
		evts = append(evts,
			activity(events.EventTypeNavigate, user, "/orders", at),
			activity(events.EventTypeNavigate, user, "/orders/detail", at.Add(5*time.Second)),
			activity(events.EventTypeNavigate, user, "/shipping", at.Add(10*time.Second)),
		)
	}
	if err := store.StoreBehaviorEvents(context.Background(), evts); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	proposals := runScout(t, s, store)
	if len(proposals) != 1 {
		t.Fatalf("expected 1 proposal, got %d", len(proposals))
	}

	p := proposals[0]
	if p.Category != types.CategoryRepetitiveTask {
		t.Errorf("unexpected category: %s", p.Category)
	}
	if !strings.Contains(p.Description, "/orders > /orders/detail > /shipping") {
		t.Errorf("proposal does not name the sequence: %q", p.Description)
	}
	if p.FrequencyPerWeek != 5 {
		t.Errorf("expected frequency 5, got %v", p.FrequencyPerWeek)
	}
}

func TestSequenceBelowThreshold(t *testing.T) {
	s, store := newScout(t, oracle.Disabled())
	base := time.Now().UTC().Add(-24 * time.Hour)

	var evts []*events.BehaviorEvent
	for i := 0; i < 3; i++ {
		user := "user-" + string(rune('a'+i))
		at := base.Add(time.Duration(i) * time.Hour)
		evts = append(evts,
			activity(events.EventTypeNavigate, user, "/orders", at),
			activity(events.EventTypeNavigate, user, "/orders/detail", at.Add(5*time.Second)),
			activity(events.EventTypeNavigate, user, "/shipping", at.Add(10*time.Second)),
		)
	}
	if err := store.StoreBehaviorEvents(context.Background(), evts); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	if proposals := runScout(t, s, store); len(proposals) != 0 {
		t.Errorf("expected no proposals below threshold, got %d", len(proposals))
	}
}

func TestOracleGarbageYieldsEmptyNotCrash(t *testing.T) {
	s, store := newScout(t, &stubOracle{response: "I am unable to propose anything today."})

	if proposals := runScout(t, s, store); len(proposals) != 0 {
		t.Errorf("expected empty proposals from garbage oracle output, got %d", len(proposals))
	}
}

func TestOracleErrorDoesNotFailRun(t *testing.T) {
	s, store := newScout(t, &stubOracle{err: context.DeadlineExceeded})

	if proposals := runScout(t, s, store); len(proposals) != 0 {
		t.Errorf("expected no proposals, got %d", len(proposals))
	}
}

func TestOracleProposalsValidated(t *testing.T) {
	response := `Here are my proposals:

` + "```json" + `
[
  {"title": "Auto-assign new leads", "description": "Leads are triaged manually.", "category": "predictable_decision", "current_time_minutes": 10, "frequency_per_week": 20, "estimated_dev_hours": 12},
  {"title": "", "description": "missing title", "category": "data_entry", "current_time_minutes": 5},
  {"title": "Bad category", "description": "unknown category", "category": "teleportation", "current_time_minutes": 5},
  {"title": "Negative time", "description": "invalid effort", "category": "data_entry", "current_time_minutes": -3}
]
` + "```"

	s, store := newScout(t, &stubOracle{response: response})
	proposals := runScout(t, s, store)

	if len(proposals) != 1 {
		t.Fatalf("expected 1 surviving proposal, got %d", len(proposals))
	}
	p := proposals[0]
	if p.Title != "Auto-assign new leads" {
		t.Errorf("wrong proposal survived: %q", p.Title)
	}
	if p.Status != types.StatusProposed {
		t.Errorf("expected proposed status, got %s", p.Status)
	}

	wantROI := 10.0 / 60 * 20 * 4.33
	if math.Abs(p.ROIHoursPerMonth()-wantROI) > 1e-9 {
		t.Errorf("ROI mismatch: got %v, want %v", p.ROIHoursPerMonth(), wantROI)
	}
}
