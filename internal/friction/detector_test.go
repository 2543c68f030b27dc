package friction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

func newDetector(t *testing.T) (*Detector, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, oracle.Disabled()), store
}

func click(session, screen, element string, at time.Time) *events.BehaviorEvent {
	return &events.BehaviorEvent{
		ID:        uuid.New().String(),
		SessionID: session,
		TenantID:  "tenant-a",
		UserID:    "user-1",
		Type:      events.EventTypeClick,
		Screen:    screen,
		Element:   element,
		Metadata:  map[string]interface{}{},
		Timestamp: at,
	}
}

func navigate(session, screen string, at time.Time) *events.BehaviorEvent {
	return &events.BehaviorEvent{
		ID:        uuid.New().String(),
		SessionID: session,
		TenantID:  "tenant-a",
		UserID:    "user-1",
		Type:      events.EventTypeNavigate,
		Screen:    screen,
		Metadata:  map[string]interface{}{},
		Timestamp: at,
	}
}

func errEvent(session, screen, code string, at time.Time) *events.BehaviorEvent {
	return &events.BehaviorEvent{
		ID:        uuid.New().String(),
		SessionID: session,
		TenantID:  "tenant-a",
		UserID:    "user-1",
		Type:      events.EventTypeError,
		Screen:    screen,
		Metadata:  map[string]interface{}{"error_code": code},
		Timestamp: at,
	}
}

func runDetector(t *testing.T, d *Detector, store *sqlite.SQLiteStorage, evts []*events.BehaviorEvent) []*types.FrictionEvent {
	t.Helper()
	ctx := context.Background()
	if err := store.StoreBehaviorEvents(ctx, evts); err != nil {
		t.Fatalf("failed to seed events: %v", err)
	}
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("detector run failed: %v", err)
	}
	frictions, err := store.GetFrictionEvents(ctx, types.FrictionFilter{})
	if err != nil {
		t.Fatalf("failed to load frictions: %v", err)
	}
	return frictions
}

func TestRageClickCluster(t *testing.T) {
	t.Run("six clicks in 2.1s emit one high incident", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 6; i++ {
			evts = append(evts, click("s1", "/invoices", "button#save", base.Add(time.Duration(i)*420*time.Millisecond)))
		}

		frictions := runDetector(t, d, store, evts)
		if len(frictions) != 1 {
			t.Fatalf("expected 1 friction event, got %d", len(frictions))
		}
		f := frictions[0]
		if f.FrictionType != types.FrictionRageClick {
			t.Errorf("wrong type: %s", f.FrictionType)
		}
		if f.Severity != types.SeverityHigh {
			t.Errorf("expected high severity, got %s", f.Severity)
		}
		if f.Count != 6 {
			t.Errorf("expected count 6, got %d", f.Count)
		}
		if f.Element != "button#save" {
			t.Errorf("wrong element: %s", f.Element)
		}
	})

	t.Run("fewer than five clicks never emit", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 4; i++ {
			evts = append(evts, click("s1", "/invoices", "button#save", base.Add(time.Duration(i)*200*time.Millisecond)))
		}

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("expected no frictions, got %d", len(frictions))
		}
	})

	t.Run("five clicks spread past the span never emit", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 5; i++ {
			evts = append(evts, click("s1", "/invoices", "button#save", base.Add(time.Duration(i)*2*time.Second)))
		}

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("expected no frictions for 8s spread, got %d", len(frictions))
		}
	})

	t.Run("capture-synthesized rage events do not pad a cluster", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 4; i++ {
			evts = append(evts, click("s1", "/checkout", "button#pay", base.Add(time.Duration(i)*200*time.Millisecond)))
		}
		synthetic := click("s1", "/checkout", "button#pay", base.Add(900*time.Millisecond))
		synthetic.Type = events.EventTypeRageClick
		evts = append(evts, synthetic)

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("expected no frictions from 4 raw clicks, got %d", len(frictions))
		}
	})

	t.Run("critical threshold ignores synthesized rage events", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 9; i++ {
			evts = append(evts, click("s1", "/checkout", "button#pay", base.Add(time.Duration(i)*300*time.Millisecond)))
		}
		synthetic := click("s1", "/checkout", "button#pay", base.Add(2800*time.Millisecond))
		synthetic.Type = events.EventTypeRageClick
		evts = append(evts, synthetic)

		frictions := runDetector(t, d, store, evts)
		if len(frictions) != 1 {
			t.Fatalf("expected 1 friction event, got %d", len(frictions))
		}
		if frictions[0].Severity != types.SeverityHigh {
			t.Errorf("expected high severity from 9 raw clicks, got %s", frictions[0].Severity)
		}
		if frictions[0].Count != 9 {
			t.Errorf("expected count 9, got %d", frictions[0].Count)
		}
	})

	t.Run("ten clicks are critical", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		var evts []*events.BehaviorEvent
		for i := 0; i < 10; i++ {
			evts = append(evts, click("s1", "/invoices", "button#save", base.Add(time.Duration(i)*300*time.Millisecond)))
		}

		frictions := runDetector(t, d, store, evts)
		if len(frictions) != 1 {
			t.Fatalf("expected 1 friction event, got %d", len(frictions))
		}
		if frictions[0].Severity != types.SeverityCritical {
			t.Errorf("expected critical severity, got %s", frictions[0].Severity)
		}
	})
}

func TestBacktrackDetection(t *testing.T) {
	t.Run("round trip within 7 seconds", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		evts := []*events.BehaviorEvent{
			navigate("s1", "/contacts", base),
			navigate("s1", "/deals", base.Add(3*time.Second)),
			navigate("s1", "/contacts", base.Add(7*time.Second)),
		}

		frictions := runDetector(t, d, store, evts)
		if len(frictions) != 1 {
			t.Fatalf("expected 1 backtrack, got %d", len(frictions))
		}
		f := frictions[0]
		if f.FrictionType != types.FrictionBacktrack || f.Severity != types.SeverityMedium {
			t.Errorf("unexpected classification: %+v", f)
		}
		dt, ok := f.Details["dt_ms"].(float64)
		if !ok {
			t.Fatalf("dt_ms missing from details: %v", f.Details)
		}
		if dt < 6900 || dt > 7100 {
			t.Errorf("expected dt_ms near 7000, got %v", dt)
		}
	})

	t.Run("slow return is not a backtrack", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		evts := []*events.BehaviorEvent{
			navigate("s1", "/contacts", base),
			navigate("s1", "/deals", base.Add(3*time.Second)),
			navigate("s1", "/contacts", base.Add(15*time.Second)),
		}

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("expected no backtrack past threshold, got %d", len(frictions))
		}
	})

	t.Run("sessions are independent", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		// The A -> B -> A shape only appears when sessions are mixed
		evts := []*events.BehaviorEvent{
			navigate("s1", "/contacts", base),
			navigate("s2", "/deals", base.Add(time.Second)),
			navigate("s1", "/reports", base.Add(2*time.Second)),
			navigate("s2", "/contacts", base.Add(3*time.Second)),
		}

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("cross-session backtrack detected: %d", len(frictions))
		}
	})
}

func TestErrorLoopDetection(t *testing.T) {
	t.Run("three identical errors form a loop", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		evts := []*events.BehaviorEvent{
			errEvent("s1", "/upload", "ERR_TIMEOUT", base),
			errEvent("s1", "/upload", "ERR_TIMEOUT", base.Add(5*time.Second)),
			errEvent("s1", "/upload", "ERR_TIMEOUT", base.Add(10*time.Second)),
		}

		frictions := runDetector(t, d, store, evts)
		if len(frictions) != 1 {
			t.Fatalf("expected 1 error loop, got %d", len(frictions))
		}
		f := frictions[0]
		if f.FrictionType != types.FrictionErrorLoop || f.Severity != types.SeverityHigh {
			t.Errorf("unexpected classification: %+v", f)
		}
		if f.Count != 3 {
			t.Errorf("expected count 3, got %d", f.Count)
		}
		if f.Details["signature"] != "ERR_TIMEOUT" {
			t.Errorf("signature not preserved: %v", f.Details)
		}
	})

	t.Run("distinct signatures do not combine", func(t *testing.T) {
		d, store := newDetector(t)
		base := time.Now().UTC().Add(-time.Minute)

		evts := []*events.BehaviorEvent{
			errEvent("s1", "/upload", "ERR_TIMEOUT", base),
			errEvent("s1", "/upload", "ERR_DENIED", base.Add(time.Second)),
			errEvent("s1", "/upload", "ERR_TIMEOUT", base.Add(2*time.Second)),
		}

		if frictions := runDetector(t, d, store, evts); len(frictions) != 0 {
			t.Errorf("expected no loop from mixed signatures, got %d", len(frictions))
		}
	})
}
