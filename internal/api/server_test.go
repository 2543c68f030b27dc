package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lai-labs/spyglass/internal/agent"
	"github.com/lai-labs/spyglass/internal/config"
	"github.com/lai-labs/spyglass/internal/events"
	"github.com/lai-labs/spyglass/internal/learning"
	"github.com/lai-labs/spyglass/internal/oracle"
	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

type noopAgent struct{}

func (noopAgent) Name() string { return "noop" }
func (noopAgent) Run(ctx context.Context) (*agent.Report, error) {
	return &agent.Report{Summary: "did nothing"}, nil
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*Server, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if cfg.RatePerMinute == 0 {
		cfg.RatePerMinute = 6000
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 500
	}

	runner := agent.NewRunner(store)
	dispatcher := agent.NewDispatcher(runner, store)
	dispatcher.Register(noopAgent{})

	accumulator := learning.NewAccumulator(store, oracle.Disabled())
	certifier := learning.NewCertifier(store)

	return NewServer(store, dispatcher, accumulator, certifier, cfg), store
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestIngestEvents(t *testing.T) {
	s, store := newTestServer(t, config.APIConfig{})

	batch := map[string]interface{}{"events": []map[string]interface{}{
		{"session_id": "sess-1", "event_type": "click", "screen": "/deals", "element": "#save"},
		{"session_id": "sess-1", "event_type": "navigate", "screen": "/contacts"},
	}}
	w := doJSON(t, s, http.MethodPost, "/api/events", batch)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	stored, err := store.GetBehaviorEvents(context.Background(), events.Filter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("failed to load events: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored = %d, want 2", len(stored))
	}
	for _, e := range stored {
		if e.ID == "" {
			t.Error("event id not defaulted")
		}
		if e.TenantID != events.AnonymousID || e.UserID != events.AnonymousID {
			t.Errorf("anonymous defaults not applied: tenant=%q user=%q", e.TenantID, e.UserID)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not defaulted")
		}
	}
}

func TestIngestRejectsBadBatches(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{MaxBatchSize: 2})

	cases := []struct {
		name string
		body interface{}
	}{
		{"empty batch", map[string]interface{}{"events": []map[string]interface{}{}}},
		{"unknown event type", map[string]interface{}{"events": []map[string]interface{}{
			{"session_id": "s", "event_type": "teleport", "screen": "/x"},
		}}},
		{"missing session", map[string]interface{}{"events": []map[string]interface{}{
			{"event_type": "click", "screen": "/x"},
		}}},
		{"oversized batch", map[string]interface{}{"events": []map[string]interface{}{
			{"session_id": "s", "event_type": "click", "screen": "/x"},
			{"session_id": "s", "event_type": "click", "screen": "/x"},
			{"session_id": "s", "event_type": "click", "screen": "/x"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := doJSON(t, s, http.MethodPost, "/api/events", tc.body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestDispatchAgent(t *testing.T) {
	s, store := newTestServer(t, config.APIConfig{})

	w := doJSON(t, s, http.MethodPost, "/api/agents", map[string]string{"action": "run_noop"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	execs, err := store.GetRecentAgentExecutions(context.Background(), "noop", 10)
	if err != nil {
		t.Fatalf("failed to load executions: %v", err)
	}
	if len(execs) != 1 || execs[0].Status != types.ExecutionSuccess {
		t.Errorf("unexpected executions: %+v", execs)
	}
}

func TestDispatchUnknownAction(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{})

	w := doJSON(t, s, http.MethodPost, "/api/agents", map[string]string{"action": "run_nothing"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	if _, ok := body["valid_actions"]; !ok {
		t.Errorf("response missing valid_actions: %v", body)
	}
}

func TestBuildCompleteHook(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{})

	result := map[string]interface{}{
		"module": "billing", "version": "1.0.0",
		"tests_passed": 47, "tests_total": 47,
		"gates_passed": 5, "gates_total": 5,
		"security_clean": true, "p95_ms": 150,
	}

	w := doJSON(t, s, http.MethodPost, "/api/builds/complete", map[string]interface{}{
		"build_id": "build-9", "result": result,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	cert := body["certificate"].(map[string]interface{})
	if score := cert["trust_score"].(float64); score != 100 {
		t.Errorf("trust score = %v, want 100", score)
	}

	got := doJSON(t, s, http.MethodGet, "/api/certificates/build-9", nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get certificate status = %d", got.Code)
	}

	missing := doJSON(t, s, http.MethodGet, "/api/certificates/build-none", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing certificate status = %d, want 404", missing.Code)
	}

	noID := doJSON(t, s, http.MethodPost, "/api/builds/complete", map[string]interface{}{"result": result})
	if noID.Code != http.StatusBadRequest {
		t.Errorf("missing build_id status = %d, want 400", noID.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{})
	w := doJSON(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if decode(t, w)["status"] != "ok" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestKnowledgeSearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{})
	if w := doJSON(t, s, http.MethodGet, "/api/knowledge", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRateLimitPerTenant(t *testing.T) {
	s, _ := newTestServer(t, config.APIConfig{RatePerMinute: 2})

	send := func(tenant string) int {
		batch := map[string]interface{}{"events": []map[string]interface{}{
			{"session_id": "s", "event_type": "click", "screen": "/x"},
		}}
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(batch); err != nil {
			t.Fatalf("encode: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/api/events", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", tenant)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		return w.Code
	}

	// The bucket starts with a burst of RatePerMinute tokens
	for i := 0; i < 2; i++ {
		if code := send("t1"); code != http.StatusAccepted {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("t1"); code != http.StatusTooManyRequests {
		t.Errorf("over-limit status = %d, want 429", code)
	}
	// Another tenant has its own bucket
	if code := send("t2"); code != http.StatusAccepted {
		t.Errorf("other tenant status = %d, want 202", code)
	}
}

func TestAccessLogRecordsRequests(t *testing.T) {
	s, store := newTestServer(t, config.APIConfig{})

	doJSON(t, s, http.MethodGet, "/api/health", nil)

	logs, err := store.GetAPILogs(context.Background(), time.Now().UTC().Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("failed to load api logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("api logs = %d, want 1", len(logs))
	}
	if logs[0].Path != "/api/health" || logs[0].RequestID == "" {
		t.Errorf("unexpected log entry: %+v", logs[0])
	}
}

func TestListProposalsIncludesROI(t *testing.T) {
	s, store := newTestServer(t, config.APIConfig{})

	p := &types.AutomationProposal{
		ID: "p1", TenantID: "t1", Title: "Automate export",
		Description: "desc", Category: types.CategoryManualReport,
		CurrentTimeMinutes: 5, FrequencyPerWeek: 12, EstimatedDevHours: 8,
		Status: types.StatusProposed, ProposedAt: time.Now().UTC(),
	}
	if err := store.StoreAutomationProposals(context.Background(), []*types.AutomationProposal{p}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	w := doJSON(t, s, http.MethodGet, "/api/proposals", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode(t, w)
	list := body["proposals"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("proposals = %d, want 1", len(list))
	}
	entry := list[0].(map[string]interface{})
	want := 5.0 / 60 * 12 * 4.33
	if roi := entry["roi_hours_per_month"].(float64); fmt.Sprintf("%.4f", roi) != fmt.Sprintf("%.4f", want) {
		t.Errorf("roi = %v, want %v", roi, want)
	}
}
