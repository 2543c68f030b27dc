package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lai-labs/spyglass/internal/storage/sqlite"
	"github.com/lai-labs/spyglass/internal/types"
)

type stubAgent struct {
	name   string
	report *Report
	err    error
	panics bool
	runs   *[]string
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Run(ctx context.Context) (*Report, error) {
	if s.runs != nil {
		*s.runs = append(*s.runs, s.name)
	}
	if s.panics {
		panic("boom")
	}
	return s.report, s.err
}

func newTestRunner(t *testing.T) (*Runner, *sqlite.SQLiteStorage) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewRunner(store), store
}

func TestRunnerRecordsSuccess(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	exec, err := runner.Run(ctx, &stubAgent{
		name:   "friction_detector",
		report: &Report{Summary: "3 incidents", ItemsProcessed: 3, TokensUsed: 150},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if exec.Status != types.ExecutionSuccess {
		t.Errorf("expected success, got %s", exec.Status)
	}
	if exec.ItemsProcessed != 3 || exec.AITokensUsed != 150 {
		t.Errorf("report not captured: %+v", exec)
	}

	rows, err := store.GetRecentAgentExecutions(ctx, "friction_detector", 10)
	if err != nil {
		t.Fatalf("failed to read audit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0].OutputSummary != "3 incidents" {
		t.Errorf("summary not persisted: %+v", rows[0])
	}
}

func TestRunnerRecordsFailure(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	exec, err := runner.Run(ctx, &stubAgent{
		name: "process_miner",
		err:  errors.New("window query failed"),
	})
	if err == nil {
		t.Fatal("expected error from failing agent")
	}
	if exec.Status != types.ExecutionFailed {
		t.Errorf("expected failed status, got %s", exec.Status)
	}
	if exec.Error == "" {
		t.Error("expected error captured on audit row")
	}

	rows, err := store.GetRecentAgentExecutions(ctx, "process_miner", 10)
	if err != nil {
		t.Fatalf("failed to read audit: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != types.ExecutionFailed {
		t.Errorf("failure not persisted: %+v", rows)
	}
}

func TestRunnerSurvivesPanic(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	exec, err := runner.Run(ctx, &stubAgent{name: "health_rover", panics: true})
	if err == nil {
		t.Fatal("expected error from panicking agent")
	}
	if !strings.Contains(exec.Error, "panicked") {
		t.Errorf("panic not captured: %q", exec.Error)
	}

	rows, err := store.GetRecentAgentExecutions(ctx, "health_rover", 10)
	if err != nil {
		t.Fatalf("failed to read audit: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected audit row after panic, got %d", len(rows))
	}
}

func TestDispatcherRoutesActions(t *testing.T) {
	runner, store := newTestRunner(t)
	ctx := context.Background()

	var order []string
	d := NewDispatcher(runner, store)
	d.Register(&stubAgent{name: "friction_detector", report: &Report{Summary: "ok"}, runs: &order})
	d.Register(&stubAgent{name: "process_miner", err: errors.New("nope"), runs: &order})
	d.Register(&stubAgent{name: "automation_scout", report: &Report{Summary: "ok"}, runs: &order})

	t.Run("single agent", func(t *testing.T) {
		result, err := d.Dispatch(ctx, "run_friction_detector")
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if len(result.Executions) != 1 || result.Executions[0].AgentName != "friction_detector" {
			t.Errorf("unexpected result: %+v", result)
		}
	})

	t.Run("run_all continues past failures in order", func(t *testing.T) {
		order = nil
		result, err := d.Dispatch(ctx, "run_all")
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if len(result.Executions) != 3 {
			t.Fatalf("expected 3 executions, got %d", len(result.Executions))
		}
		want := []string{"friction_detector", "process_miner", "automation_scout"}
		for i, name := range want {
			if order[i] != name {
				t.Errorf("run order wrong at %d: got %s, want %s", i, order[i], name)
			}
		}
		if result.Executions[1].Status != types.ExecutionFailed {
			t.Errorf("expected middle agent failure recorded: %+v", result.Executions[1])
		}
	})

	t.Run("status returns history", func(t *testing.T) {
		result, err := d.Dispatch(ctx, "status")
		if err != nil {
			t.Fatalf("Dispatch failed: %v", err)
		}
		if len(result.Executions) == 0 {
			t.Error("expected execution history")
		}
	})

	t.Run("unknown action enumerates valid ones", func(t *testing.T) {
		_, err := d.Dispatch(ctx, "run_everything")
		if err == nil {
			t.Fatal("expected error for unknown action")
		}
		for _, want := range []string{"run_friction_detector", "run_all", "status"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error missing %q: %v", want, err)
			}
		}
	})
}
