package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// UpsertProcessTraces stores mined traces, accumulating frequency when the
// same (tenant, variant) pair has been seen by a prior run. Timing fields and
// the diagram reflect the latest analysis; frequency is the running total.
func (s *SQLiteStorage) UpsertProcessTraces(ctx context.Context, traces []*types.ProcessTrace) error {
	if len(traces) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO process_traces (
			id, tenant_id, process_name, variant, steps, step_count,
			total_duration_ms, bottleneck_step, bottleneck_duration_ms,
			frequency, user_count, mermaid_diagram, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, variant) DO UPDATE SET
			frequency = frequency + excluded.frequency,
			user_count = excluded.user_count,
			total_duration_ms = excluded.total_duration_ms,
			bottleneck_step = excluded.bottleneck_step,
			bottleneck_duration_ms = excluded.bottleneck_duration_ms,
			mermaid_diagram = excluded.mermaid_diagram,
			analyzed_at = excluded.analyzed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range traces {
		stepsJSON, err := json.Marshal(t.Steps)
		if err != nil {
			return fmt.Errorf("failed to marshal trace steps (variant=%s): %w", t.Variant, err)
		}

		if _, err := stmt.ExecContext(ctx,
			t.ID,
			t.TenantID,
			t.ProcessName,
			t.Variant,
			string(stepsJSON),
			t.StepCount,
			t.TotalDurationMs,
			t.BottleneckStep,
			t.BottleneckDurationMs,
			t.Frequency,
			t.UserCount,
			t.MermaidDiagram,
			t.AnalyzedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert process trace (variant=%s): %w", t.Variant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit process traces: %w", err)
	}
	return nil
}

// GetProcessTraces retrieves traces analyzed after since, highest frequency
// first
func (s *SQLiteStorage) GetProcessTraces(ctx context.Context, since time.Time, limit int) ([]*types.ProcessTrace, error) {
	query := `
		SELECT id, tenant_id, process_name, variant, steps, step_count,
		       total_duration_ms, bottleneck_step, bottleneck_duration_ms,
		       frequency, user_count, mermaid_diagram, analyzed_at
		FROM process_traces
		WHERE 1=1
	`
	args := []interface{}{}

	if !since.IsZero() {
		query += " AND analyzed_at > ?"
		args = append(args, since)
	}

	query += " ORDER BY frequency DESC, analyzed_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query process traces: %w", err)
	}
	defer rows.Close()

	var result []*types.ProcessTrace
	for rows.Next() {
		var t types.ProcessTrace
		var stepsJSON string

		if err := rows.Scan(
			&t.ID,
			&t.TenantID,
			&t.ProcessName,
			&t.Variant,
			&stepsJSON,
			&t.StepCount,
			&t.TotalDurationMs,
			&t.BottleneckStep,
			&t.BottleneckDurationMs,
			&t.Frequency,
			&t.UserCount,
			&t.MermaidDiagram,
			&t.AnalyzedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan process trace: %w", err)
		}

		if err := json.Unmarshal([]byte(stepsJSON), &t.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace steps (id=%s): %w", t.ID, err)
		}

		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating process traces: %w", err)
	}
	return result, nil
}
