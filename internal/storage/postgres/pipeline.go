package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreFrictionEvents persists a batch of detected friction incidents
func (s *PostgresStorage) StoreFrictionEvents(ctx context.Context, frictions []*types.FrictionEvent) error {
	if len(frictions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range frictions {
		detailsJSON, err := json.Marshal(f.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal friction details (id=%s): %w", f.ID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO friction_events (
				id, tenant_id, user_id, friction_type, severity,
				screen, element, count, details, suggested_fix, detected_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			f.ID, f.TenantID, f.UserID, f.FrictionType, f.Severity,
			f.Screen, f.Element, f.Count, detailsJSON, f.SuggestedFix, f.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to store friction event (type=%s): %w", f.FrictionType, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit friction events: %w", err)
	}
	return nil
}

// GetFrictionEvents retrieves friction events matching the filter
func (s *PostgresStorage) GetFrictionEvents(ctx context.Context, filter types.FrictionFilter) ([]*types.FrictionEvent, error) {
	query := `
		SELECT id, tenant_id, user_id, friction_type, severity,
		       screen, element, count, details, suggested_fix, detected_at
		FROM friction_events
		WHERE 1=1
	`
	args := []interface{}{}
	argN := 0
	arg := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if filter.TenantID != "" {
		query += " AND tenant_id = " + arg(filter.TenantID)
	}
	if filter.Type != "" {
		query += " AND friction_type = " + arg(filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(filter.Severity)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at > " + arg(filter.Since)
	}

	query += " ORDER BY detected_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friction events: %w", err)
	}
	defer rows.Close()

	var result []*types.FrictionEvent
	for rows.Next() {
		var f types.FrictionEvent
		var detailsJSON []byte

		if err := rows.Scan(
			&f.ID, &f.TenantID, &f.UserID, &f.FrictionType, &f.Severity,
			&f.Screen, &f.Element, &f.Count, &detailsJSON, &f.SuggestedFix, &f.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friction event: %w", err)
		}
		if err := json.Unmarshal(detailsJSON, &f.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal friction details (id=%s): %w", f.ID, err)
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friction events: %w", err)
	}
	return result, nil
}

// UpsertProcessTraces stores mined traces, accumulating frequency on
// (tenant, variant) conflicts
func (s *PostgresStorage) UpsertProcessTraces(ctx context.Context, traces []*types.ProcessTrace) error {
	if len(traces) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range traces {
		stepsJSON, err := json.Marshal(t.Steps)
		if err != nil {
			return fmt.Errorf("failed to marshal trace steps (variant=%s): %w", t.Variant, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO process_traces (
				id, tenant_id, process_name, variant, steps, step_count,
				total_duration_ms, bottleneck_step, bottleneck_duration_ms,
				frequency, user_count, mermaid_diagram, analyzed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (tenant_id, variant) DO UPDATE SET
				frequency = process_traces.frequency + EXCLUDED.frequency,
				user_count = EXCLUDED.user_count,
				total_duration_ms = EXCLUDED.total_duration_ms,
				bottleneck_step = EXCLUDED.bottleneck_step,
				bottleneck_duration_ms = EXCLUDED.bottleneck_duration_ms,
				mermaid_diagram = EXCLUDED.mermaid_diagram,
				analyzed_at = EXCLUDED.analyzed_at
		`,
			t.ID, t.TenantID, t.ProcessName, t.Variant, stepsJSON, t.StepCount,
			t.TotalDurationMs, t.BottleneckStep, t.BottleneckDurationMs,
			t.Frequency, t.UserCount, t.MermaidDiagram, t.AnalyzedAt,
		); err != nil {
			return fmt.Errorf("failed to upsert process trace (variant=%s): %w", t.Variant, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit process traces: %w", err)
	}
	return nil
}

// GetProcessTraces retrieves traces analyzed after since, highest frequency
// first
func (s *PostgresStorage) GetProcessTraces(ctx context.Context, since time.Time, limit int) ([]*types.ProcessTrace, error) {
	query := `
		SELECT id, tenant_id, process_name, variant, steps, step_count,
		       total_duration_ms, bottleneck_step, bottleneck_duration_ms,
		       frequency, user_count, mermaid_diagram, analyzed_at
		FROM process_traces
		WHERE ($1::timestamptz IS NULL OR analyzed_at > $1)
		ORDER BY frequency DESC, analyzed_at DESC
		LIMIT $2
	`
	var sinceArg interface{}
	if !since.IsZero() {
		sinceArg = since
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, query, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query process traces: %w", err)
	}
	defer rows.Close()

	var result []*types.ProcessTrace
	for rows.Next() {
		var t types.ProcessTrace
		var stepsJSON []byte

		if err := rows.Scan(
			&t.ID, &t.TenantID, &t.ProcessName, &t.Variant, &stepsJSON, &t.StepCount,
			&t.TotalDurationMs, &t.BottleneckStep, &t.BottleneckDurationMs,
			&t.Frequency, &t.UserCount, &t.MermaidDiagram, &t.AnalyzedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan process trace: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &t.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trace steps (id=%s): %w", t.ID, err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating process traces: %w", err)
	}
	return result, nil
}

// StoreAutomationProposals persists a batch of scout proposals
func (s *PostgresStorage) StoreAutomationProposals(ctx context.Context, proposals []*types.AutomationProposal) error {
	if len(proposals) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range proposals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO automation_proposals (
				id, tenant_id, title, description, category,
				current_time_minutes, frequency_per_week, estimated_dev_hours,
				status, proposed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			p.ID, p.TenantID, p.Title, p.Description, p.Category,
			p.CurrentTimeMinutes, p.FrequencyPerWeek, p.EstimatedDevHours,
			p.Status, p.ProposedAt,
		); err != nil {
			return fmt.Errorf("failed to store proposal %q: %w", p.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit proposals: %w", err)
	}
	return nil
}

// GetAutomationProposals retrieves proposals created after since, most
// recent first
func (s *PostgresStorage) GetAutomationProposals(ctx context.Context, since time.Time, limit int) ([]*types.AutomationProposal, error) {
	query := `
		SELECT id, tenant_id, title, description, category,
		       current_time_minutes, frequency_per_week, estimated_dev_hours,
		       status, proposed_at
		FROM automation_proposals
		WHERE ($1::timestamptz IS NULL OR proposed_at > $1)
		ORDER BY proposed_at DESC
		LIMIT $2
	`
	var sinceArg interface{}
	if !since.IsZero() {
		sinceArg = since
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, query, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var result []*types.AutomationProposal
	for rows.Next() {
		var p types.AutomationProposal
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Title, &p.Description, &p.Category,
			&p.CurrentTimeMinutes, &p.FrequencyPerWeek, &p.EstimatedDevHours,
			&p.Status, &p.ProposedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		result = append(result, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating proposals: %w", err)
	}
	return result, nil
}
