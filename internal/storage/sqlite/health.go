package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreHealthChecks appends one rover run's component snapshots
func (s *SQLiteStorage) StoreHealthChecks(ctx context.Context, checks []*types.HealthCheck) error {
	if len(checks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO system_health_checks (
			id, component, status, metrics, anomalies, suggestions, checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range checks {
		metricsJSON, err := json.Marshal(c.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal health metrics (component=%s): %w", c.Component, err)
		}
		anomaliesJSON, err := json.Marshal(c.Anomalies)
		if err != nil {
			return fmt.Errorf("failed to marshal anomalies (component=%s): %w", c.Component, err)
		}
		suggestionsJSON, err := json.Marshal(c.Suggestions)
		if err != nil {
			return fmt.Errorf("failed to marshal suggestions (component=%s): %w", c.Component, err)
		}

		if _, err := stmt.ExecContext(ctx,
			c.ID,
			c.Component,
			c.Status,
			string(metricsJSON),
			string(anomaliesJSON),
			string(suggestionsJSON),
			c.CheckedAt,
		); err != nil {
			return fmt.Errorf("failed to store health check (component=%s): %w", c.Component, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit health checks: %w", err)
	}
	return nil
}

// GetRecentHealthChecks retrieves the most recent component snapshots
func (s *SQLiteStorage) GetRecentHealthChecks(ctx context.Context, limit int) ([]*types.HealthCheck, error) {
	query := `
		SELECT id, component, status, metrics, anomalies, suggestions, checked_at
		FROM system_health_checks
		ORDER BY checked_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query health checks: %w", err)
	}
	defer rows.Close()

	var result []*types.HealthCheck
	for rows.Next() {
		var c types.HealthCheck
		var metricsJSON, anomaliesJSON, suggestionsJSON string

		if err := rows.Scan(
			&c.ID,
			&c.Component,
			&c.Status,
			&metricsJSON,
			&anomaliesJSON,
			&suggestionsJSON,
			&c.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan health check: %w", err)
		}

		if err := json.Unmarshal([]byte(metricsJSON), &c.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal health metrics (id=%s): %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(anomaliesJSON), &c.Anomalies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomalies (id=%s): %w", c.ID, err)
		}
		if err := json.Unmarshal([]byte(suggestionsJSON), &c.Suggestions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestions (id=%s): %w", c.ID, err)
		}

		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health checks: %w", err)
	}
	return result, nil
}

// StoreCostRecord appends one billing snapshot
func (s *SQLiteStorage) StoreCostRecord(ctx context.Context, record *types.CostRecord) error {
	usageJSON, err := json.Marshal(record.UsageMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal usage metrics: %w", err)
	}
	alertsJSON, err := json.Marshal(record.Alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal cost alerts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cost_tracking (
			id, service, period_start, period_end, actual_cost,
			projected_cost, budget, usage_metrics, alerts, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Service,
		record.PeriodStart,
		record.PeriodEnd,
		record.ActualCost,
		record.ProjectedCost,
		record.Budget,
		string(usageJSON),
		string(alertsJSON),
		record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cost record (service=%s): %w", record.Service, err)
	}
	return nil
}

// GetCostRecords retrieves snapshots recorded after since, most recent first
func (s *SQLiteStorage) GetCostRecords(ctx context.Context, since time.Time, limit int) ([]*types.CostRecord, error) {
	query := `
		SELECT id, service, period_start, period_end, actual_cost,
		       projected_cost, budget, usage_metrics, alerts, recorded_at
		FROM cost_tracking
		WHERE 1=1
	`
	args := []interface{}{}

	if !since.IsZero() {
		query += " AND recorded_at > ?"
		args = append(args, since)
	}

	query += " ORDER BY recorded_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var result []*types.CostRecord
	for rows.Next() {
		var r types.CostRecord
		var usageJSON, alertsJSON string

		if err := rows.Scan(
			&r.ID,
			&r.Service,
			&r.PeriodStart,
			&r.PeriodEnd,
			&r.ActualCost,
			&r.ProjectedCost,
			&r.Budget,
			&usageJSON,
			&alertsJSON,
			&r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}

		if err := json.Unmarshal([]byte(usageJSON), &r.UsageMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage metrics (id=%s): %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(alertsJSON), &r.Alerts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cost alerts (id=%s): %w", r.ID, err)
		}

		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost records: %w", err)
	}
	return result, nil
}
