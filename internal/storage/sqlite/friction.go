package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreFrictionEvents persists a batch of detected friction incidents
func (s *SQLiteStorage) StoreFrictionEvents(ctx context.Context, frictions []*types.FrictionEvent) error {
	if len(frictions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO friction_events (
			id, tenant_id, user_id, friction_type, severity,
			screen, element, count, details, suggested_fix, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frictions {
		detailsJSON, err := json.Marshal(f.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal friction details (id=%s): %w", f.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			f.ID,
			f.TenantID,
			f.UserID,
			f.FrictionType,
			f.Severity,
			f.Screen,
			f.Element,
			f.Count,
			string(detailsJSON),
			f.SuggestedFix,
			f.DetectedAt,
		); err != nil {
			return fmt.Errorf("failed to store friction event (type=%s): %w", f.FrictionType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit friction events: %w", err)
	}
	return nil
}

// GetFrictionEvents retrieves friction events matching the filter, most
// recent first
func (s *SQLiteStorage) GetFrictionEvents(ctx context.Context, filter types.FrictionFilter) ([]*types.FrictionEvent, error) {
	query := `
		SELECT id, tenant_id, user_id, friction_type, severity,
		       screen, element, count, details, suggested_fix, detected_at
		FROM friction_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.Type != "" {
		query += " AND friction_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.Since.IsZero() {
		query += " AND detected_at > ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY detected_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query friction events: %w", err)
	}
	defer rows.Close()

	var result []*types.FrictionEvent
	for rows.Next() {
		var f types.FrictionEvent
		var detailsJSON string

		if err := rows.Scan(
			&f.ID,
			&f.TenantID,
			&f.UserID,
			&f.FrictionType,
			&f.Severity,
			&f.Screen,
			&f.Element,
			&f.Count,
			&detailsJSON,
			&f.SuggestedFix,
			&f.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan friction event: %w", err)
		}

		if err := json.Unmarshal([]byte(detailsJSON), &f.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal friction details (id=%s): %w", f.ID, err)
		}

		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating friction events: %w", err)
	}
	return result, nil
}
