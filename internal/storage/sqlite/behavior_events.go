package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/events"
)

// StoreBehaviorEvents appends a batch of behavior events in one transaction.
// The batch is all-or-nothing so a partially written flush never surfaces.
func (s *SQLiteStorage) StoreBehaviorEvents(ctx context.Context, evts []*events.BehaviorEvent) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO behavior_events (
			id, session_id, tenant_id, user_id, event_type,
			screen, element, metadata, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range evts {
		metaJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata (id=%s): %w", ev.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			ev.ID,
			ev.SessionID,
			ev.TenantID,
			ev.UserID,
			ev.Type,
			ev.Screen,
			ev.Element,
			string(metaJSON),
			ev.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to store behavior event (type=%s, session=%s): %w", ev.Type, ev.SessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit behavior events: %w", err)
	}
	return nil
}

// GetBehaviorEvents retrieves events matching the given filter
func (s *SQLiteStorage) GetBehaviorEvents(ctx context.Context, filter events.Filter) ([]*events.BehaviorEvent, error) {
	query := `
		SELECT id, session_id, tenant_id, user_id, event_type,
		       screen, element, metadata, timestamp
		FROM behavior_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Type != "" {
		query += " AND event_type = ?"
		args = append(args, filter.Type)
	}
	if filter.Screen != "" {
		query += " AND screen = ?"
		args = append(args, filter.Screen)
	}
	if !filter.After.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.After)
	}
	if !filter.Before.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.Before)
	}

	if filter.Ascending {
		query += " ORDER BY timestamp ASC"
	} else {
		query += " ORDER BY timestamp DESC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer rows.Close()

	return scanBehaviorEvents(rows)
}

func scanBehaviorEvents(rows *sql.Rows) ([]*events.BehaviorEvent, error) {
	var result []*events.BehaviorEvent
	for rows.Next() {
		var ev events.BehaviorEvent
		var metaJSON string

		if err := rows.Scan(
			&ev.ID,
			&ev.SessionID,
			&ev.TenantID,
			&ev.UserID,
			&ev.Type,
			&ev.Screen,
			&ev.Element,
			&metaJSON,
			&ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan behavior event: %w", err)
		}

		if err := json.Unmarshal([]byte(metaJSON), &ev.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event metadata (id=%s): %w", ev.ID, err)
		}

		result = append(result, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating behavior events: %w", err)
	}
	return result, nil
}

// PruneBehaviorEvents deletes up to limit events older than cutoff
func (s *SQLiteStorage) PruneBehaviorEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM behavior_events
		WHERE id IN (
			SELECT id FROM behavior_events
			WHERE timestamp < ?
			ORDER BY timestamp
			LIMIT ?
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune behavior events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return deleted, nil
}
