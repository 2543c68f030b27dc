package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lai-labs/spyglass/internal/events"
)

// StoreBehaviorEvents appends a batch of behavior events in one transaction
func (s *PostgresStorage) StoreBehaviorEvents(ctx context.Context, evts []*events.BehaviorEvent) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range evts {
		metaJSON, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata (id=%s): %w", ev.ID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO behavior_events (
				id, session_id, tenant_id, user_id, event_type,
				screen, element, metadata, timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			ev.ID, ev.SessionID, ev.TenantID, ev.UserID, ev.Type,
			ev.Screen, ev.Element, metaJSON, ev.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to store behavior event (type=%s, session=%s): %w", ev.Type, ev.SessionID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit behavior events: %w", err)
	}
	return nil
}

// GetBehaviorEvents retrieves events matching the given filter
func (s *PostgresStorage) GetBehaviorEvents(ctx context.Context, filter events.Filter) ([]*events.BehaviorEvent, error) {
	query := `
		SELECT id, session_id, tenant_id, user_id, event_type,
		       screen, element, metadata, timestamp
		FROM behavior_events
		WHERE 1=1
	`
	args := []interface{}{}
	argN := 0
	arg := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if filter.SessionID != "" {
		query += " AND session_id = " + arg(filter.SessionID)
	}
	if filter.TenantID != "" {
		query += " AND tenant_id = " + arg(filter.TenantID)
	}
	if filter.UserID != "" {
		query += " AND user_id = " + arg(filter.UserID)
	}
	if filter.Type != "" {
		query += " AND event_type = " + arg(filter.Type)
	}
	if filter.Screen != "" {
		query += " AND screen = " + arg(filter.Screen)
	}
	if !filter.After.IsZero() {
		query += " AND timestamp > " + arg(filter.After)
	}
	if !filter.Before.IsZero() {
		query += " AND timestamp < " + arg(filter.Before)
	}

	if filter.Ascending {
		query += " ORDER BY timestamp ASC"
	} else {
		query += " ORDER BY timestamp DESC"
	}

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer rows.Close()

	return scanBehaviorEvents(rows)
}

func scanBehaviorEvents(rows pgx.Rows) ([]*events.BehaviorEvent, error) {
	var result []*events.BehaviorEvent
	for rows.Next() {
		var ev events.BehaviorEvent
		var metaJSON []byte

		if err := rows.Scan(
			&ev.ID, &ev.SessionID, &ev.TenantID, &ev.UserID, &ev.Type,
			&ev.Screen, &ev.Element, &metaJSON, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan behavior event: %w", err)
		}

		if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
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
func (s *PostgresStorage) PruneBehaviorEvents(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM behavior_events
		WHERE id IN (
			SELECT id FROM behavior_events
			WHERE timestamp < $1
			ORDER BY timestamp
			LIMIT $2
		)
	`, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to prune behavior events: %w", err)
	}
	return tag.RowsAffected(), nil
}
