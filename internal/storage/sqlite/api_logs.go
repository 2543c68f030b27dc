package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreAPILog appends one request observation
func (s *SQLiteStorage) StoreAPILog(ctx context.Context, entry *types.APILogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_logs (
			id, path, method, status_code, duration_ms,
			tenant_id, request_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.Path,
		entry.Method,
		entry.StatusCode,
		entry.DurationMs,
		entry.TenantID,
		entry.RequestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store api log (path=%s): %w", entry.Path, err)
	}
	return nil
}

// GetAPILogs retrieves request observations after since, most recent first
func (s *SQLiteStorage) GetAPILogs(ctx context.Context, since time.Time, limit int) ([]*types.APILogEntry, error) {
	query := `
		SELECT id, path, method, status_code, duration_ms,
		       tenant_id, request_id, created_at
		FROM api_logs
		WHERE 1=1
	`
	args := []interface{}{}

	if !since.IsZero() {
		query += " AND created_at > ?"
		args = append(args, since)
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query api logs: %w", err)
	}
	defer rows.Close()

	var result []*types.APILogEntry
	for rows.Next() {
		var e types.APILogEntry
		if err := rows.Scan(
			&e.ID,
			&e.Path,
			&e.Method,
			&e.StatusCode,
			&e.DurationMs,
			&e.TenantID,
			&e.RequestID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan api log: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating api logs: %w", err)
	}
	return result, nil
}
