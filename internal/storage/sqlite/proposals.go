package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreAutomationProposals persists a batch of scout proposals
func (s *SQLiteStorage) StoreAutomationProposals(ctx context.Context, proposals []*types.AutomationProposal) error {
	if len(proposals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO automation_proposals (
			id, tenant_id, title, description, category,
			current_time_minutes, frequency_per_week, estimated_dev_hours,
			status, proposed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range proposals {
		if _, err := stmt.ExecContext(ctx,
			p.ID,
			p.TenantID,
			p.Title,
			p.Description,
			p.Category,
			p.CurrentTimeMinutes,
			p.FrequencyPerWeek,
			p.EstimatedDevHours,
			p.Status,
			p.ProposedAt,
		); err != nil {
			return fmt.Errorf("failed to store proposal %q: %w", p.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit proposals: %w", err)
	}
	return nil
}

// GetAutomationProposals retrieves proposals created after since, most
// recent first
func (s *SQLiteStorage) GetAutomationProposals(ctx context.Context, since time.Time, limit int) ([]*types.AutomationProposal, error) {
	query := `
		SELECT id, tenant_id, title, description, category,
		       current_time_minutes, frequency_per_week, estimated_dev_hours,
		       status, proposed_at
		FROM automation_proposals
		WHERE 1=1
	`
	args := []interface{}{}

	if !since.IsZero() {
		query += " AND proposed_at > ?"
		args = append(args, since)
	}

	query += " ORDER BY proposed_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query proposals: %w", err)
	}
	defer rows.Close()

	var result []*types.AutomationProposal
	for rows.Next() {
		var p types.AutomationProposal
		if err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.Title,
			&p.Description,
			&p.Category,
			&p.CurrentTimeMinutes,
			&p.FrequencyPerWeek,
			&p.EstimatedDevHours,
			&p.Status,
			&p.ProposedAt,
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
