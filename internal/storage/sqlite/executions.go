package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// RecordAgentExecution writes the audit row for one completed agent run
func (s *SQLiteStorage) RecordAgentExecution(ctx context.Context, exec *types.AgentExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_executions (
			id, agent_name, status, output_summary, items_processed,
			duration_ms, ai_tokens_used, error, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		exec.ID,
		exec.AgentName,
		exec.Status,
		exec.OutputSummary,
		exec.ItemsProcessed,
		exec.DurationMs,
		exec.AITokensUsed,
		exec.Error,
		exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record agent execution (agent=%s): %w", exec.AgentName, err)
	}
	return nil
}

// GetRecentAgentExecutions retrieves the most recent runs, optionally
// filtered to one agent
func (s *SQLiteStorage) GetRecentAgentExecutions(ctx context.Context, agentName string, limit int) ([]*types.AgentExecution, error) {
	query := `
		SELECT id, agent_name, status, output_summary, items_processed,
		       duration_ms, ai_tokens_used, error, completed_at
		FROM agent_executions
		WHERE 1=1
	`
	args := []interface{}{}

	if agentName != "" {
		query += " AND agent_name = ?"
		args = append(args, agentName)
	}

	query += " ORDER BY completed_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent executions: %w", err)
	}
	defer rows.Close()

	var result []*types.AgentExecution
	for rows.Next() {
		var e types.AgentExecution
		if err := rows.Scan(
			&e.ID,
			&e.AgentName,
			&e.Status,
			&e.OutputSummary,
			&e.ItemsProcessed,
			&e.DurationMs,
			&e.AITokensUsed,
			&e.Error,
			&e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agent execution: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent executions: %w", err)
	}
	return result, nil
}

// SumAITokensUsed totals oracle token usage across all runs since the given
// time. The cost watcher uses this for month-to-date spend.
func (s *SQLiteStorage) SumAITokensUsed(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ai_tokens_used), 0)
		FROM agent_executions
		WHERE completed_at > ?
	`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum AI tokens: %w", err)
	}
	return total, nil
}
