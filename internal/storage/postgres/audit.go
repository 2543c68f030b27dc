package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// RecordAgentExecution writes the audit row for one completed agent run
func (s *PostgresStorage) RecordAgentExecution(ctx context.Context, exec *types.AgentExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_executions (
			id, agent_name, status, output_summary, items_processed,
			duration_ms, ai_tokens_used, error, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		exec.ID, exec.AgentName, exec.Status, exec.OutputSummary, exec.ItemsProcessed,
		exec.DurationMs, exec.AITokensUsed, exec.Error, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record agent execution (agent=%s): %w", exec.AgentName, err)
	}
	return nil
}

// GetRecentAgentExecutions retrieves the most recent runs, optionally
// filtered to one agent
func (s *PostgresStorage) GetRecentAgentExecutions(ctx context.Context, agentName string, limit int) ([]*types.AgentExecution, error) {
	if limit <= 0 {
		limit = 100
	}
	var nameArg interface{}
	if agentName != "" {
		nameArg = agentName
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_name, status, output_summary, items_processed,
		       duration_ms, ai_tokens_used, error, completed_at
		FROM agent_executions
		WHERE ($1::text IS NULL OR agent_name = $1)
		ORDER BY completed_at DESC
		LIMIT $2
	`, nameArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent executions: %w", err)
	}
	defer rows.Close()

	var result []*types.AgentExecution
	for rows.Next() {
		var e types.AgentExecution
		if err := rows.Scan(
			&e.ID, &e.AgentName, &e.Status, &e.OutputSummary, &e.ItemsProcessed,
			&e.DurationMs, &e.AITokensUsed, &e.Error, &e.CompletedAt,
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
// time
func (s *PostgresStorage) SumAITokensUsed(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(ai_tokens_used), 0)
		FROM agent_executions
		WHERE completed_at > $1
	`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum AI tokens: %w", err)
	}
	return total, nil
}

// StoreAPILog appends one request observation
func (s *PostgresStorage) StoreAPILog(ctx context.Context, entry *types.APILogEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_logs (
			id, path, method, status_code, duration_ms,
			tenant_id, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID, entry.Path, entry.Method, entry.StatusCode, entry.DurationMs,
		entry.TenantID, entry.RequestID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store api log (path=%s): %w", entry.Path, err)
	}
	return nil
}

// GetAPILogs retrieves request observations after since, most recent first
func (s *PostgresStorage) GetAPILogs(ctx context.Context, since time.Time, limit int) ([]*types.APILogEntry, error) {
	var sinceArg interface{}
	if !since.IsZero() {
		sinceArg = since
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, path, method, status_code, duration_ms,
		       tenant_id, request_id, created_at
		FROM api_logs
		WHERE ($1::timestamptz IS NULL OR created_at > $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query api logs: %w", err)
	}
	defer rows.Close()

	var result []*types.APILogEntry
	for rows.Next() {
		var e types.APILogEntry
		if err := rows.Scan(
			&e.ID, &e.Path, &e.Method, &e.StatusCode, &e.DurationMs,
			&e.TenantID, &e.RequestID, &e.CreatedAt,
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
