package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreKnowledgeItems appends a batch of harvested knowledge
func (s *SQLiteStorage) StoreKnowledgeItems(ctx context.Context, items []*types.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO knowledge_base (
			id, category, title, content, source, source_id,
			tags, confidence, harvested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		tagsJSON, err := json.Marshal(item.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags (id=%s): %w", item.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			item.ID,
			item.Category,
			item.Title,
			item.Content,
			item.Source,
			item.SourceID,
			string(tagsJSON),
			item.Confidence,
			item.HarvestedAt,
		); err != nil {
			return fmt.Errorf("failed to store knowledge item %q: %w", item.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit knowledge items: %w", err)
	}
	return nil
}

// SearchKnowledge does a case-insensitive substring match over title and
// content, most recent first
func (s *SQLiteStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*types.KnowledgeItem, error) {
	sqlQuery := `
		SELECT id, category, title, content, source, source_id,
		       tags, confidence, harvested_at
		FROM knowledge_base
		WHERE title LIKE ? COLLATE NOCASE OR content LIKE ? COLLATE NOCASE
		ORDER BY harvested_at DESC
	`
	pattern := "%" + query + "%"
	args := []interface{}{pattern, pattern}

	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	defer rows.Close()

	var result []*types.KnowledgeItem
	for rows.Next() {
		var item types.KnowledgeItem
		var tagsJSON string

		if err := rows.Scan(
			&item.ID,
			&item.Category,
			&item.Title,
			&item.Content,
			&item.Source,
			&item.SourceID,
			&tagsJSON,
			&item.Confidence,
			&item.HarvestedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item: %w", err)
		}

		if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags (id=%s): %w", item.ID, err)
		}

		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge items: %w", err)
	}
	return result, nil
}
