package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreHealthChecks appends one rover run's component snapshots
func (s *PostgresStorage) StoreHealthChecks(ctx context.Context, checks []*types.HealthCheck) error {
	if len(checks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

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

		if _, err := tx.Exec(ctx, `
			INSERT INTO system_health_checks (
				id, component, status, metrics, anomalies, suggestions, checked_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			c.ID, c.Component, c.Status, metricsJSON, anomaliesJSON, suggestionsJSON, c.CheckedAt,
		); err != nil {
			return fmt.Errorf("failed to store health check (component=%s): %w", c.Component, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit health checks: %w", err)
	}
	return nil
}

// GetRecentHealthChecks retrieves the most recent component snapshots
func (s *PostgresStorage) GetRecentHealthChecks(ctx context.Context, limit int) ([]*types.HealthCheck, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, component, status, metrics, anomalies, suggestions, checked_at
		FROM system_health_checks
		ORDER BY checked_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query health checks: %w", err)
	}
	defer rows.Close()

	var result []*types.HealthCheck
	for rows.Next() {
		var c types.HealthCheck
		var metricsJSON, anomaliesJSON, suggestionsJSON []byte

		if err := rows.Scan(
			&c.ID, &c.Component, &c.Status, &metricsJSON, &anomaliesJSON, &suggestionsJSON, &c.CheckedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan health check: %w", err)
		}
		if err := json.Unmarshal(metricsJSON, &c.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal health metrics (id=%s): %w", c.ID, err)
		}
		if err := json.Unmarshal(anomaliesJSON, &c.Anomalies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal anomalies (id=%s): %w", c.ID, err)
		}
		if err := json.Unmarshal(suggestionsJSON, &c.Suggestions); err != nil {
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
func (s *PostgresStorage) StoreCostRecord(ctx context.Context, record *types.CostRecord) error {
	usageJSON, err := json.Marshal(record.UsageMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal usage metrics: %w", err)
	}
	alertsJSON, err := json.Marshal(record.Alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal cost alerts: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cost_tracking (
			id, service, period_start, period_end, actual_cost,
			projected_cost, budget, usage_metrics, alerts, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		record.ID, record.Service, record.PeriodStart, record.PeriodEnd, record.ActualCost,
		record.ProjectedCost, record.Budget, usageJSON, alertsJSON, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cost record (service=%s): %w", record.Service, err)
	}
	return nil
}

// GetCostRecords retrieves snapshots recorded after since, most recent first
func (s *PostgresStorage) GetCostRecords(ctx context.Context, since time.Time, limit int) ([]*types.CostRecord, error) {
	var sinceArg interface{}
	if !since.IsZero() {
		sinceArg = since
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, service, period_start, period_end, actual_cost,
		       projected_cost, budget, usage_metrics, alerts, recorded_at
		FROM cost_tracking
		WHERE ($1::timestamptz IS NULL OR recorded_at > $1)
		ORDER BY recorded_at DESC
		LIMIT $2
	`, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var result []*types.CostRecord
	for rows.Next() {
		var r types.CostRecord
		var usageJSON, alertsJSON []byte

		if err := rows.Scan(
			&r.ID, &r.Service, &r.PeriodStart, &r.PeriodEnd, &r.ActualCost,
			&r.ProjectedCost, &r.Budget, &usageJSON, &alertsJSON, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cost record: %w", err)
		}
		if err := json.Unmarshal(usageJSON, &r.UsageMetrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage metrics (id=%s): %w", r.ID, err)
		}
		if err := json.Unmarshal(alertsJSON, &r.Alerts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cost alerts (id=%s): %w", r.ID, err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cost records: %w", err)
	}
	return result, nil
}

// StoreKnowledgeItems appends a batch of harvested knowledge
func (s *PostgresStorage) StoreKnowledgeItems(ctx context.Context, items []*types.KnowledgeItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range items {
		tagsJSON, err := json.Marshal(item.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags (id=%s): %w", item.ID, err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO knowledge_base (
				id, category, title, content, source, source_id,
				tags, confidence, harvested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			item.ID, item.Category, item.Title, item.Content, item.Source, item.SourceID,
			tagsJSON, item.Confidence, item.HarvestedAt,
		); err != nil {
			return fmt.Errorf("failed to store knowledge item %q: %w", item.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit knowledge items: %w", err)
	}
	return nil
}

// SearchKnowledge does a case-insensitive substring match over title and
// content, most recent first
func (s *PostgresStorage) SearchKnowledge(ctx context.Context, query string, limit int) ([]*types.KnowledgeItem, error) {
	if limit <= 0 {
		limit = 100
	}
	pattern := "%" + query + "%"

	rows, err := s.pool.Query(ctx, `
		SELECT id, category, title, content, source, source_id,
		       tags, confidence, harvested_at
		FROM knowledge_base
		WHERE title ILIKE $1 OR content ILIKE $1
		ORDER BY harvested_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge base: %w", err)
	}
	defer rows.Close()

	var result []*types.KnowledgeItem
	for rows.Next() {
		var item types.KnowledgeItem
		var tagsJSON []byte

		if err := rows.Scan(
			&item.ID, &item.Category, &item.Title, &item.Content, &item.Source, &item.SourceID,
			&tagsJSON, &item.Confidence, &item.HarvestedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge item: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags (id=%s): %w", item.ID, err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating knowledge items: %w", err)
	}
	return result, nil
}

// StoreBuildLearnings appends a batch of extracted build learnings
func (s *PostgresStorage) StoreBuildLearnings(ctx context.Context, learnings []*types.BuildLearning) error {
	if len(learnings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range learnings {
		if _, err := tx.Exec(ctx, `
			INSERT INTO build_learnings (
				id, build_id, module_type, learning_type, description,
				confidence, learned_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			l.ID, l.BuildID, l.ModuleType, l.LearningType, l.Description,
			l.Confidence, l.LearnedAt,
		); err != nil {
			return fmt.Errorf("failed to store build learning (build=%s): %w", l.BuildID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit build learnings: %w", err)
	}
	return nil
}

// GetBuildLearnings retrieves learnings recorded after since, most recent
// first
func (s *PostgresStorage) GetBuildLearnings(ctx context.Context, since time.Time, limit int) ([]*types.BuildLearning, error) {
	var sinceArg interface{}
	if !since.IsZero() {
		sinceArg = since
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, build_id, module_type, learning_type, description,
		       confidence, learned_at
		FROM build_learnings
		WHERE ($1::timestamptz IS NULL OR learned_at > $1)
		ORDER BY learned_at DESC
		LIMIT $2
	`, sinceArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query build learnings: %w", err)
	}
	defer rows.Close()

	var result []*types.BuildLearning
	for rows.Next() {
		var l types.BuildLearning
		if err := rows.Scan(
			&l.ID, &l.BuildID, &l.ModuleType, &l.LearningType, &l.Description,
			&l.Confidence, &l.LearnedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan build learning: %w", err)
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating build learnings: %w", err)
	}
	return result, nil
}

// UpsertTrustCertificate stores a certificate, replacing any prior
// certificate for the same build
func (s *PostgresStorage) UpsertTrustCertificate(ctx context.Context, cert *types.TrustCertificate) error {
	evidenceJSON, err := json.Marshal(cert.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate evidence: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trust_certificates (
			build_id, module, version, trust_score, evidence,
			gates_passed, gates_total, tests_passed, tests_total,
			security_score, performance_score, certified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (build_id) DO UPDATE SET
			module = EXCLUDED.module,
			version = EXCLUDED.version,
			trust_score = EXCLUDED.trust_score,
			evidence = EXCLUDED.evidence,
			gates_passed = EXCLUDED.gates_passed,
			gates_total = EXCLUDED.gates_total,
			tests_passed = EXCLUDED.tests_passed,
			tests_total = EXCLUDED.tests_total,
			security_score = EXCLUDED.security_score,
			performance_score = EXCLUDED.performance_score,
			certified_at = EXCLUDED.certified_at
	`,
		cert.BuildID, cert.Module, cert.Version, cert.TrustScore, evidenceJSON,
		cert.GatesPassed, cert.GatesTotal, cert.TestsPassed, cert.TestsTotal,
		cert.SecurityScore, cert.PerformanceScore, cert.CertifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trust certificate (build=%s): %w", cert.BuildID, err)
	}
	return nil
}

// GetTrustCertificate retrieves the certificate for a build, or nil if the
// build has never been certified
func (s *PostgresStorage) GetTrustCertificate(ctx context.Context, buildID string) (*types.TrustCertificate, error) {
	var cert types.TrustCertificate
	var evidenceJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT build_id, module, version, trust_score, evidence,
		       gates_passed, gates_total, tests_passed, tests_total,
		       security_score, performance_score, certified_at
		FROM trust_certificates
		WHERE build_id = $1
	`, buildID).Scan(
		&cert.BuildID, &cert.Module, &cert.Version, &cert.TrustScore, &evidenceJSON,
		&cert.GatesPassed, &cert.GatesTotal, &cert.TestsPassed, &cert.TestsTotal,
		&cert.SecurityScore, &cert.PerformanceScore, &cert.CertifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trust certificate (build=%s): %w", buildID, err)
	}

	if err := json.Unmarshal(evidenceJSON, &cert.Evidence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate evidence (build=%s): %w", buildID, err)
	}
	return &cert, nil
}
