package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lai-labs/spyglass/internal/types"
)

// StoreBuildLearnings appends a batch of extracted build learnings
func (s *SQLiteStorage) StoreBuildLearnings(ctx context.Context, learnings []*types.BuildLearning) error {
	if len(learnings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO build_learnings (
			id, build_id, module_type, learning_type, description,
			confidence, learned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range learnings {
		if _, err := stmt.ExecContext(ctx,
			l.ID,
			l.BuildID,
			l.ModuleType,
			l.LearningType,
			l.Description,
			l.Confidence,
			l.LearnedAt,
		); err != nil {
			return fmt.Errorf("failed to store build learning (build=%s): %w", l.BuildID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit build learnings: %w", err)
	}
	return nil
}

// GetBuildLearnings retrieves learnings recorded after since, most recent
// first
func (s *SQLiteStorage) GetBuildLearnings(ctx context.Context, since time.Time, limit int) ([]*types.BuildLearning, error) {
	query := `
		SELECT id, build_id, module_type, learning_type, description,
		       confidence, learned_at
		FROM build_learnings
		WHERE 1=1
	`
	args := []interface{}{}

	if !since.IsZero() {
		query += " AND learned_at > ?"
		args = append(args, since)
	}

	query += " ORDER BY learned_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query build learnings: %w", err)
	}
	defer rows.Close()

	var result []*types.BuildLearning
	for rows.Next() {
		var l types.BuildLearning
		if err := rows.Scan(
			&l.ID,
			&l.BuildID,
			&l.ModuleType,
			&l.LearningType,
			&l.Description,
			&l.Confidence,
			&l.LearnedAt,
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
func (s *SQLiteStorage) UpsertTrustCertificate(ctx context.Context, cert *types.TrustCertificate) error {
	evidenceJSON, err := json.Marshal(cert.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal certificate evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_certificates (
			build_id, module, version, trust_score, evidence,
			gates_passed, gates_total, tests_passed, tests_total,
			security_score, performance_score, certified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(build_id) DO UPDATE SET
			module = excluded.module,
			version = excluded.version,
			trust_score = excluded.trust_score,
			evidence = excluded.evidence,
			gates_passed = excluded.gates_passed,
			gates_total = excluded.gates_total,
			tests_passed = excluded.tests_passed,
			tests_total = excluded.tests_total,
			security_score = excluded.security_score,
			performance_score = excluded.performance_score,
			certified_at = excluded.certified_at
	`,
		cert.BuildID,
		cert.Module,
		cert.Version,
		cert.TrustScore,
		string(evidenceJSON),
		cert.GatesPassed,
		cert.GatesTotal,
		cert.TestsPassed,
		cert.TestsTotal,
		cert.SecurityScore,
		cert.PerformanceScore,
		cert.CertifiedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert trust certificate (build=%s): %w", cert.BuildID, err)
	}
	return nil
}

// GetTrustCertificate retrieves the certificate for a build, or nil if the
// build has never been certified
func (s *SQLiteStorage) GetTrustCertificate(ctx context.Context, buildID string) (*types.TrustCertificate, error) {
	var cert types.TrustCertificate
	var evidenceJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT build_id, module, version, trust_score, evidence,
		       gates_passed, gates_total, tests_passed, tests_total,
		       security_score, performance_score, certified_at
		FROM trust_certificates
		WHERE build_id = ?
	`, buildID).Scan(
		&cert.BuildID,
		&cert.Module,
		&cert.Version,
		&cert.TrustScore,
		&evidenceJSON,
		&cert.GatesPassed,
		&cert.GatesTotal,
		&cert.TestsPassed,
		&cert.TestsTotal,
		&cert.SecurityScore,
		&cert.PerformanceScore,
		&cert.CertifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trust certificate (build=%s): %w", buildID, err)
	}

	if err := json.Unmarshal([]byte(evidenceJSON), &cert.Evidence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal certificate evidence (build=%s): %w", buildID, err)
	}

	return &cert, nil
}
