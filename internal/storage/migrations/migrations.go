// Package migrations versions the pipeline schema. Both storage backends
// apply their schema through a Manager, so a database created by an older
// build picks up new tables and indexes on upgrade instead of needing a
// rebuild.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one versioned schema step. Up and Down are complete SQL
// scripts in the dialect of the backend applying them.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Manager applies pending migrations in version order
type Manager struct {
	migrations []Migration
}

// NewManager creates a manager over the given migrations
func NewManager(migrations ...Migration) *Manager {
	m := &Manager{migrations: migrations}
	m.sort()
	return m
}

// Register adds a migration
func (m *Manager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
	m.sort()
}

func (m *Manager) sort() {
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// pending returns the migrations past the current version, in order
func (m *Manager) pending(current int) []Migration {
	var out []Migration
	for _, mig := range m.migrations {
		if mig.Version > current {
			out = append(out, mig)
		}
	}
	return out
}

func (m *Manager) byVersion(version int) (Migration, bool) {
	for _, mig := range m.migrations {
		if mig.Version == version {
			return mig, true
		}
	}
	return Migration{}, false
}

// SQLite backend (database/sql)

const sqliteVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// ApplySQLite brings a SQLite database up to the latest registered version
func (m *Manager) ApplySQLite(db *sql.DB) error {
	if _, err := db.Exec(sqliteVersionTable); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	current, err := sqliteVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, mig := range m.pending(current) {
		if err := applySQLite(db, mig); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Description, err)
		}
	}
	return nil
}

// RollbackSQLite reverts the most recently applied migration
func (m *Manager) RollbackSQLite(db *sql.DB) error {
	current, err := sqliteVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("nothing to roll back")
	}

	mig, ok := m.byVersion(current)
	if !ok {
		return fmt.Errorf("migration %d is not registered", current)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.Down); err != nil {
		return fmt.Errorf("failed to revert migration %d: %w", mig.Version, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_version WHERE version = ?", mig.Version); err != nil {
		return fmt.Errorf("failed to remove version record: %w", err)
	}
	return tx.Commit()
}

func sqliteVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func applySQLite(db *sql.DB, mig Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(mig.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		mig.Version, mig.Description, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}
	return tx.Commit()
}

// PostgreSQL backend (pgx pool)

const postgresVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ApplyPostgres brings a PostgreSQL database up to the latest registered version
func (m *Manager) ApplyPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresVersionTable); err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	current, err := postgresVersion(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, mig := range m.pending(current) {
		if err := applyPostgres(ctx, pool, mig); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Description, err)
		}
	}
	return nil
}

// RollbackPostgres reverts the most recently applied migration
func (m *Manager) RollbackPostgres(ctx context.Context, pool *pgxpool.Pool) error {
	current, err := postgresVersion(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("nothing to roll back")
	}

	mig, ok := m.byVersion(current)
	if !ok {
		return fmt.Errorf("migration %d is not registered", current)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, mig.Down); err != nil {
		return fmt.Errorf("failed to revert migration %d: %w", mig.Version, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM schema_version WHERE version = $1", mig.Version); err != nil {
		return fmt.Errorf("failed to remove version record: %w", err)
	}
	return tx.Commit(ctx)
}

func postgresVersion(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var version int
	err := pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func applyPostgres(ctx context.Context, pool *pgxpool.Pool, mig Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, mig.Up); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_version (version, description, applied_at) VALUES ($1, $2, $3)",
		mig.Version, mig.Description, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}
	return tx.Commit(ctx)
}
