package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var testMigrations = []Migration{
	{
		Version:     1,
		Description: "create session_notes",
		Up: `
			CREATE TABLE session_notes (
				id INTEGER PRIMARY KEY,
				body TEXT NOT NULL
			)
		`,
		Down: `DROP TABLE session_notes`,
	},
	{
		Version:     2,
		Description: "index session_notes body",
		Up:          `CREATE INDEX idx_session_notes_body ON session_notes(body)`,
		Down:        `DROP INDEX idx_session_notes_body`,
	},
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=ON")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func version(t *testing.T, db *sql.DB) int {
	t.Helper()
	v, err := sqliteVersion(db)
	if err != nil {
		t.Fatalf("failed to read version: %v", err)
	}
	return v
}

func TestApplySQLite(t *testing.T) {
	db := openDB(t)
	m := NewManager(testMigrations...)

	if err := m.ApplySQLite(db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	if v := version(t, db); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}

	// Migrated table is usable
	if _, err := db.Exec("INSERT INTO session_notes (id, body) VALUES (1, 'note')"); err != nil {
		t.Fatalf("migrated table not created: %v", err)
	}
}

func TestApplySQLiteIsIdempotent(t *testing.T) {
	db := openDB(t)
	m := NewManager(testMigrations...)

	if err := m.ApplySQLite(db); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if err := m.ApplySQLite(db); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if v := version(t, db); v != 2 {
		t.Errorf("expected version 2 after re-apply, got %d", v)
	}
}

func TestApplySQLiteSortsVersions(t *testing.T) {
	db := openDB(t)

	// Registered out of order: the index migration depends on the table
	m := NewManager(testMigrations[1])
	m.Register(testMigrations[0])

	if err := m.ApplySQLite(db); err != nil {
		t.Fatalf("failed to apply out-of-order migrations: %v", err)
	}
	if v := version(t, db); v != 2 {
		t.Errorf("expected version 2, got %d", v)
	}
}

func TestRollbackSQLite(t *testing.T) {
	db := openDB(t)
	m := NewManager(testMigrations...)

	if err := m.ApplySQLite(db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	if err := m.RollbackSQLite(db); err != nil {
		t.Fatalf("failed to roll back: %v", err)
	}
	if v := version(t, db); v != 1 {
		t.Errorf("expected version 1 after rollback, got %d", v)
	}

	if err := m.RollbackSQLite(db); err != nil {
		t.Fatalf("failed to roll back to empty: %v", err)
	}
	if v := version(t, db); v != 0 {
		t.Errorf("expected version 0, got %d", v)
	}
	if _, err := db.Exec("INSERT INTO session_notes (id, body) VALUES (1, 'note')"); err == nil {
		t.Error("expected table to be dropped after rollback")
	}

	if err := m.RollbackSQLite(db); err == nil {
		t.Error("expected error rolling back an empty database")
	}
}

func TestApplySQLiteFailedMigrationRecordsNothing(t *testing.T) {
	db := openDB(t)
	m := NewManager(testMigrations[0], Migration{
		Version:     2,
		Description: "broken",
		Up:          `CREATE TABLE`,
	})

	if err := m.ApplySQLite(db); err == nil {
		t.Fatal("expected broken migration to fail")
	}
	// The failed step must not advance the version
	if v := version(t, db); v != 1 {
		t.Errorf("expected version 1 after failed step, got %d", v)
	}
}
