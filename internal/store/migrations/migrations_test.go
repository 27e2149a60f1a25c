package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp(t *testing.T) {
	db := newTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	// All tables from the schema must exist.
	for _, table := range []string{"backup_records", "backup_files", "operations", "scheduled_deployments"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrateUp_idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v, want nil (no change)", err)
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fails on an unmigrated database", func(t *testing.T) {
		db := newTestDB(t)
		if err := CheckDBMigrationStatus(db); err == nil {
			t.Error("CheckDBMigrationStatus() error = nil for empty database, want error")
		}
	})

	t.Run("passes after migration", func(t *testing.T) {
		db := newTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}
		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() error = %v, want nil", err)
		}
	})
}
