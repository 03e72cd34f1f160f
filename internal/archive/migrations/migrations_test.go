package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUpFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{
		"content", "directory", "directory_entry",
		"revision", "release", "snapshot", "snapshot_branch",
		"origin", "origin_visit", "origin_visit_status",
		"extid", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatusFreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// A fresh database has no schema version yet.
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatusAfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestCheckDBMigrationStatusDirtyDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatalf("Failed to mark schema dirty: %v", err)
	}

	if err := CheckDBMigrationStatus(db); err == nil {
		t.Error("CheckDBMigrationStatus() expected error for dirty database, got nil")
	}
}

func TestMigrateUpIdempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// A directory entry must reference an existing directory row.
	_, err := db.Exec(`
		INSERT INTO directory_entry (directory_id, name, type, perms, target, rank)
		VALUES ('absent-dir', 'README', 'file', 33188, 'some-target', 0)
	`)

	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchemaVisitStatusSeq(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if _, err := db.Exec("INSERT INTO origin (url) VALUES ('https://example.org/pkg')"); err != nil {
		t.Fatalf("Failed to insert origin: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO origin_visit (origin, visit, type, date)
		VALUES ('https://example.org/pkg', 1, 'tar', '2023-01-02 03:04:05.000000000')
	`); err != nil {
		t.Fatalf("Failed to insert visit: %v", err)
	}

	// Status rows get monotonically increasing seq values.
	for _, status := range []string{"created", "ongoing", "full"} {
		if _, err := db.Exec(`
			INSERT INTO origin_visit_status (origin, visit, date, status)
			VALUES ('https://example.org/pkg', 1, '2023-01-02 03:04:05.000000000', ?)
		`, status); err != nil {
			t.Fatalf("Failed to insert status %q: %v", status, err)
		}
	}

	rows, err := db.Query("SELECT seq, status FROM origin_visit_status ORDER BY seq")
	if err != nil {
		t.Fatalf("Failed to query statuses: %v", err)
	}
	defer rows.Close()

	var lastSeq int64
	var count int
	for rows.Next() {
		var seq int64
		var status string
		if err := rows.Scan(&seq, &status); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if seq <= lastSeq {
			t.Errorf("seq %d not greater than previous %d", seq, lastSeq)
		}
		lastSeq = seq
		count++
	}
	if count != 3 {
		t.Errorf("Got %d status rows, want 3", count)
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}
