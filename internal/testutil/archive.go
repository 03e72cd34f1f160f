package testutil

import (
	"testing"

	"ingot/internal/archive"
	"ingot/internal/loader"
	"ingot/internal/objstorage"
)

// NewTestArchive creates an in-memory archive for tests.
func NewTestArchive(t *testing.T) *archive.MemoryArchive {
	t.Helper()
	return archive.NewMemoryArchive()
}

// NewTestSQLiteArchive creates an in-memory SQLite archive with the schema
// migrated and payloads in a memory storage. The archive is closed when the
// test completes.
func NewTestSQLiteArchive(t *testing.T) loader.Archive {
	t.Helper()

	a, err := archive.NewSQLiteArchive(":memory:", objstorage.NewMemoryStorage())
	if err != nil {
		t.Fatalf("failed to open sqlite archive: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("failed to close archive: %v", err)
		}
	})
	return a
}
