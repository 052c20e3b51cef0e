// Package testing provides test helpers shared across packages.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/database"
)

// NewTestDB opens a migrated runs database in a per-test temporary directory.
// The database is closed automatically when the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()
	return newTestDB(t, filepath.Join(t.TempDir(), "runs.db"), database.ProfileStandard)
}

// NewTestDBAt opens a migrated runs database at path using the given profile.
// Use it when the test also needs the surrounding directory (disk usage, artifacts).
func NewTestDBAt(t *testing.T, path string, profile database.DatabaseProfile) *database.DB {
	t.Helper()
	return newTestDB(t, path, profile)
}

func newTestDB(t *testing.T, path string, profile database.DatabaseProfile) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    "runs",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
	})
	return db
}
