// Package testing provides testing utilities and helpers for the pipeline.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/trinistocks/pipeline/internal/database"
)

// NewTestDB creates a file-backed SQLite database with every migration
// applied. Each call gets its own temporary file so tests stay isolated.
// The cleanup function is idempotent and is also registered with t.Cleanup.
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	conn, err := sql.Open("sqlite3", tmpPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to open test database %s: %v", name, err)
	}
	conn.SetMaxOpenConns(1)

	db, err := database.Wrap(conn, "sqlite3", name)
	if err != nil {
		_ = conn.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to wrap test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
	t.Cleanup(cleanup)
	return db, cleanup
}
