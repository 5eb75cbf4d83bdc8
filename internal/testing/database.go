package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/courier/db"
)

// CreateTestDB creates a migrated SQLite database in a temp directory.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "courier.db"), zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
