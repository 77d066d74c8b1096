package testfixtures

import (
	"path/filepath"
	"testing"

	"github.com/jojo-app/realtime-server-go/internal/database"
)

// NewSQLiteDB opens a migrated database backed by a temporary file. The
// connection is closed when the test finishes.
func NewSQLiteDB(tb testing.TB) *database.DB {
	tb.Helper()

	url := "sqlite://" + filepath.Join(tb.TempDir(), "jojo.db")

	if err := database.RunMigrations(url); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	db, err := database.Connect(url)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	tb.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
