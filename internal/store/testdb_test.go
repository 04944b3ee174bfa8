package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/pantry/internal/database"
)

var testNow = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
