package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNewDBAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "engine.db")

	db, err := NewDB(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"markers", "session_events"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}

	// A second open over the same file must be a no-op migration.
	again, err := NewDB(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}
