package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/miradorstack/marker-engine/internal/models"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLiteStore(ctx, filepath.Join(t.TempDir(), "markers.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.Upsert(ctx, sampleMarkers()...); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	updated := &models.Marker{ID: "S_B", SchemaID: "work", Examples: []string{"b", "bb"}}
	if err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if err := store.Delete(ctx, "MM_X"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if diff := cmp.Diff([]string{"A_A", "C_AB", "S_B"}, ids(all)); diff != "" {
		t.Fatalf("unexpected ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(updated, all[2], cmpopts.IgnoreUnexported(models.Marker{})); diff != "" {
		t.Fatalf("updated marker mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreReloadFromSQLite(t *testing.T) {
	ctx := context.Background()
	sqliteStore, err := OpenSQLiteStore(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqliteStore.Close()
	if err := sqliteStore.Upsert(ctx, sampleMarkers()...); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	store := NewStore(nil)
	n, err := store.Reload(ctx, sqliteStore)
	if err != nil || n != 4 {
		t.Fatalf("reload: n=%d err=%v", n, err)
	}
	m, ok := store.Get("A_A")
	if !ok || !m.Patterns()[0].MatchString("AAA") {
		t.Fatalf("expected compiled pattern after reload")
	}
}
