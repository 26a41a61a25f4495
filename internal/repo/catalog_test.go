package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/utils"
)

func ids(markers []*models.Marker) []string {
	out := make([]string, 0, len(markers))
	for _, m := range markers {
		out = append(out, m.ID)
	}
	return out
}

func sampleMarkers() []*models.Marker {
	return []*models.Marker{
		{ID: "S_B", SchemaID: "relationship", Examples: []string{"b"}},
		{ID: "A_A", SchemaID: "relationship", Examples: []string{"a"}, Pattern: models.StringList{"a+"}},
		{ID: "C_AB", SchemaID: "relationship", Examples: []string{"ab"}, ComposedOf: []string{"A_A", "S_B"}},
		{ID: "MM_X", SchemaID: "work", Examples: []string{"x"}, ComposedOf: []string{"C_AB"}},
	}
}

func TestCatalogFindByPrefixAndSchema(t *testing.T) {
	catalog, rejected := NewCatalog(sampleMarkers())
	if len(rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", rejected)
	}
	if diff := cmp.Diff([]string{"A_A", "S_B"}, ids(catalog.Find(models.InitialPrefixes, ""))); diff != "" {
		t.Fatalf("initial prefixes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"C_AB"}, ids(catalog.Find(models.ContextualPrefixes, "relationship"))); diff != "" {
		t.Fatalf("contextual prefixes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"relationship", "work"}, catalog.Schemas()); diff != "" {
		t.Fatalf("schemas (-want +got):\n%s", diff)
	}
	m, ok := catalog.Get("A_A")
	if !ok || len(m.Patterns()) != 1 {
		t.Fatalf("expected compiled A_A, got %+v", m)
	}
	if got := catalog.CountByType()[models.MarkerTypeSignal]; got != 1 {
		t.Fatalf("expected one signal marker, got %d", got)
	}
}

func TestCatalogRejectsInvalidMarkers(t *testing.T) {
	markers := append(sampleMarkers(),
		&models.Marker{ID: "A_BAD", Examples: []string{"x"}, Pattern: models.StringList{"(unclosed"}},
		&models.Marker{ID: "S_COMPOSED", Examples: []string{"x"}, ComposedOf: []string{"A_A"}},
		&models.Marker{ID: "S_B", Examples: []string{"dup"}},
	)
	catalog, rejected := NewCatalog(markers)
	if len(rejected) != 3 {
		t.Fatalf("expected three rejections, got %v", rejected)
	}
	for _, err := range rejected {
		if !errors.Is(err, utils.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	}
	if catalog.Count() != 4 {
		t.Fatalf("expected valid markers to remain, got %d", catalog.Count())
	}
}

func TestStoreSwapKeepsReaderSnapshot(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.Swap(sampleMarkers()); err != nil {
		t.Fatalf("swap: %v", err)
	}
	before := store.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := store.FindByIDPrefix(context.Background(), models.InitialPrefixes, ""); err != nil {
					t.Errorf("find: %v", err)
					return
				}
			}
		}()
	}
	if _, err := store.Swap(sampleMarkers()[:1]); err != nil {
		t.Fatalf("swap: %v", err)
	}
	wg.Wait()

	if before.Count() != 4 || store.Count() != 1 {
		t.Fatalf("expected old snapshot intact and new installed, got %d and %d", before.Count(), store.Count())
	}
}

func TestStoreReloadFailureKeepsCatalog(t *testing.T) {
	store := NewStore(nil)
	store.Swap(sampleMarkers())
	if _, err := store.Reload(context.Background(), YAMLSource{Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected reload error")
	}
	if store.Count() != 4 {
		t.Fatalf("catalog replaced after failed reload")
	}
}

func TestStoreReloadFromLoaderFunc(t *testing.T) {
	store := NewStore(nil)
	loader := LoaderFunc(func(context.Context) ([]*models.Marker, error) {
		return sampleMarkers()[:2], nil
	})
	n, err := store.Reload(context.Background(), loader)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n != 2 || store.Count() != 2 {
		t.Fatalf("expected 2 markers installed, got n=%d count=%d", n, store.Count())
	}

	boom := errors.New("boom")
	failing := LoaderFunc(func(context.Context) ([]*models.Marker, error) { return nil, boom })
	if _, err := store.Reload(context.Background(), failing); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped loader error, got %v", err)
	}
	if store.Count() != 2 {
		t.Fatalf("catalog replaced after failed reload")
	}
}

func TestLoadYAMLDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("01_signals.yaml", `
markers:
  - id: S_A
    examples: ["bin müde"]
  - id: S_B
    examples: ["will reden"]
    pattern: "reden\\b"
`)
	write("02_composite.yml", `
id: C_AB
examples: ["müde aber gesprächsbereit"]
composed_of: [S_A, S_B]
activation:
  type: ANY_N
  count: 2
scoring:
  formula: logistic
  k: 1.5
---
id: MM_LOOP
examples: ["immer wieder"]
composed_of: [C_AB]
window:
  seconds: 3600
`)
	write("03_list.yaml", `
- id: A_SIGH
  examples: [hach]
`)
	write("notes.txt", "ignored")

	markers, err := LoadYAML(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff([]string{"S_A", "S_B", "C_AB", "MM_LOOP", "A_SIGH"}, ids(markers)); diff != "" {
		t.Fatalf("unexpected markers (-want +got):\n%s", diff)
	}
	c := markers[2]
	if c.Activation == nil || models.IntOr(c.Activation.Count, 0) != 2 || *c.Scoring.K != 1.5 {
		t.Fatalf("composite fields not decoded: %+v", c)
	}
	if *markers[3].Window.Seconds != 3600 {
		t.Fatalf("window not decoded: %+v", markers[3].Window)
	}
}

func TestLoadYAMLRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("id: [unterminated"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadYAML(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
