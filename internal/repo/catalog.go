package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/utils"
)

// Catalog is an immutable snapshot of compiled marker definitions. Markers handed out by a
// catalog are shared between requests and must not be modified.
type Catalog struct {
	markers  []*models.Marker
	byID     map[string]*models.Marker
	schemas  []string
	loadedAt time.Time
}

// NewCatalog validates and compiles markers into a snapshot. Invalid or duplicate markers
// are left out and reported as configuration errors.
func NewCatalog(markers []*models.Marker) (*Catalog, []error) {
	c := &Catalog{
		markers:  make([]*models.Marker, 0, len(markers)),
		byID:     make(map[string]*models.Marker, len(markers)),
		loadedAt: time.Now().UTC(),
	}
	var rejected []error
	schemas := map[string]struct{}{}
	for _, src := range markers {
		if src == nil {
			continue
		}
		m := *src
		if err := m.Compile(); err != nil {
			rejected = append(rejected, utils.ConfigurationError("repo.catalog", "rejected marker", err))
			continue
		}
		if _, dup := c.byID[m.ID]; dup {
			rejected = append(rejected, utils.ConfigurationError("repo.catalog", "duplicate marker id "+m.ID, nil))
			continue
		}
		c.byID[m.ID] = &m
		c.markers = append(c.markers, &m)
		if m.SchemaID != "" {
			schemas[m.SchemaID] = struct{}{}
		}
	}
	sort.Slice(c.markers, func(i, j int) bool { return c.markers[i].ID < c.markers[j].ID })
	for s := range schemas {
		c.schemas = append(c.schemas, s)
	}
	sort.Strings(c.schemas)
	return c, rejected
}

// Find returns markers whose id starts with one of prefixes, restricted to schemaID when set.
func (c *Catalog) Find(prefixes []string, schemaID string) []*models.Marker {
	out := make([]*models.Marker, 0)
	for _, m := range c.markers {
		if schemaID != "" && m.SchemaID != schemaID {
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(m.ID, p) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Get returns the marker with id.
func (c *Catalog) Get(id string) (*models.Marker, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// List returns every marker of schemaID, or all markers when schemaID is empty.
func (c *Catalog) List(schemaID string) []*models.Marker {
	if schemaID == "" {
		return append([]*models.Marker(nil), c.markers...)
	}
	out := make([]*models.Marker, 0)
	for _, m := range c.markers {
		if m.SchemaID == schemaID {
			out = append(out, m)
		}
	}
	return out
}

// Schemas returns the distinct schema ids in the snapshot.
func (c *Catalog) Schemas() []string { return append([]string(nil), c.schemas...) }

// Count returns the number of markers.
func (c *Catalog) Count() int { return len(c.markers) }

// CountByType returns marker counts keyed by type.
func (c *Catalog) CountByType() map[models.MarkerType]int {
	counts := make(map[models.MarkerType]int)
	for _, m := range c.markers {
		counts[m.Type()]++
	}
	return counts
}

// LoadedAt reports when the snapshot was built.
func (c *Catalog) LoadedAt() time.Time { return c.loadedAt }

// Loader produces marker definitions from a backing source.
type Loader interface {
	Load(ctx context.Context) ([]*models.Marker, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) ([]*models.Marker, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) ([]*models.Marker, error) {
	return f(ctx)
}

// Store serves the current catalog. Readers never block; Swap replaces the snapshot
// atomically and in-flight readers keep the one they started with.
type Store struct {
	current atomic.Pointer[Catalog]
	logger  *slog.Logger
}

// NewStore returns a store holding an empty catalog.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	empty, _ := NewCatalog(nil)
	s.current.Store(empty)
	return s
}

// Snapshot returns the current catalog.
func (s *Store) Snapshot() *Catalog {
	return s.current.Load()
}

// Swap builds a catalog from markers and installs it. Rejected markers are logged and
// returned joined; the valid remainder is still installed.
func (s *Store) Swap(markers []*models.Marker) (int, error) {
	next, rejected := NewCatalog(markers)
	for _, err := range rejected {
		s.logger.Warn("marker definition rejected", slog.Any("error", err))
	}
	prev := s.current.Swap(next)
	s.logger.Info("marker catalog swapped",
		slog.Int("markers", next.Count()),
		slog.Int("previous", prev.Count()),
		slog.Int("rejected", len(rejected)),
	)
	return next.Count(), errors.Join(rejected...)
}

// Reload loads definitions from loader and swaps them in. A loader failure keeps the
// current catalog.
func (s *Store) Reload(ctx context.Context, loader Loader) (int, error) {
	markers, err := loader.Load(ctx)
	if err != nil {
		return s.Snapshot().Count(), fmt.Errorf("load marker definitions: %w", err)
	}
	return s.Swap(markers)
}

// FindByIDPrefix serves the marker scans from the current snapshot.
func (s *Store) FindByIDPrefix(ctx context.Context, prefixes []string, schemaID string) ([]*models.Marker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Snapshot().Find(prefixes, schemaID), nil
}

// Get returns a marker from the current snapshot.
func (s *Store) Get(id string) (*models.Marker, bool) { return s.Snapshot().Get(id) }

// List returns markers of schemaID from the current snapshot.
func (s *Store) List(schemaID string) []*models.Marker { return s.Snapshot().List(schemaID) }

// Schemas returns the schema ids of the current snapshot.
func (s *Store) Schemas() []string { return s.Snapshot().Schemas() }

// Count returns the size of the current snapshot.
func (s *Store) Count() int { return s.Snapshot().Count() }
