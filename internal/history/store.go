// Package history records marker events per session so scores can be aggregated over time.
package history

import (
	"context"
	"sync"

	"github.com/miradorstack/marker-engine/internal/models"
)

// Store appends and reads marker events. Events are returned oldest first.
type Store interface {
	Append(ctx context.Context, sessionID, markerID string, event models.Event) error
	Events(ctx context.Context, sessionID, markerID string) ([]models.Event, error)
	Close() error
}

type eventKey struct {
	session string
	marker  string
}

// MemoryStore keeps a bounded number of events per session and marker in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	limit    int
	sessions map[eventKey][]models.Event
}

// NewMemoryStore returns a store retaining at most limit events per key; limit <= 0 keeps all.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: limit, sessions: make(map[eventKey][]models.Event)}
}

// Append records event.
func (m *MemoryStore) Append(ctx context.Context, sessionID, markerID string, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := eventKey{session: sessionID, marker: markerID}
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append(m.sessions[key], event)
	if m.limit > 0 && len(events) > m.limit {
		events = append([]models.Event(nil), events[len(events)-m.limit:]...)
	}
	m.sessions[key] = events
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryStore) Events(ctx context.Context, sessionID, markerID string) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Event(nil), m.sessions[eventKey{session: sessionID, marker: markerID}]...), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
