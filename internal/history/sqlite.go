package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/storage/sqlite"
)

// SQLiteStore persists events in the session_events table.
type SQLiteStore struct {
	db    *sql.DB
	limit int
}

// OpenSQLiteStore opens and migrates the database at path. Events reads at most limit
// recent events per key; limit <= 0 reads all.
func OpenSQLiteStore(ctx context.Context, path string, limit int, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sqlite.NewDB(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, limit: limit}, nil
}

// Append records event.
func (s *SQLiteStore) Append(ctx context.Context, sessionID, markerID string, event models.Event) error {
	var weight sql.NullFloat64
	if event.Weight != nil {
		weight = sql.NullFloat64{Float64: *event.Weight, Valid: true}
	}
	query := `INSERT INTO session_events (session_id, marker_id, timestamp, weight, value) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, sessionID, markerID, event.Timestamp, weight, event.Value); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Events returns the most recent events, oldest first.
func (s *SQLiteStore) Events(ctx context.Context, sessionID, markerID string) ([]models.Event, error) {
	limit := s.limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT timestamp, weight, value FROM session_events WHERE session_id = ? AND marker_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, sessionID, markerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e      models.Event
			weight sql.NullFloat64
		)
		if err := rows.Scan(&e.Timestamp, &weight, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if weight.Valid {
			w := weight.Float64
			e.Weight = &w
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
