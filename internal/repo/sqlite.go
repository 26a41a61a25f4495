package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/miradorstack/marker-engine/internal/models"
	"github.com/miradorstack/marker-engine/internal/storage/sqlite"
)

// SQLiteStore persists marker definitions as JSON documents keyed by id.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens and migrates the database at path.
func OpenSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sqlite.NewDB(ctx, path, logger)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces markers in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, markers ...*models.Marker) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `INSERT INTO markers (id, schema_id, document, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET schema_id = excluded.schema_id, document = excluded.document, updated_at = excluded.updated_at`
	now := time.Now().Unix()
	for _, m := range markers {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal marker %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, m.ID, m.SchemaID, string(doc), now); err != nil {
			return fmt.Errorf("failed to upsert marker %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit markers: %w", err)
	}
	return nil
}

// Delete removes a marker. Deleting an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM markers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete marker %s: %w", id, err)
	}
	return nil
}

// All returns every stored marker ordered by id.
func (s *SQLiteStore) All(ctx context.Context) ([]*models.Marker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM markers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markers: %w", err)
	}
	defer rows.Close()

	var markers []*models.Marker
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan marker: %w", err)
		}
		var m models.Marker
		if err := json.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("failed to decode marker %s: %w", id, err)
		}
		markers = append(markers, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markers, nil
}

// Load implements Loader.
func (s *SQLiteStore) Load(ctx context.Context) ([]*models.Marker, error) {
	return s.All(ctx)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
