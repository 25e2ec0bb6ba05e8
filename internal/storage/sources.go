package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a passage source, either a local path or a Git URL.
type Source struct {
	ID          int64         `db:"id"`
	Path        string        `db:"path"`
	Type        string        `db:"type"`
	LastScanned sql.NullInt64 `db:"last_scanned"`
}

// LastScannedAt returns the time of the last sync, or the zero time.
func (s Source) LastScannedAt() time.Time {
	if !s.LastScanned.Valid {
		return time.Time{}
	}
	return fromUnix(s.LastScanned.Int64)
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
// It returns nil, nil when no source matches.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	err := db.conn.GetContext(ctx, &s, `
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	if err := db.conn.SelectContext(ctx, &sources, `
		SELECT id, path, type, last_scanned
		FROM sources
		ORDER BY id
	`); err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, now time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, toUnix(now), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and every text imported from it.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete of source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM texts WHERE source_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete texts of source %d: %w", sourceID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete source %d: %w", sourceID, ErrSourceNotFound)
	}
	return tx.Commit()
}
