package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/google/uuid"
)

type textRow struct {
	ID        string        `db:"id"`
	Title     string        `db:"title"`
	Content   string        `db:"content"`
	CreatedAt int64         `db:"created_at"`
	SourceID  sql.NullInt64 `db:"source_id"`
}

func (r textRow) text() domain.Text {
	return domain.Text{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		CreatedAt: fromUnix(r.CreatedAt),
		SourceID:  r.SourceID.Int64,
	}
}

const textColumns = `id, title, content, created_at, source_id`

// SaveText upserts a passage. When text.ID names an existing text its title
// and content are replaced and created_at moves to now, so it resurfaces at
// the top of ListTexts. Otherwise a new text is inserted under a fresh id.
// Updating an imported passage detaches it from its source, so later syncs
// leave the edit alone.
func (db *DB) SaveText(ctx context.Context, text domain.Text, now time.Time) (domain.Text, domain.SaveOutcome, error) {
	if text.ID != "" {
		res, err := db.conn.ExecContext(ctx, `
			UPDATE texts
			SET title = ?, content = ?, created_at = ?, source_id = NULL
			WHERE id = ?
		`, text.Title, text.Content, toUnix(now), text.ID)
		if err != nil {
			return domain.Text{}, domain.TextUpdated, fmt.Errorf("failed to update text %s: %w", text.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return domain.Text{}, domain.TextUpdated, fmt.Errorf("failed to update text %s: %w", text.ID, err)
		}
		if n == 1 {
			saved, err := db.FindTextByID(ctx, text.ID)
			if err != nil {
				return domain.Text{}, domain.TextUpdated, err
			}
			if saved == nil {
				return domain.Text{}, domain.TextUpdated, fmt.Errorf("text %s: %w", text.ID, ErrTextNotFound)
			}
			return *saved, domain.TextUpdated, nil
		}
	}

	created := domain.Text{
		ID:        uuid.NewString(),
		Title:     text.Title,
		Content:   text.Content,
		CreatedAt: fromUnix(toUnix(now)),
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO texts (id, title, content, created_at)
		VALUES (?, ?, ?, ?)
	`, created.ID, created.Title, created.Content, toUnix(now))
	if err != nil {
		return domain.Text{}, domain.TextCreated, fmt.Errorf("failed to insert text %q: %w", text.Title, err)
	}
	return created, domain.TextCreated, nil
}

// PutSourcedText inserts or refreshes a passage imported from a source under
// its caller-chosen id. created_at only moves when the title or content
// changed. A text under the same id that no longer belongs to the source
// (edited through SaveText) is left untouched. It reports whether anything
// was written.
func (db *DB) PutSourcedText(ctx context.Context, text domain.Text, now time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO texts (`+textColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			created_at = excluded.created_at
		WHERE texts.source_id = excluded.source_id
			AND (texts.title != excluded.title OR texts.content != excluded.content)
	`,
		text.ID,
		text.Title,
		text.Content,
		toUnix(now),
		nullableID(text.SourceID),
	)
	if err != nil {
		return false, fmt.Errorf("failed to put text %s: %w", text.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to put text %s: %w", text.ID, err)
	}
	return n > 0, nil
}

// FindTextByID retrieves a text by its id. It returns nil, nil when no text matches.
func (db *DB) FindTextByID(ctx context.Context, id string) (*domain.Text, error) {
	var row textRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+textColumns+` FROM texts WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find text %s: %w", id, err)
	}
	text := row.text()
	return &text, nil
}

// ListTexts returns all texts, most recently saved first.
func (db *DB) ListTexts(ctx context.Context) ([]domain.Text, error) {
	return db.selectTexts(ctx, `SELECT `+textColumns+` FROM texts ORDER BY created_at DESC, rowid DESC`)
}

// TextsBySource returns the texts imported from the given source.
func (db *DB) TextsBySource(ctx context.Context, sourceID int64) ([]domain.Text, error) {
	return db.selectTexts(ctx, `SELECT `+textColumns+` FROM texts WHERE source_id = ? ORDER BY id`, sourceID)
}

func (db *DB) selectTexts(ctx context.Context, query string, args ...any) ([]domain.Text, error) {
	var rows []textRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list texts: %w", err)
	}
	texts := make([]domain.Text, 0, len(rows))
	for _, r := range rows {
		texts = append(texts, r.text())
	}
	return texts, nil
}

// DeleteText removes a text by id.
func (db *DB) DeleteText(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM texts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete text %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete text %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete text %s: %w", id, ErrTextNotFound)
	}
	return nil
}

// nullableID maps the zero id to NULL.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
