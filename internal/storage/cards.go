package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/yomu/internal/domain"
	"github.com/google/uuid"
)

type cardRow struct {
	ID         string  `db:"id"`
	Word       string  `db:"word"`
	Reading    string  `db:"reading"`
	Meaning    string  `db:"meaning"`
	Interval   int     `db:"interval"`
	EaseFactor float64 `db:"ease_factor"`
	NextReview int64   `db:"next_review"`
}

func (r cardRow) card() domain.Card {
	return domain.Card{
		ID:         r.ID,
		Word:       r.Word,
		Reading:    r.Reading,
		Meaning:    r.Meaning,
		Interval:   r.Interval,
		EaseFactor: r.EaseFactor,
		NextReview: fromUnix(r.NextReview),
	}
}

const cardColumns = `id, word, reading, meaning, interval, ease_factor, next_review`

// CreateCard stores a new card for word, due at now with the initial SRS
// state. If a card for word already exists it is returned unchanged with
// domain.AlreadyExists.
func (db *DB) CreateCard(ctx context.Context, word, reading, meaning string, now time.Time) (domain.Card, domain.CreateOutcome, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return domain.Card{}, domain.Created, fmt.Errorf("card word must be non-empty")
	}

	card := domain.Card{
		ID:         uuid.NewString(),
		Word:       word,
		Reading:    reading,
		Meaning:    meaning,
		Interval:   domain.DefaultInterval,
		EaseFactor: domain.DefaultEaseFactor,
		NextReview: fromUnix(toUnix(now)),
	}

	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(word) DO NOTHING
	`,
		card.ID,
		card.Word,
		card.Reading,
		card.Meaning,
		card.Interval,
		card.EaseFactor,
		toUnix(now),
	)
	if err != nil {
		return domain.Card{}, domain.Created, fmt.Errorf("failed to insert card %q: %w", word, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Card{}, domain.Created, fmt.Errorf("failed to insert card %q: %w", word, err)
	}
	if n == 1 {
		return card, domain.Created, nil
	}

	existing, err := db.FindCardByWord(ctx, word)
	if err != nil {
		return domain.Card{}, domain.AlreadyExists, err
	}
	if existing == nil {
		return domain.Card{}, domain.AlreadyExists, fmt.Errorf("card %q conflicted but could not be read back", word)
	}
	return *existing, domain.AlreadyExists, nil
}

// FindCardByID retrieves a card by its id. It returns nil, nil when no card matches.
func (db *DB) FindCardByID(ctx context.Context, id string) (*domain.Card, error) {
	return db.findCard(ctx, "id", id)
}

// FindCardByWord retrieves a card by its word. It returns nil, nil when no card matches.
func (db *DB) FindCardByWord(ctx context.Context, word string) (*domain.Card, error) {
	return db.findCard(ctx, "word", strings.TrimSpace(word))
}

func (db *DB) findCard(ctx context.Context, column, value string) (*domain.Card, error) {
	var row cardRow
	err := db.conn.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE `+column+` = ?`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by %s %q: %w", column, value, err)
	}
	card := row.card()
	return &card, nil
}

// DueCards returns every card whose next review is at or before now, oldest first.
func (db *DB) DueCards(ctx context.Context, now time.Time) ([]domain.Card, error) {
	var rows []cardRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE next_review <= ?
		ORDER BY next_review, id
	`, toUnix(now))
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards: %w", err)
	}

	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.card())
	}
	return cards, nil
}

// ReviewCard loads the card with id, passes it to apply and stores the
// interval, ease factor and next review of the result, all in one
// transaction. It returns ErrCardNotFound when id is unknown.
func (db *DB) ReviewCard(ctx context.Context, id string, apply func(domain.Card) domain.Card) (domain.Card, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to begin review of card %s: %w", id, err)
	}
	defer tx.Rollback()

	var row cardRow
	if err := tx.GetContext(ctx, &row, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("review card %s: %w", id, ErrCardNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to load card %s for review: %w", id, err)
	}

	updated := apply(row.card())
	updated.ID = row.ID

	_, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET interval = ?, ease_factor = ?, next_review = ?
		WHERE id = ?
	`,
		updated.Interval,
		updated.EaseFactor,
		toUnix(updated.NextReview),
		updated.ID,
	)
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to update card state for %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Card{}, fmt.Errorf("failed to commit review of card %s: %w", id, err)
	}
	return updated, nil
}
