package domain

import "time"

// Initial SRS state for a freshly created card.
const (
	DefaultInterval   = 1
	DefaultEaseFactor = 2.5
)

// Card is a saved vocabulary word together with its review schedule.
type Card struct {
	ID         string    `json:"id"`
	Word       string    `json:"word"`
	Reading    string    `json:"reading"`
	Meaning    string    `json:"meaning"`
	Interval   int       `json:"interval"`
	EaseFactor float64   `json:"ease_factor"`
	NextReview time.Time `json:"next_review"`
}

// IsDue reports whether the card should be reviewed at now.
func (c Card) IsDue(now time.Time) bool {
	return !c.NextReview.After(now)
}

// CreateOutcome tells a caller whether CreateCard stored a new card.
type CreateOutcome int

const (
	Created CreateOutcome = iota
	AlreadyExists
)

func (o CreateOutcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}
