package domain

import "time"

// Text is a saved reading passage. CreatedAt is refreshed on every update
// so recently touched texts sort first.
type Text struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	SourceID  int64     `json:"source_id,omitempty"`
}

// SaveOutcome tells a caller whether SaveText inserted or updated.
type SaveOutcome int

const (
	TextCreated SaveOutcome = iota
	TextUpdated
)

func (o SaveOutcome) String() string {
	if o == TextUpdated {
		return "updated"
	}
	return "created"
}
