package domain

// Token is one analyzed word of an input text. It is never persisted.
type Token struct {
	Surface string `json:"surface"`
	Lemma   string `json:"lemma"`
	Reading string `json:"reading"`
	POS     string `json:"pos"`
}
