package analysis

import (
	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// IPA feature positions.
const (
	featBaseForm = 6
	featReading  = 7
)

// Kagome segments text with the kagome tokenizer and the IPA dictionary.
type Kagome struct {
	t *tokenizer.Tokenizer
}

// NewKagome loads the IPA dictionary. This is slow and should happen once
// per process.
func NewKagome() (*Kagome, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Kagome{t: t}, nil
}

// Name identifies the engine in status payloads.
func (k *Kagome) Name() string { return "kagome" }

// Segment implements Segmenter.
func (k *Kagome) Segment(text string) ([]Morpheme, error) {
	if k == nil || k.t == nil {
		return nil, ErrNotInitialized
	}
	tokens := k.t.Tokenize(text)
	out := make([]Morpheme, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		features := tok.Features()
		out = append(out, Morpheme{
			Surface:  tok.Surface,
			BaseForm: feature(features, featBaseForm),
			Reading:  feature(features, featReading),
			POS:      features,
		})
	}
	return out, nil
}

// feature returns features[i], or "" when it is missing or the "*"
// placeholder.
func feature(features []string, i int) string {
	if i >= len(features) || features[i] == "*" {
		return ""
	}
	return features[i]
}
