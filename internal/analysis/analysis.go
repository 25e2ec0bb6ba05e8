package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conorfennell/yomu/internal/domain"
)

// ErrNotInitialized is returned by a segmenter that has no dictionary loaded.
var ErrNotInitialized = errors.New("analysis: tokenizer not initialized")

// whitespacePOS is the IPA sub-category for blank runs (記号,空白).
const whitespacePOS = "空白"

// Morpheme is a raw token as produced by a segmenter. Empty BaseForm or
// Reading mean the dictionary had no value.
type Morpheme struct {
	Surface  string
	BaseForm string
	Reading  string
	POS      []string
}

// Segmenter splits text into morphemes.
type Segmenter interface {
	Segment(text string) ([]Morpheme, error)
}

// Analyzer turns raw morphemes into domain tokens. Analysis is best effort:
// any segmenter failure yields an empty result.
type Analyzer struct {
	seg    Segmenter
	engine string
}

// NewAnalyzer wraps seg. engine names the segmenter in status output.
func NewAnalyzer(seg Segmenter, engine string) *Analyzer {
	return &Analyzer{seg: seg, engine: engine}
}

// Engine returns the name of the underlying segmenter.
func (a *Analyzer) Engine() string {
	if a == nil || a.engine == "" {
		return "none"
	}
	return a.engine
}

// Analyze returns the tokens of text. It never returns nil.
func (a *Analyzer) Analyze(text string) []domain.Token {
	tokens := []domain.Token{}
	if strings.TrimSpace(text) == "" {
		return tokens
	}

	morphemes, err := a.segment(text)
	if err != nil {
		slog.Warn("text analysis failed", "error", err, "length", len(text))
		return tokens
	}

	for _, m := range morphemes {
		if isWhitespace(m) {
			continue
		}
		tokens = append(tokens, normalize(m))
	}
	return tokens
}

func (a *Analyzer) segment(text string) (morphemes []Morpheme, err error) {
	if a == nil || a.seg == nil {
		return nil, ErrNotInitialized
	}
	defer func() {
		if r := recover(); r != nil {
			morphemes = nil
			err = fmt.Errorf("analysis: tokenizer panicked: %v", r)
		}
	}()
	return a.seg.Segment(text)
}

func normalize(m Morpheme) domain.Token {
	tok := domain.Token{
		Surface: m.Surface,
		Lemma:   m.BaseForm,
		Reading: m.Reading,
	}
	if tok.Lemma == "" {
		tok.Lemma = m.Surface
	}
	if tok.Reading == "" {
		tok.Reading = m.Surface
	}
	if len(m.POS) > 0 {
		tok.POS = m.POS[0]
	}
	return tok
}

func isWhitespace(m Morpheme) bool {
	if strings.TrimSpace(m.Surface) == "" {
		return true
	}
	return len(m.POS) > 1 && m.POS[1] == whitespacePOS
}
