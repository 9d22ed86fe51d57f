// Package fts implements full-text indexing: Unicode tokenization, an
// inverted index with term positions, and the MATCH query language.
package fts

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Token is a normalized term and its position within the tokenized text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer splits text into case-folded terms on any character that is
// not a letter or digit.
type Tokenizer struct {
	IgnoreDiacritics bool
}

// Normalize case-folds s and, if configured, strips combining marks.
func (t Tokenizer) Normalize(s string) string {
	// Casers and transformers hold state; build fresh ones per call.
	s = cases.Fold().String(s)
	if t.IgnoreDiacritics {
		chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if out, _, err := transform.String(chain, s); err == nil {
			s = out
		}
	}
	return s
}

// Tokenize returns the terms of text in order.
func (t Tokenizer) Tokenize(text string) []Token {
	text = t.Normalize(text)
	var tokens []Token
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, Token{Term: current.String(), Position: len(tokens)})
			current.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
