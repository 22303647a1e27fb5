// Package tokenizer turns field text into the exact terms stored in a
// segment dictionary. It lower-cases input and splits on non-alphanumeric
// boundaries. There is no stemming: a term query matches only the token
// as it was produced here.
package tokenizer

import (
	"strings"
	"unicode"
)

// Tokenizer produces terms for one field's text.
type Tokenizer struct {
	stopWords map[string]struct{}
	minLen    int
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithStopWords drops the given words (compared after lower-casing).
func WithStopWords(words ...string) Option {
	return func(t *Tokenizer) {
		for _, w := range words {
			t.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithMinLength drops tokens shorter than n runes.
func WithMinLength(n int) Option {
	return func(t *Tokenizer) { t.minLen = n }
}

func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{stopWords: make(map[string]struct{}), minLen: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Terms returns the tokens of text in order of appearance. Repeated tokens
// are kept; the segment writer counts them into term frequencies.
func (t *Tokenizer) Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := words[:0]
	for _, w := range words {
		if len([]rune(w)) < t.minLen {
			continue
		}
		if _, stop := t.stopWords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// Default is the tokenizer used when indexing text fields.
var Default = New()

// Terms tokenizes text with Default.
func Terms(text string) []string {
	return Default.Terms(text)
}
