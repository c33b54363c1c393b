package indexer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// defaultStopwords are dropped from every index.
var defaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"in", "into", "is", "it", "its", "of", "on", "or", "that", "the",
	"their", "this", "to", "was", "were", "which", "with",
}

// Cleaner turns free text into index terms: diacritics stripped, case
// folded, split on anything that is not a letter or digit, stopwords and
// single characters removed.
//
// Thread-safety: Cleaner is immutable and safe for concurrent use.
type Cleaner struct {
	stopwords map[string]struct{}
	minLen    int
}

// NewCleaner returns a Cleaner with the default stopword list.
func NewCleaner() *Cleaner {
	stop := make(map[string]struct{}, len(defaultStopwords))
	for _, w := range defaultStopwords {
		stop[w] = struct{}{}
	}
	return &Cleaner{stopwords: stop, minLen: 2}
}

// Clean returns the index terms of text in order of appearance.
func (c *Cleaner) Clean(text string) []string {
	// Transformers carry state, so each call builds its own chain.
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(strip, text)
	if err != nil {
		plain = text
	}
	plain = cases.Fold().String(plain)

	fields := strings.FieldsFunc(plain, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < c.minLen {
			continue
		}
		if _, stop := c.stopwords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
