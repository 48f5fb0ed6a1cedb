package query

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// normalizeWord mirrors internal/extract's document-side normalization
// (NFKC then case-fold) so a query word collapses to the same indexed
// token a document's word would. Duplicated rather than imported since
// extract's normalizeWord is unexported and extract has no reason to
// depend on query (or vice versa).
func normalizeWord(s string) string {
	return foldCaser.String(norm.NFKC.String(s))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Part is one element of a primitive query: either a single word (Prefix
// true only if it's the query's last, unquoted token) or a phrase of
// contiguous words captured between double quotes.
type Part struct {
	IsPhrase bool
	Words    []string // len 1 for a Word part
	Prefix   bool
}

// Tokenize splits a raw query string into primitive parts:
// whitespace-separated words, with a double-quoted run captured
// as one Phrase part. Stop words are dropped from unquoted word parts
// (quoted phrases keep every word, since dropping one would break the
// contiguity constraint the phrase exists to express). wordsLimit caps
// how many parts are kept (0 means unlimited).
func Tokenize(raw string, stopWords map[string]bool, wordsLimit int) []Part {
	var parts []Part
	runes := []rune(raw)
	n := len(runes)
	i := 0

	for i < n {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		if runes[i] == '"' {
			i++
			start := i
			for i < n && runes[i] != '"' {
				i++
			}
			words := extractWords(runes[start:i])
			if i < n {
				i++ // skip closing quote
			}
			if len(words) > 0 {
				parts = append(parts, Part{IsPhrase: true, Words: words})
			}
			continue
		}

		start := i
		for i < n && !unicode.IsSpace(runes[i]) && runes[i] != '"' {
			i++
		}
		for _, w := range extractWords(runes[start:i]) {
			if stopWords[w] {
				continue
			}
			parts = append(parts, Part{Words: []string{w}})
		}
	}

	// only the last part, if it's a bare word, is eligible for prefix
	// expansion.
	if len(parts) > 0 {
		last := &parts[len(parts)-1]
		if !last.IsPhrase {
			last.Prefix = true
		}
	}

	if wordsLimit > 0 && len(parts) > wordsLimit {
		parts = parts[:wordsLimit]
	}
	return parts
}

// extractWords pulls every maximal run of word runes out of s, normalizing
// each the same way document indexing does.
func extractWords(s []rune) []string {
	var out []string
	i, n := 0, len(s)
	for i < n {
		if !isWordRune(s[i]) {
			i++
			continue
		}
		start := i
		for i < n && isWordRune(s[i]) {
			i++
		}
		if w := normalizeWord(string(s[start:i])); w != "" {
			out = append(out, w)
		}
	}
	return out
}
