package extract

import (
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// token is one normalized word and the relative position (word index
// within its attribute, before the hard-separator gap is added) it
// occupies in the tokenized stream.
type token struct {
	text     string
	position uint16
}

// tokenize splits text into a stream of positioned words. Consecutive
// letters/digits/marks form one word; a run of separator runes containing
// any rune isHardSeparator accepts (a line break or one sentence-ending
// punctuation mark is enough) is a "hard" separator and advances the relative position by 8 instead of 1, matching
// the extra proximity gap a sentence or paragraph boundary implies. Each
// word is NFKC-normalized and case-folded before being handed to cb.
//
// cb receives positions already offset by the running gap; the caller is
// responsible for converting them to absolute positions via
// codec.PackPosition. tokenize itself stops once the offset reaches
// maxPositions, or as soon as cb returns false.
func tokenize(text string, maxPositions uint32, cb func(position uint16, word string) bool) {
	runes := []rune(text)
	n := len(runes)

	var offset uint32
	i := 0
	sawWord := false
	for i < n {
		if isWordRune(runes[i]) {
			start := i
			for i < n && isWordRune(runes[i]) {
				i++
			}
			if sawWord {
				offset++
			}
			sawWord = true
			if offset >= maxPositions {
				return
			}

			raw := string(runes[start:i])
			normalized := normalizeWord(raw)
			if normalized != "" && len(normalized) <= MaxWordLength {
				if !cb(uint16(offset), normalized) {
					return
				}
			}
			continue
		}

		sepStart := i
		hard := false
		for i < n && !isWordRune(runes[i]) {
			if isHardSeparator(runes[i]) {
				hard = true
			}
			i++
		}
		_ = sepStart
		if hard && sawWord {
			offset += 7 // plus the +1 already due on the next word, totalling +8
		}
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// isHardSeparator reports whether r marks a sentence/paragraph boundary
// (as opposed to ordinary whitespace between words within a sentence).
func isHardSeparator(r rune) bool {
	switch r {
	case '\n', '\r', '.', '!', '?', ';', '…':
		return true
	default:
		return false
	}
}

// normalizeWord applies Unicode canonical-compatibility normalization and
// case folding so that visually/semantically equivalent spellings collapse
// to the same indexed token.
func normalizeWord(s string) string {
	return foldCaser.String(norm.NFKC.String(s))
}
