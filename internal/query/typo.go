package query

// typoBudget is the length-keyed typo table: short words tolerate no
// edits, medium words tolerate one, everything else tolerates two. Length
// is measured in runes so multi-byte scripts aren't penalised for their
// UTF-8 encoding size.
func typoBudget(word string) uint8 {
	n := len([]rune(word))
	switch {
	case n <= 4:
		return 0
	case n <= 8:
		return 1
	default:
		return 2
	}
}

// buildWordQuery produces the Query leaf for one word at the given typo
// budget: an exact match when the budget is 0, otherwise a Tolerant
// QueryKind that records the word and edit budget for evaluation-time
// Levenshtein-DFA derivation against the words FST.
func buildWordQuery(word string, prefix bool) *Query {
	typos := typoBudget(word)
	if typos == 0 {
		return &Query{Prefix: prefix, Kind: exactKind(word)}
	}
	return &Query{Prefix: prefix, Kind: tolerantKind(typos, word)}
}
