package query

// Context supplies the lookups the tree builder needs from the index:
// word frequency (for ranking candidate splits) and configured synonyms.
// Resolving a Tolerant QueryKind's actual typo-variant words against the
// words FST is deferred to internal/criteria, which streams a
// Levenshtein automaton over it at evaluation time rather than expanding
// variants at tree-build time, exactly as QueryKind.Tolerant records just
// the word and edit budget rather than a concrete candidate list.
type Context interface {
	// WordDocumentCount returns how many documents contain word, 0 if
	// word is absent. Used to score candidate splits in splitBestFrequency.
	WordDocumentCount(word string) (int, error)

	// Synonyms returns every configured synonym group for words, or nil
	// if none are configured.
	Synonyms(words []string) ([][]string, error)
}
