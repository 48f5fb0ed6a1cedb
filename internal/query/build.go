package query

// Build turns a tokenized query into an Operation tree: one required
// branch per Part, each branch itself an Or of the word's alternatives
// (the word itself, its configured synonyms, a word-pair split, and the
// concatenations of up to maxNgram adjacent words), combined under a
// single And. When optionalWords
// is set, the tree instead becomes a single Or of variants obtained by
// dropping trailing required branches one at a time, letting
// internal/criteria's Words stage rank candidates by how many of the
// original words were actually satisfiable.
//
// Ngrams and splits are folded into extra alternatives at a single term
// position rather than expanding the combinatorial tree of every
// possible word segmentation.
func Build(ctx Context, parts []Part, optionalWords bool) (Operation, error) {
	if len(parts) == 0 {
		return &And{}, nil
	}

	required := make([]Operation, 0, len(parts))
	for i, p := range parts {
		if p.IsPhrase {
			required = append(required, phrase(p.Words))
			continue
		}
		alt, err := buildAlternatives(ctx, parts, i)
		if err != nil {
			return nil, err
		}
		required = append(required, alt)
	}

	if !optionalWords || len(required) <= 1 {
		return and(required), nil
	}
	return buildOptionalTree(required), nil
}

// maxNgram is the widest window of adjacent words concatenated into a
// single candidate word.
const maxNgram = 3

// buildAlternatives assembles the Or branch for the word at parts[i]:
// the word itself (exact or typo-tolerant per its length), every
// configured synonym, a frequency-guided split into two known words, and
// the concatenations of the 2- and 3-word windows starting at i, each
// typo-corrected like a regular word and carrying its own synonyms.
func buildAlternatives(ctx Context, parts []Part, i int) (Operation, error) {
	word := parts[i].Words[0]
	alts := []Operation{buildWordQuery(word, parts[i].Prefix)}

	syns, err := synonymAlternatives(ctx, word)
	if err != nil {
		return nil, err
	}
	alts = append(alts, syns...)

	left, right, ok, err := splitBestFrequency(ctx, word)
	if err != nil {
		return nil, err
	}
	if ok {
		alts = append(alts, phrase([]string{left, right}))
	}

	concat := word
	for n := 2; n <= maxNgram; n++ {
		j := i + n - 1
		if j >= len(parts) || parts[j].IsPhrase {
			break
		}
		concat += parts[j].Words[0]
		// prefix eligibility carries over from the window's last word
		alts = append(alts, buildWordQuery(concat, parts[j].Prefix))
		syns, err := synonymAlternatives(ctx, concat)
		if err != nil {
			return nil, err
		}
		alts = append(alts, syns...)
	}

	return &Or{Children: alts}, nil
}

// synonymAlternatives lifts every configured synonym of word into an
// exact-match alternative.
func synonymAlternatives(ctx Context, word string) ([]Operation, error) {
	groups, err := ctx.Synonyms([]string{word})
	if err != nil {
		return nil, err
	}
	var alts []Operation
	for _, group := range groups {
		for _, w := range group {
			if w == word {
				continue
			}
			alts = append(alts, &Query{Kind: exactKind(w)})
		}
	}
	return alts, nil
}

// buildOptionalTree builds the Or(Optional=true) tree internal/criteria's
// Words stage descends: variants ordered from "every word required" down
// to "only the first word required", each an And over a shrinking prefix
// of required.
func buildOptionalTree(required []Operation) Operation {
	variants := make([]Operation, 0, len(required))
	for keep := len(required); keep >= 1; keep-- {
		kept := make([]Operation, keep)
		copy(kept, required[:keep])
		variants = append(variants, and(kept))
	}
	return &Or{Optional: true, Children: variants}
}
