package criteria

import "github.com/lexidx/lexidx/internal/query"

// collectLeaves walks op and returns every Query leaf it contains,
// recursing through And/Or children and treating a Phrase's words as a
// sequence of exact leaves. Used by the Typo, Attribute and Exactness
// stages, which all need "every word this query variant requires"
// without caring about the tree's combinator structure.
func collectLeaves(op query.Operation) []*query.Query {
	var out []*query.Query
	var walk func(query.Operation)
	walk = func(o query.Operation) {
		switch n := o.(type) {
		case *query.And:
			for _, c := range n.Children {
				walk(c)
			}
		case *query.Or:
			// Only the first (best) alternative represents this variant's
			// required word for downstream ranking purposes; the others
			// are synonym/split/ngram fallbacks already folded into
			// resolution, not separate ranked positions.
			if len(n.Children) > 0 {
				walk(n.Children[0])
			}
		case *query.Phrase:
			for _, w := range n.Words {
				out = append(out, &query.Query{Kind: query.QueryKind{Word: w}})
			}
		case *query.Query:
			out = append(out, n)
		}
	}
	walk(op)
	return out
}

// flattenTerms walks op the same way collectLeaves does but returns the
// plain word sequence, preserving order, for the Proximity stage to pair
// up consecutive terms.
func flattenTerms(op query.Operation) []string {
	leaves := collectLeaves(op)
	words := make([]string, len(leaves))
	for i, l := range leaves {
		words[i] = l.Kind.Word
	}
	return words
}
