package criteria

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/query"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// prefixLength duplicates internal/writer.PrefixLength: the two packages
// have no reason to depend on each other, but a query-time prefix lookup
// has to group a word's leading runes exactly the way the writer grouped
// them when it built DB 3.
const prefixLength = 4

// AllDocids returns every live internal docid, the universe And{} (an
// empty query) resolves against.
func AllDocids(txn *badger.Txn) (*roaring.Bitmap, error) {
	blob, err := txn.Get(badger.DBMain, codec.MainDocumentsIDsBitmapKey())
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return roaring.NewBitmap(), nil
	}
	return codec.DecodeBitmap(blob)
}

// ResolveQueryTree resolves op to the bitmap of every docid the query
// matches at all, with no ranking applied: an And intersects children
// smallest-first, an Or (optional or not) unions children, a Phrase
// intersects each adjacent word pair's proximity-1 posting list, and a
// Query leaf resolves through queryDocids. universe backs an empty And
// (built from a blank query) and is otherwise unused.
func ResolveQueryTree(ctx Context, op query.Operation, universe *roaring.Bitmap) (*roaring.Bitmap, error) {
	switch n := op.(type) {
	case *query.And:
		if len(n.Children) == 0 {
			return universe.Clone(), nil
		}
		bitmaps := make([]*roaring.Bitmap, 0, len(n.Children))
		for _, child := range n.Children {
			bm, err := ResolveQueryTree(ctx, child, universe)
			if err != nil {
				return nil, err
			}
			bitmaps = append(bitmaps, bm)
		}
		sort.Slice(bitmaps, func(i, j int) bool {
			return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
		})
		result := bitmaps[0]
		for _, bm := range bitmaps[1:] {
			result = roaring.And(result, bm)
		}
		return result, nil

	case *query.Or:
		result := roaring.NewBitmap()
		for _, child := range n.Children {
			bm, err := ResolveQueryTree(ctx, child, universe)
			if err != nil {
				return nil, err
			}
			result.Or(bm)
		}
		return result, nil

	case *query.Phrase:
		return resolvePhrase(ctx, n.Words)

	case *query.Query:
		return queryDocids(ctx, n)

	default:
		return nil, common.NewInternalError(common.ErrCorruption, nil, "unknown query operation %T", op)
	}
}

func resolvePhrase(ctx Context, words []string) (*roaring.Bitmap, error) {
	if len(words) == 0 {
		return roaring.NewBitmap(), nil
	}
	if len(words) == 1 {
		return ctx.WordDocids(words[0])
	}

	result, err := ctx.WordPairProximityDocids(words[0], words[1], 1)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(words)-1; i++ {
		pair, err := ctx.WordPairProximityDocids(words[i], words[i+1], 1)
		if err != nil {
			return nil, err
		}
		result = roaring.And(result, pair)
	}
	return result, nil
}

// queryDocids resolves one leaf: exact words look up DB 2 (and DB 3 when
// the leaf is also the query's trailing prefix-eligible word); tolerant
// words stream the words FST through a Levenshtein automaton instead.
func queryDocids(ctx Context, q *query.Query) (*roaring.Bitmap, error) {
	word := q.Kind.Word

	if !q.Kind.Tolerant {
		exact, err := ctx.WordDocids(word)
		if err != nil {
			return nil, err
		}
		if !q.Prefix {
			return exact, nil
		}
		prefixed, err := prefixMatch(ctx, word)
		if err != nil {
			return nil, err
		}
		return roaring.Or(exact, prefixed), nil
	}

	derivations, err := ctx.WordDerivations(word, q.Kind.Typo, q.Prefix)
	if err != nil {
		return nil, err
	}
	result := roaring.NewBitmap()
	for _, d := range derivations {
		result.Or(d.Docids)
	}
	return result, nil
}

// resolveWithTypoCap resolves op the same way ResolveQueryTree does, but
// every tolerant leaf's edit budget is clamped to at most cap. The Typo
// criterion calls this once per typo level it iterates, so it can
// compute "docs matched allowing at most cap edits" and subtract
// successive levels to get the exact per-level bucket.
func resolveWithTypoCap(ctx Context, op query.Operation, cap uint8, universe *roaring.Bitmap) (*roaring.Bitmap, error) {
	switch n := op.(type) {
	case *query.And:
		if len(n.Children) == 0 {
			return universe.Clone(), nil
		}
		bitmaps := make([]*roaring.Bitmap, 0, len(n.Children))
		for _, child := range n.Children {
			bm, err := resolveWithTypoCap(ctx, child, cap, universe)
			if err != nil {
				return nil, err
			}
			bitmaps = append(bitmaps, bm)
		}
		sort.Slice(bitmaps, func(i, j int) bool {
			return bitmaps[i].GetCardinality() < bitmaps[j].GetCardinality()
		})
		result := bitmaps[0]
		for _, bm := range bitmaps[1:] {
			result = roaring.And(result, bm)
		}
		return result, nil

	case *query.Or:
		result := roaring.NewBitmap()
		for _, child := range n.Children {
			bm, err := resolveWithTypoCap(ctx, child, cap, universe)
			if err != nil {
				return nil, err
			}
			result.Or(bm)
		}
		return result, nil

	case *query.Phrase:
		return resolvePhrase(ctx, n.Words)

	case *query.Query:
		return queryDocidsCapped(ctx, n, cap)

	default:
		return nil, common.NewInternalError(common.ErrCorruption, nil, "unknown query operation %T", op)
	}
}

// queryDocidsCapped resolves one leaf the way queryDocids does, except a
// tolerant leaf's edit budget is clamped to at most cap.
func queryDocidsCapped(ctx Context, q *query.Query, cap uint8) (*roaring.Bitmap, error) {
	if !q.Kind.Tolerant {
		return queryDocids(ctx, q)
	}
	typos := q.Kind.Typo
	if cap < typos {
		typos = cap
	}
	derivations, err := ctx.WordDerivations(q.Kind.Word, typos, q.Prefix)
	if err != nil {
		return nil, err
	}
	result := roaring.NewBitmap()
	for _, d := range derivations {
		result.Or(d.Docids)
	}
	return result, nil
}

// prefixMatch returns the posting list for word's kept (frequency-gated)
// leading-rune prefix; queryDocids unions it with word's own exact
// posting list, an approximation of "every word this index knows that starts with word"
// bounded by what RebuildWordPrefixes chose to keep.
func prefixMatch(ctx Context, word string) (*roaring.Bitmap, error) {
	return ctx.WordPrefixDocids(runePrefix(word, prefixLength))
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return string(r)
	}
	return string(r[:n])
}
