package criteria

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
)

// Exactness buckets documents by how exactly the query's words matched:
// first documents where some searchable field holds exactly the query's
// words in order, then documents where some field starts with the query
// even if it continues past it, then everything else ordered by how many
// distinct query words it actually matched.
type Exactness struct{}

func (Exactness) Name() string { return "exactness" }

func (Exactness) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	terms := flattenTerms(b.Op)
	if len(terms) == 0 {
		return []Bucket{b}, nil
	}

	var out []Bucket
	remaining := b.Ids.Clone()

	exact, err := exactFieldMatch(ctx, terms)
	if err != nil {
		return nil, err
	}
	exact = roaring.And(exact, remaining)
	if !exact.IsEmpty() {
		out = append(out, Bucket{Op: b.Op, Ids: exact})
		remaining = roaring.AndNot(remaining, exact)
	}

	if !remaining.IsEmpty() {
		starts, err := attributeStartsWith(ctx, terms, remaining)
		if err != nil {
			return nil, err
		}
		if !starts.IsEmpty() {
			out = append(out, Bucket{Op: b.Op, Ids: starts})
			remaining = roaring.AndNot(remaining, starts)
		}
	}

	if !remaining.IsEmpty() {
		scores, err := matchedWordCountScores(ctx, terms, remaining)
		if err != nil {
			return nil, err
		}
		buckets := bucketByScore(remaining, scores)
		for i := range buckets {
			buckets[i].Op = b.Op
		}
		out = append(out, buckets...)
	}

	return out, nil
}

// exactFieldMatch unions, over every searchable field, the documents
// whose field holds exactly len(terms) words and matches the phrase
// formed by those terms in order: the strongest exactness signal, a
// field that is the query verbatim.
func exactFieldMatch(ctx Context, terms []string) (*roaring.Bitmap, error) {
	phrase, err := resolvePhrase(ctx, terms)
	if err != nil {
		return nil, err
	}
	if phrase.IsEmpty() {
		return phrase, nil
	}
	countMatch := roaring.NewBitmap()
	for _, fieldID := range ctx.SearchableFieldIDs() {
		bm, err := ctx.FieldWordCountDocids(fieldID, uint32(len(terms)))
		if err != nil {
			return nil, err
		}
		countMatch.Or(bm)
	}
	return roaring.And(phrase, countMatch), nil
}

// attributeStartsWith returns the candidates where some searchable field
// begins with the query: terms[k] occupies the field's k-th word
// position for every k, anchored at the field's first position, with the
// field free to continue past the query. A mid-field occurrence of the
// same phrase does not qualify.
func attributeStartsWith(ctx Context, terms []string, candidates *roaring.Bitmap) (*roaring.Bitmap, error) {
	// narrow to documents containing every term before walking positions
	narrowed := candidates.Clone()
	for _, term := range terms {
		bm, err := ctx.WordDocids(term)
		if err != nil {
			return nil, err
		}
		narrowed.And(bm)
		if narrowed.IsEmpty() {
			return narrowed, nil
		}
	}

	out := roaring.NewBitmap()
	fieldIDs := ctx.SearchableFieldIDs()
	it := narrowed.Iterator()
	for it.HasNext() {
		docid := it.Next()
		positions := make([][]uint32, len(terms))
		complete := true
		for k, term := range terms {
			pos, err := ctx.DocidWordPositions(docid, term)
			if err != nil {
				return nil, err
			}
			if len(pos) == 0 {
				complete = false
				break
			}
			positions[k] = pos
		}
		if !complete {
			continue
		}
		for _, fieldID := range fieldIDs {
			if startsWithInField(positions, fieldID) {
				out.Add(docid)
				break
			}
		}
	}
	return out, nil
}

// startsWithInField reports whether every term sits at its own index
// within fieldID: term k at packed position (fieldID, k).
func startsWithInField(positions [][]uint32, fieldID uint16) bool {
	for k, pos := range positions {
		if !containsPosition(pos, codec.PackPosition(fieldID, uint16(k))) {
			return false
		}
	}
	return true
}

func containsPosition(positions []uint32, want uint32) bool {
	for _, p := range positions {
		if p == want {
			return true
		}
	}
	return false
}

// matchedWordCountScores scores every candidate by how many distinct
// query words it failed to match, so bucketByScore's ascending order
// puts "matched the most words" first.
func matchedWordCountScores(ctx Context, terms []string, ids *roaring.Bitmap) (map[uint32]uint32, error) {
	scores := make(map[uint32]uint32, ids.GetCardinality())
	it := ids.Iterator()
	for it.HasNext() {
		scores[it.Next()] = 0
	}
	for _, term := range terms {
		bm, err := ctx.WordDocids(term)
		if err != nil {
			return nil, err
		}
		matched := roaring.And(bm, ids)
		matchedSet := make(map[uint32]bool, matched.GetCardinality())
		mit := matched.Iterator()
		for mit.HasNext() {
			matchedSet[mit.Next()] = true
		}
		idit := ids.Iterator()
		for idit.HasNext() {
			docid := idit.Next()
			if !matchedSet[docid] {
				scores[docid]++
			}
		}
	}
	return scores, nil
}
