package criteria

import (
	"github.com/lexidx/lexidx/internal/codec"
)

// Attribute ranks documents by where the query's terms were found: a
// document whose matched words sit in a field searchableFieldIDs ranks
// ahead of, and whose words sit earlier within that field, ranks ahead
// of one where they sit later. This is the "Iterative"
// strategy: it walks each candidate's own word positions directly
// rather than materializing the full branch-and-bound search the
// "Set-based" strategy describes, which this implementation does not
// provide.
type Attribute struct{}

func (Attribute) Name() string { return "attribute" }

func (Attribute) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	terms := flattenTerms(b.Op)
	if len(terms) == 0 {
		return []Bucket{b}, nil
	}

	fieldRank := make(map[uint16]int, len(ctx.SearchableFieldIDs()))
	for i, id := range ctx.SearchableFieldIDs() {
		fieldRank[id] = i
	}
	// unranked is worse than any configured searchable field.
	unranked := len(fieldRank)

	scores := make(map[uint32]uint32, b.Ids.GetCardinality())
	it := b.Ids.Iterator()
	for it.HasNext() {
		docid := it.Next()
		best := ^uint32(0)
		for _, term := range terms {
			positions, err := ctx.DocidWordPositions(docid, term)
			if err != nil {
				return nil, err
			}
			for _, pos := range positions {
				attr, wordIdx := codec.UnpackPosition(pos)
				rank, ok := fieldRank[attr]
				if !ok {
					rank = unranked
				}
				score := uint32(rank)<<16 | uint32(wordIdx&0xFFFF)
				if score < best {
					best = score
				}
			}
		}
		scores[docid] = best
	}

	buckets := bucketByScore(b.Ids, scores)
	for i := range buckets {
		buckets[i].Op = b.Op
	}
	return buckets, nil
}
