package criteria

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/query"
)

// maxQueryTypos bounds how many typo levels this criterion iterates;
// matches internal/query's typo table ceiling (QueryKind.Typo never
// exceeds 2).
const maxQueryTypos = 2

// Typo buckets documents by how many edits the query's tolerant words
// needed to match, fewest edits first: bucket k is every
// document matched with at most k edits, minus every document already
// claimed by a lower bucket.
type Typo struct{}

func (Typo) Name() string { return "typo" }

func (Typo) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	if !hasTolerant(b.Op) {
		return []Bucket{b}, nil
	}

	var out []Bucket
	seen := roaring.NewBitmap()
	for cap := uint8(0); cap <= maxQueryTypos; cap++ {
		matched, err := resolveWithTypoCap(ctx, b.Op, cap, b.Ids)
		if err != nil {
			return nil, err
		}
		matched = roaring.And(matched, b.Ids)
		level := roaring.AndNot(matched, seen)
		seen.Or(matched)
		if level.IsEmpty() {
			continue
		}
		out = append(out, Bucket{Op: b.Op, Ids: level})
	}

	remaining := roaring.AndNot(b.Ids, seen)
	if !remaining.IsEmpty() {
		out = append(out, Bucket{Op: b.Op, Ids: remaining})
	}
	return out, nil
}

func hasTolerant(op query.Operation) bool {
	for _, leaf := range collectLeaves(op) {
		if leaf.Kind.Tolerant {
			return true
		}
	}
	return false
}
