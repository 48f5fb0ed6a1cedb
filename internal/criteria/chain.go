package criteria

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/query"
)

// Bucket pairs a set of still-tied candidate docids with the query
// variant that produced them, so a later stage in the chain can still
// recover which words/phrase it needs to score without re-walking the
// original root tree (relevant once the Words stage has picked a
// specific optional-words variant for a sub-bucket).
type Bucket struct {
	Op  query.Operation
	Ids *roaring.Bitmap
}

// Stage is one criterion in the ranking chain: given a single still-tied
// bucket, it returns an ordered partition of that bucket (best bucket
// first), each sub-bucket's Ids a subset of the input, covering it
// completely with no overlap.
type Stage interface {
	Name() string
	Rank(ctx Context, b Bucket) ([]Bucket, error)
}

// Run executes the full chain in order against one seed bucket,
// refining it stage by stage, and flattens the result into a single
// ordered docid slice (best match first, ties broken by ascending
// docid). Empty buckets are dropped between stages so later stages never
// do wasted work over nothing.
func Run(ctx Context, stages []Stage, seed Bucket) ([]uint32, error) {
	buckets := []Bucket{seed}
	for _, stage := range stages {
		var next []Bucket
		for _, b := range buckets {
			if b.Ids == nil || b.Ids.IsEmpty() {
				continue
			}
			subs, err := stage.Rank(ctx, b)
			if err != nil {
				return nil, err
			}
			next = append(next, subs...)
		}
		buckets = next
	}

	var ordered []uint32
	for _, b := range buckets {
		if b.Ids == nil {
			continue
		}
		it := b.Ids.Iterator()
		for it.HasNext() {
			ordered = append(ordered, it.Next())
		}
	}
	return ordered, nil
}

// bucketByScore partitions ids into buckets ordered by ascending score
// (lower score = better match, the convention every distance-like
// criterion in this package uses), grouping unscored docids (present in
// ids but absent from scores) into the worst bucket.
func bucketByScore(ids *roaring.Bitmap, scores map[uint32]uint32) []Bucket {
	byScore := map[uint32]*roaring.Bitmap{}
	var levels []uint32
	maxSeen := uint32(0)

	it := ids.Iterator()
	for it.HasNext() {
		docid := it.Next()
		score, ok := scores[docid]
		if !ok {
			score = ^uint32(0) // unscored: sorts last regardless of maxSeen
		} else if score > maxSeen {
			maxSeen = score
		}
		bm, exists := byScore[score]
		if !exists {
			bm = roaring.NewBitmap()
			byScore[score] = bm
			levels = append(levels, score)
		}
		bm.Add(docid)
	}

	sortUint32s(levels)
	out := make([]Bucket, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, Bucket{Ids: byScore[lvl]})
	}
	return out
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
