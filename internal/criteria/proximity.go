package criteria

import "github.com/RoaringBitmap/roaring/v2"

// maxCriterionProximity is the largest proximity distance this criterion
// iterates explicitly; anything looser falls back to plain set
// intersection.
const maxCriterionProximity = 7

// Proximity buckets documents by how close the query's consecutive terms
// appear to each other, tightest first, falling back to a pure
// intersection bucket for anything looser than maxCriterionProximity.
type Proximity struct{}

func (Proximity) Name() string { return "proximity" }

func (Proximity) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	terms := flattenTerms(b.Op)
	if len(terms) < 2 {
		return []Bucket{b}, nil
	}

	var out []Bucket
	seen := roaring.NewBitmap()
	for p := uint8(0); p <= maxCriterionProximity; p++ {
		matched, err := cumulativeProximity(ctx, terms, p)
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
		pure, err := pureIntersection(ctx, terms)
		if err != nil {
			return nil, err
		}
		pure = roaring.And(pure, remaining)
		if !pure.IsEmpty() {
			out = append(out, Bucket{Op: b.Op, Ids: pure})
			remaining = roaring.AndNot(remaining, pure)
		}
	}
	if !remaining.IsEmpty() {
		out = append(out, Bucket{Op: b.Op, Ids: remaining})
	}
	return out, nil
}

// cumulativeProximity intersects, for every consecutive term pair, the
// union of that pair's word-pair-proximity postings at distance 0..=p,
// made cumulative over p so subtracting lower-proximity buckets yields
// the exact bucket for p.
func cumulativeProximity(ctx Context, terms []string, p uint8) (*roaring.Bitmap, error) {
	var result *roaring.Bitmap
	for i := 0; i < len(terms)-1; i++ {
		pairUnion := roaring.NewBitmap()
		for d := uint8(0); d <= p; d++ {
			bm, err := ctx.WordPairProximityDocids(terms[i], terms[i+1], d)
			if err != nil {
				return nil, err
			}
			pairUnion.Or(bm)
		}
		if result == nil {
			result = pairUnion
			continue
		}
		result = roaring.And(result, pairUnion)
	}
	if result == nil {
		return roaring.NewBitmap(), nil
	}
	return result, nil
}

// pureIntersection intersects every term's own exact posting list,
// ignoring position entirely: the "proximity >= 8" fallback.
func pureIntersection(ctx Context, terms []string) (*roaring.Bitmap, error) {
	var result *roaring.Bitmap
	for _, t := range terms {
		bm, err := ctx.WordDocids(t)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = bm
			continue
		}
		result = roaring.And(result, bm)
	}
	if result == nil {
		return roaring.NewBitmap(), nil
	}
	return result, nil
}
