package criteria

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/query"
)

// Words is the first criterion in the default chain: it resolves the
// query tree's optional-words variants from most-words-required to
// least, producing one bucket per variant restricted to the still-tied
// candidates no more-demanding variant already claimed: the first
// bucket holds documents matching the maximum number of query words.
type Words struct{}

func (Words) Name() string { return "words" }

func (Words) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	opt, ok := b.Op.(*query.Or)
	if !ok || !opt.Optional {
		// Nothing optional to drop: every document in the bucket already
		// matched the same fixed set of required words.
		return []Bucket{b}, nil
	}

	var out []Bucket
	remaining := b.Ids.Clone()
	for _, variant := range opt.Children {
		if remaining.IsEmpty() {
			break
		}
		matched, err := ResolveQueryTree(ctx, variant, b.Ids)
		if err != nil {
			return nil, err
		}
		matched = roaring.And(matched, remaining)
		if matched.IsEmpty() {
			continue
		}
		out = append(out, Bucket{Op: variant, Ids: matched})
		remaining = roaring.AndNot(remaining, matched)
	}
	if !remaining.IsEmpty() {
		// No variant matched these documents at all; a trailing bucket
		// keeps every candidate accounted for.
		out = append(out, Bucket{Op: b.Op, Ids: remaining})
	}
	return out, nil
}
