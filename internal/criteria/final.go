package criteria

import "github.com/RoaringBitmap/roaring/v2"

// Final is always the chain's last stage. When the query has a distinct
// field configured, it keeps only the first occurrence of each distinct
// value and drops every later document sharing it, preserving whatever
// order the preceding stages established. A *Final instance is stateful across the whole Run call:
// Build constructs exactly one per query so its dedup maps accumulate
// over every bucket the chain produces, not just the one passed to a
// single Rank call.
type Final struct {
	fieldID     uint16
	hasDistinct bool
	seenNumeric map[float64]bool
	seenString  map[string]bool
}

// NewFinal builds a Final stage. When hasDistinct is false it is a
// pass-through.
func NewFinal(fieldID uint16, hasDistinct bool) *Final {
	return &Final{
		fieldID:     fieldID,
		hasDistinct: hasDistinct,
		seenNumeric: make(map[float64]bool),
		seenString:  make(map[string]bool),
	}
}

func (f *Final) Name() string { return "final" }

func (f *Final) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	if !f.hasDistinct {
		return []Bucket{b}, nil
	}

	kept := roaring.NewBitmap()
	it := b.Ids.Iterator()
	for it.HasNext() {
		docid := it.Next()
		dup, err := f.seen(ctx, docid)
		if err != nil {
			return nil, err
		}
		if !dup {
			kept.Add(docid)
		}
	}
	if kept.IsEmpty() {
		return nil, nil
	}
	return []Bucket{{Op: b.Op, Ids: kept}}, nil
}

func (f *Final) seen(ctx Context, docid uint32) (bool, error) {
	num, ok, err := ctx.FieldDocidFacetNumber(f.fieldID, docid)
	if err != nil {
		return false, err
	}
	if ok {
		if f.seenNumeric[num] {
			return true, nil
		}
		f.seenNumeric[num] = true
		return false, nil
	}

	strs, err := ctx.FieldDocidFacetStrings(f.fieldID, docid)
	if err != nil {
		return false, err
	}
	if len(strs) == 0 {
		// No recorded value at all: never deduplicated against anything.
		return false, nil
	}
	for _, s := range strs {
		if f.seenString[s] {
			return true, nil
		}
	}
	for _, s := range strs {
		f.seenString[s] = true
	}
	return false, nil
}
