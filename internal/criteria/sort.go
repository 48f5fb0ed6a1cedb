package criteria

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Sort orders a bucket by a single field's value: numeric facet values
// compare numerically, falling back to the field's string facet values
// when a document has no numeric value recorded. Documents with no
// value at all for the field sort after every document that has one,
// regardless of Descending.
type Sort struct {
	FieldID    uint16
	Descending bool
}

func (s Sort) Name() string { return "sort" }

type sortEntry struct {
	docid  uint32
	hasNum bool
	num    float64
	hasStr bool
	str    string
}

func (s Sort) Rank(ctx Context, b Bucket) ([]Bucket, error) {
	entries := make([]sortEntry, 0, b.Ids.GetCardinality())
	it := b.Ids.Iterator()
	for it.HasNext() {
		docid := it.Next()
		e := sortEntry{docid: docid}
		num, ok, err := ctx.FieldDocidFacetNumber(s.FieldID, docid)
		if err != nil {
			return nil, err
		}
		if ok {
			e.hasNum = true
			e.num = num
		} else {
			strs, err := ctx.FieldDocidFacetStrings(s.FieldID, docid)
			if err != nil {
				return nil, err
			}
			if len(strs) > 0 {
				e.hasStr = true
				e.str = strs[0]
			}
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		aHas := a.hasNum || a.hasStr
		cHas := c.hasNum || c.hasStr
		if aHas != cHas {
			return aHas
		}
		if !aHas {
			return false
		}
		if sortEntriesEqual(a, c) {
			return false
		}
		less := compareSortEntries(a, c)
		if s.Descending {
			return !less
		}
		return less
	})

	out := make([]Bucket, 0, len(entries))
	i := 0
	for i < len(entries) {
		j := i + 1
		for j < len(entries) && sortEntriesEqual(entries[i], entries[j]) {
			j++
		}
		bm := roaring.NewBitmap()
		for _, e := range entries[i:j] {
			bm.Add(e.docid)
		}
		out = append(out, Bucket{Op: b.Op, Ids: bm})
		i = j
	}
	return out, nil
}

func compareSortEntries(a, c sortEntry) bool {
	if a.hasNum && c.hasNum {
		return a.num < c.num
	}
	if a.hasStr && c.hasStr {
		return a.str < c.str
	}
	// one numeric, one string value: numeric sorts ahead by convention.
	return a.hasNum
}

func sortEntriesEqual(a, c sortEntry) bool {
	if a.hasNum && c.hasNum {
		return a.num == c.num
	}
	if a.hasStr && c.hasStr {
		return a.str == c.str
	}
	return a.hasNum == c.hasNum && a.hasStr == c.hasStr && !a.hasNum && !a.hasStr
}
