// Package facet computes per-candidate-set facet distributions: string
// facet value counts and numeric facet min/max, against whatever
// candidate docid set a search already resolved.
package facet

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/sorter"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// StringValue is one distinct facet value and how many candidates hold it.
type StringValue struct {
	Value string
	Count uint64
}

// NumberRange is a faceted numeric field's min/max across a candidate set.
type NumberRange struct {
	Min, Max float64
}

// Distribution computes facet counts against one read transaction's
// snapshot. DistinctFieldID/HasDistinct mirror internal/criteria.Final:
// when a distinct field is configured, counts are computed over one
// representative document per distinct value rather than every
// candidate, matching how the criterion chain's Final stage
// deduplicates search results.
type Distribution struct {
	Txn             *badger.Txn
	Fields          *fieldmap.FieldsMap
	FacetedFieldIDs map[uint16]bool

	DistinctFieldID uint16
	HasDistinct     bool
}

// Strings returns every distinct value recorded for fieldName within
// candidates, most frequent first (ties broken lexicographically).
func (d *Distribution) Strings(fieldName string, candidates *roaring.Bitmap) ([]StringValue, error) {
	fid, err := d.resolveFaceted(fieldName)
	if err != nil {
		return nil, err
	}
	reps, err := d.representatives(candidates)
	if err != nil {
		return nil, err
	}

	var out []StringValue
	prefix := codec.FacetStringPrefix(fid)
	err = d.Txn.Iterate(badger.DBFacetStringLevels, badger.IterOptions{Prefix: prefix}, func(_, value []byte) (bool, error) {
		original, bmBytes, err := sorter.SplitPrefixValue(value)
		if err != nil {
			return false, err
		}
		bm, err := codec.DecodeBitmap(bmBytes)
		if err != nil {
			return false, err
		}
		matched := roaring.And(bm, reps)
		if matched.IsEmpty() {
			return true, nil
		}
		out = append(out, StringValue{Value: original, Count: matched.GetCardinality()})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}

// Number returns the min/max facet value recorded for fieldName within
// candidates, and false if no candidate carries a value at all.
func (d *Distribution) Number(fieldName string, candidates *roaring.Bitmap) (NumberRange, bool, error) {
	fid, err := d.resolveFaceted(fieldName)
	if err != nil {
		return NumberRange{}, false, err
	}
	reps, err := d.representatives(candidates)
	if err != nil {
		return NumberRange{}, false, err
	}

	var result NumberRange
	found := false
	prefix := codec.FacetNumberLevelPrefix(fid, 0)
	err = d.Txn.Iterate(badger.DBFacetNumberLevels, badger.IterOptions{Prefix: prefix}, func(key, value []byte) (bool, error) {
		n := len(key)
		left := codec.GetF64Ordered(key[n-16 : n-8])
		right := codec.GetF64Ordered(key[n-8:])
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return false, err
		}
		if roaring.And(bm, reps).IsEmpty() {
			return true, nil
		}
		if !found || left < result.Min {
			result.Min = left
		}
		if !found || right > result.Max {
			result.Max = right
		}
		found = true
		return true, nil
	})
	if err != nil {
		return NumberRange{}, false, err
	}
	return result, found, nil
}

func (d *Distribution) resolveFaceted(fieldName string) (uint16, error) {
	fid, ok := d.Fields.Lookup(fieldName)
	if !ok || !d.FacetedFieldIDs[fid] {
		return 0, common.NewUserError(common.ErrAttributeNotFilterable, "attribute %q is not faceted", fieldName)
	}
	return fid, nil
}

// representatives narrows candidates to one document per distinct value
// of the configured distinct field, the same first-occurrence-wins rule
// internal/criteria.Final applies to search results. With no distinct
// field configured it returns candidates unchanged.
func (d *Distribution) representatives(candidates *roaring.Bitmap) (*roaring.Bitmap, error) {
	if !d.HasDistinct {
		return candidates, nil
	}

	seenNumeric := map[float64]bool{}
	seenString := map[string]bool{}
	kept := roaring.NewBitmap()

	it := candidates.Iterator()
	for it.HasNext() {
		docid := it.Next()
		num, ok, err := d.fieldDocidFacetNumber(d.DistinctFieldID, docid)
		if err != nil {
			return nil, err
		}
		if ok {
			if seenNumeric[num] {
				continue
			}
			seenNumeric[num] = true
			kept.Add(docid)
			continue
		}

		strs, err := d.fieldDocidFacetStrings(d.DistinctFieldID, docid)
		if err != nil {
			return nil, err
		}
		if len(strs) == 0 {
			kept.Add(docid)
			continue
		}
		dup := false
		for _, s := range strs {
			if seenString[s] {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, s := range strs {
			seenString[s] = true
		}
		kept.Add(docid)
	}
	return kept, nil
}

func (d *Distribution) fieldDocidFacetNumber(fieldID uint16, docid uint32) (float64, bool, error) {
	blob, err := d.Txn.Get(badger.DBFieldDocidFacetNumber, codec.FieldDocidFacetNumberKey(fieldID, docid))
	if err != nil {
		return 0, false, err
	}
	if len(blob) != 8 {
		return 0, false, nil
	}
	return codec.GetF64Ordered(blob), true, nil
}

func (d *Distribution) fieldDocidFacetStrings(fieldID uint16, docid uint32) ([]string, error) {
	prefix := codec.FieldDocidFacetStringPrefix(fieldID, docid)
	var out []string
	err := d.Txn.Iterate(badger.DBFieldDocidFacetString, badger.IterOptions{Prefix: prefix}, func(_, value []byte) (bool, error) {
		out = append(out, string(value))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
