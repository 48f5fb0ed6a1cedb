package lexidx

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/criteria"
	"github.com/lexidx/lexidx/internal/facet"
	"github.com/lexidx/lexidx/internal/settings"
	"github.com/lexidx/lexidx/internal/writer"
)

// FacetValues is one field's distribution: either a ranked list of
// string values with their counts, or a numeric min/max range, never
// both (HasNumbers discriminates which is populated).
type FacetValues struct {
	Strings    []facet.StringValue
	Numbers    facet.NumberRange
	HasNumbers bool
}

// FacetDistribution computes per-facet-value counts across a candidate
// set, defaulting to every document in the index when none is supplied.
type FacetDistribution struct {
	idx        *Index
	txn        *Txn
	candidates *roaring.Bitmap
	fields     []string
}

// NewFacetDistribution builds a request against txn's snapshot.
func (idx *Index) NewFacetDistribution(txn *Txn) *FacetDistribution {
	return &FacetDistribution{idx: idx, txn: txn}
}

// Candidates restricts the distribution to c; a nil Candidates call (the
// default) computes it over every live document.
func (f *FacetDistribution) Candidates(c *roaring.Bitmap) *FacetDistribution {
	f.candidates = c
	return f
}

// Fields restricts which facets are computed; the default is every
// configured filterable field.
func (f *FacetDistribution) Fields(names ...string) *FacetDistribution {
	f.fields = names
	return f
}

// Execute computes the distribution: {field -> FacetValues}. A field with
// no intersecting value at all in the candidate set is omitted from the
// result.
func (f *FacetDistribution) Execute() (map[string]FacetValues, error) {
	fields, err := writer.LoadFieldsMap(f.txn)
	if err != nil {
		return nil, err
	}
	stored, err := settings.Load(f.txn)
	if err != nil {
		return nil, err
	}

	faceted := map[uint16]bool{}
	for _, name := range stored.FilterableFields {
		if id, ok := fields.Lookup(name); ok {
			faceted[id] = true
		}
	}

	var distinctID uint16
	var hasDistinct bool
	if stored.DistinctField != "" {
		if id, ok := fields.Lookup(stored.DistinctField); ok {
			distinctID, hasDistinct = id, true
		}
	}

	dist := &facet.Distribution{
		Txn:             f.txn,
		Fields:          fields,
		FacetedFieldIDs: faceted,
		DistinctFieldID: distinctID,
		HasDistinct:     hasDistinct,
	}

	candidates := f.candidates
	if candidates == nil {
		candidates, err = criteria.AllDocids(f.txn)
		if err != nil {
			return nil, err
		}
	}

	names := f.fields
	if len(names) == 0 {
		names = stored.FilterableFields
	}

	out := map[string]FacetValues{}
	for _, name := range names {
		strs, err := dist.Strings(name, candidates)
		if err != nil {
			return nil, err
		}
		if len(strs) > 0 {
			out[name] = FacetValues{Strings: strs}
			continue
		}
		nr, ok, err := dist.Number(name, candidates)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = FacetValues{Numbers: nr, HasNumbers: true}
		}
	}
	return out, nil
}
