package lexidx

import (
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/settings"
)

// buildExtractContext turns the persisted settings into the extraction
// context every IndexDocuments.Execute run (and settings-triggered
// re-extraction) builds its sorters against. Mirrors the private helper
// internal/settings keeps for its own re-extraction pass, since that
// package's version isn't exported for use outside its own Execute.
func buildExtractContext(fields *fieldmap.FieldsMap, s settings.Stored) *extract.Context {
	ctx := extract.NewContext()

	if s.PrimaryKey != "" {
		if id, ok := fields.Lookup(s.PrimaryKey); ok {
			ctx.PrimaryKeyFieldID = id
		}
	}

	for _, name := range s.SearchableFields {
		if id, ok := fields.Lookup(name); ok {
			ctx.SearchableFieldIDs[id] = true
		}
	}

	faceted := map[string]bool{}
	for _, name := range s.FilterableFields {
		faceted[name] = true
	}
	for _, name := range s.SortableFields {
		faceted[name] = true
	}
	if s.DistinctField != "" {
		faceted[s.DistinctField] = true
	}
	for name := range faceted {
		if id, ok := fields.Lookup(name); ok {
			ctx.FacetedFieldIDs[id] = true
		}
	}

	for _, w := range s.StopWords {
		ctx.StopWords[w] = true
	}

	if latID, ok := fields.Lookup("_geo.lat"); ok {
		if lngID, ok2 := fields.Lookup("_geo.lng"); ok2 {
			ctx.GeoLatFieldID = latID
			ctx.GeoLngFieldID = lngID
			ctx.HasGeoFields = true
		}
	}

	return ctx
}

// facetedFieldIDs flattens an extract.Context's faceted-field set into the
// slice writer.Commit's Batch.FacetedNumberIDs needs for DB 10's level
// hierarchy. Its name is kept even though both numeric and string facets
// pass through it, matching the field writer.Commit reads it into.
func facetedFieldIDs(ctx *extract.Context) []uint16 {
	ids := make([]uint16, 0, len(ctx.FacetedFieldIDs))
	for id := range ctx.FacetedFieldIDs {
		ids = append(ids, id)
	}
	return ids
}
