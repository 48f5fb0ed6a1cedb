// Package extract walks staged documents and emits the per-database
// postings that the writer later merges in: word occurrences, word-pair
// proximities, facet values, field word counts, and geo points.
package extract

import "github.com/lexidx/lexidx/internal/sorter"

// MaxWordLength caps how long a normalized token can be before it is
// dropped rather than indexed; guards against pathological inputs (a
// base64 blob stuffed in a text field) blowing up word-keyed databases.
const MaxWordLength = 512

// MaxPositionsPerAttribute bounds how many word positions a single
// attribute contributes per document; tokens beyond this position are
// skipped rather than indexed.
const MaxPositionsPerAttribute = 65536

// Context carries the per-batch configuration every extractor needs:
// which fields are searchable/faceted/geo, which fields are exact-match
// attributes, and the stop word list to skip during tokenization.
type Context struct {
	PrimaryKeyFieldID uint16

	GeoLatFieldID uint16
	GeoLngFieldID uint16
	HasGeoFields  bool

	SearchableFieldIDs map[uint16]bool
	FacetedFieldIDs    map[uint16]bool
	ExactFieldIDs      map[uint16]bool
	StopWords          map[string]bool

	MaxPositionsPerAttribute uint32
}

// NewContext builds a Context with MaxPositionsPerAttribute defaulted when
// zero.
func NewContext() *Context {
	return &Context{
		SearchableFieldIDs:       map[uint16]bool{},
		FacetedFieldIDs:          map[uint16]bool{},
		ExactFieldIDs:            map[uint16]bool{},
		StopWords:                map[string]bool{},
		MaxPositionsPerAttribute: MaxPositionsPerAttribute,
	}
}

// IsSearchable reports whether fieldID should be tokenized. An empty
// SearchableFieldIDs set means "every field is searchable", matching the
// default when no explicit searchable-attributes list has been configured.
func (c *Context) IsSearchable(fieldID uint16) bool {
	if len(c.SearchableFieldIDs) == 0 {
		return true
	}
	return c.SearchableFieldIDs[fieldID]
}

// IsFaceted reports whether fieldID should be extracted into the facet
// databases.
func (c *Context) IsFaceted(fieldID uint16) bool {
	return c.FacetedFieldIDs[fieldID]
}

// IsExact reports whether fieldID is configured as an exact-match
// attribute, routing its tokens to the ExactWordDocids sorter instead of
// WordDocids. The writer commits both sorters into the same word-docids
// database, so at query time exact attributes match like any other field.
func (c *Context) IsExact(fieldID uint16) bool {
	return c.ExactFieldIDs[fieldID]
}

// Sorters bundles one sorter per target database an extraction pass feeds.
// A single worker owns one Sorters value for the documents it processes;
// Pool.Run merges every worker's sorters together at the end of extraction.
type Sorters struct {
	WordDocids         *sorter.Sorter // word -> bitmap
	ExactWordDocids    *sorter.Sorter // word -> bitmap, exact-attribute tokens
	DocidWordPositions *sorter.Sorter // (docid, word) -> packed position bitmap
	WordPositionLevel0 *sorter.Sorter // (word, level=0, pos, pos) -> bitmap
	WordPairProximity  *sorter.Sorter // (word1, word2, prox) -> bitmap
	FieldWordCount     *sorter.Sorter // (field, word-count) -> bitmap
	FacetNumbers       *sorter.Sorter // (field, docid) -> f64
	FacetStrings       *sorter.Sorter // (field, docid, norm) -> original
	FacetExists        *sorter.Sorter // field -> bitmap (has any facet value)
	FacetNumberLevel0  *sorter.Sorter // (field, level=0, num, num) -> bitmap
	FacetStringLevel0  *sorter.Sorter // (field, normalized) -> (original, bitmap)
	GeoPoints          *sorter.Sorter // docid -> (lat, lng) as 16 bytes
}
