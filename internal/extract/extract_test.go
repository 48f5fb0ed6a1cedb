package extract

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/sorter"
)

// jnum builds the json.Number form documents.AsFloat64 expects, matching
// how a JSON-decoded document's numeric leaves arrive.
func jnum(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

func testSorterOpts(t *testing.T) SorterOptions {
	t.Helper()
	return SorterOptions{MaxMemoryBytes: 1 << 20, TmpDir: t.TempDir()}
}

func drain(t *testing.T, s *sorter.Sorter) map[string][]byte {
	t.Helper()
	out := map[string][]byte{}
	require.NoError(t, s.Finish(func(key, value []byte) error {
		out[string(key)] = append([]byte{}, value...)
		return nil
	}))
	return out
}

func drainDocids(t *testing.T, s *sorter.Sorter) map[string][]uint32 {
	t.Helper()
	out := map[string][]uint32{}
	require.NoError(t, s.Finish(func(key, value []byte) error {
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return err
		}
		out[string(key)] = bm.ToArray()
		return nil
	}))
	return out
}

func extractOne(t *testing.T, ctx *Context, docid uint32, flat map[string]any) (*Sorters, *fieldmap.FieldsMap) {
	t.Helper()
	fields := fieldmap.New()
	for name := range flat {
		_, err := fields.ID(name)
		require.NoError(t, err)
	}
	sorters := NewSorters(testSorterOpts(t))
	require.NoError(t, Document(ctx, docid, flat, fields.Lookup, sorters))
	return sorters, fields
}

func TestExtractWordDocidsNormalizesAndSkipsStopWords(t *testing.T) {
	ctx := NewContext()
	ctx.StopWords["the"] = true

	sorters, _ := extractOne(t, ctx, 7, map[string]any{"title": "The QUICK Fox"})

	words := drainDocids(t, sorters.WordDocids)
	assert.Equal(t, []uint32{7}, words["quick"])
	assert.Equal(t, []uint32{7}, words["fox"])
	assert.NotContains(t, words, "the")
	assert.NotContains(t, words, "QUICK")
}

func TestExtractPositionsAndFieldWordCount(t *testing.T) {
	ctx := NewContext()
	sorters, fields := extractOne(t, ctx, 3, map[string]any{"body": "alpha beta"})
	fid, ok := fields.Lookup("body")
	require.True(t, ok)

	positions := drainDocids(t, sorters.DocidWordPositions)
	assert.Equal(t, []uint32{codec.PackPosition(fid, 0)}, positions[string(codec.DocidWordKey(3, "alpha"))])
	assert.Equal(t, []uint32{codec.PackPosition(fid, 1)}, positions[string(codec.DocidWordKey(3, "beta"))])

	counts := drainDocids(t, sorters.FieldWordCount)
	assert.Equal(t, []uint32{3}, counts[string(codec.FieldWordCountKey(fid, 2))])
}

func TestExtractProximityPairsOneSidedOffset(t *testing.T) {
	ctx := NewContext()
	sorters, _ := extractOne(t, ctx, 1, map[string]any{"body": "quick brown fox"})

	pairs := drainDocids(t, sorters.WordPairProximity)
	// adjacent words: (w1, w2, 1) plus the reversed (w2, w1, 2) entry
	assert.Equal(t, []uint32{1}, pairs[string(codec.WordPairProximityKey("quick", "brown", 1))])
	assert.Equal(t, []uint32{1}, pairs[string(codec.WordPairProximityKey("brown", "quick", 2))])
	// distance two across the middle word
	assert.Equal(t, []uint32{1}, pairs[string(codec.WordPairProximityKey("quick", "fox", 2))])
	assert.Equal(t, []uint32{1}, pairs[string(codec.WordPairProximityKey("fox", "quick", 3))])
	assert.NotContains(t, pairs, string(codec.WordPairProximityKey("fox", "quick", 2)))
}

func TestExtractHardSeparatorWidensProximityGap(t *testing.T) {
	ctx := NewContext()
	sorters, _ := extractOne(t, ctx, 1, map[string]any{"body": "alpha. beta"})

	// the sentence boundary pushes the pair to distance 8, past the
	// window, so no materialized pair survives in either direction.
	pairs := drainDocids(t, sorters.WordPairProximity)
	assert.Empty(t, pairs)
}

func TestExtractFacetValues(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	yearID, err := fields.ID("year")
	require.NoError(t, err)
	tagID, err := fields.ID("tag")
	require.NoError(t, err)
	ctx.FacetedFieldIDs[yearID] = true
	ctx.FacetedFieldIDs[tagID] = true

	sorters := NewSorters(testSorterOpts(t))
	require.NoError(t, Document(ctx, 9, map[string]any{"year": jnum(1990), "tag": "Rock"}, fields.Lookup, sorters))

	numbers := drain(t, sorters.FacetNumbers)
	assert.Equal(t, codec.PutF64Ordered(1990), numbers[string(codec.FieldDocidFacetNumberKey(yearID, 9))])

	level0 := drainDocids(t, sorters.FacetNumberLevel0)
	assert.Equal(t, []uint32{9}, level0[string(codec.FacetNumberLevelKey(yearID, 0, 1990, 1990))])

	strings := drain(t, sorters.FacetStrings)
	assert.Equal(t, []byte("Rock"), strings[string(codec.FieldDocidFacetStringKey(tagID, 9, "rock"))])

	stringLevel0 := drain(t, sorters.FacetStringLevel0)
	original, bitmapRaw, err := sorter.SplitPrefixValue(stringLevel0[string(codec.FacetStringKey(tagID, "rock"))])
	require.NoError(t, err)
	assert.Equal(t, "Rock", original)
	bm, err := codec.DecodeBitmap(bitmapRaw)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, bm.ToArray())

	exists := drainDocids(t, sorters.FacetExists)
	assert.Equal(t, []uint32{9}, exists[string(codec.MainFacetExistsKey(yearID))])
	assert.Equal(t, []uint32{9}, exists[string(codec.MainFacetExistsKey(tagID))])
}

func TestExtractFacetArrayBroadcast(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	tagID, err := fields.ID("tags")
	require.NoError(t, err)
	ctx.FacetedFieldIDs[tagID] = true

	sorters := NewSorters(testSorterOpts(t))
	require.NoError(t, Document(ctx, 4, map[string]any{"tags": []any{"rock", "jazz"}}, fields.Lookup, sorters))

	stringLevel0 := drain(t, sorters.FacetStringLevel0)
	assert.Contains(t, stringLevel0, string(codec.FacetStringKey(tagID, "rock")))
	assert.Contains(t, stringLevel0, string(codec.FacetStringKey(tagID, "jazz")))
}

func TestExtractGeoPoint(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	latID, err := fields.ID("_geo.lat")
	require.NoError(t, err)
	lngID, err := fields.ID("_geo.lng")
	require.NoError(t, err)
	ctx.HasGeoFields = true
	ctx.GeoLatFieldID = latID
	ctx.GeoLngFieldID = lngID

	sorters := NewSorters(testSorterOpts(t))
	require.NoError(t, Document(ctx, 2, map[string]any{"_geo.lat": jnum(50.63), "_geo.lng": jnum(3.09)}, fields.Lookup, sorters))

	points := drain(t, sorters.GeoPoints)
	lat, lng := codec.GetGeoPoint(points[string(codec.GeoPointKey(2))])
	assert.Equal(t, 50.63, lat)
	assert.Equal(t, 3.09, lng)
}

func TestExtractGeoPointOutOfRangeFails(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	latID, err := fields.ID("_geo.lat")
	require.NoError(t, err)
	lngID, err := fields.ID("_geo.lng")
	require.NoError(t, err)
	ctx.HasGeoFields = true
	ctx.GeoLatFieldID = latID
	ctx.GeoLngFieldID = lngID

	sorters := NewSorters(testSorterOpts(t))
	err = Document(ctx, 2, map[string]any{"_geo.lat": jnum(91), "_geo.lng": jnum(3.09)}, fields.Lookup, sorters)
	require.Error(t, err)
}

func TestExtractExactAttributeRouting(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	skuID, err := fields.ID("sku")
	require.NoError(t, err)
	ctx.ExactFieldIDs[skuID] = true

	sorters := NewSorters(testSorterOpts(t))
	require.NoError(t, Document(ctx, 5, map[string]any{"sku": "ab123"}, fields.Lookup, sorters))

	exact := drainDocids(t, sorters.ExactWordDocids)
	assert.Equal(t, []uint32{5}, exact["ab123"])
	words := drainDocids(t, sorters.WordDocids)
	assert.Empty(t, words)
}

func TestExtractSearchableFieldFilter(t *testing.T) {
	ctx := NewContext()
	fields := fieldmap.New()
	titleID, err := fields.ID("title")
	require.NoError(t, err)
	_, err = fields.ID("internal")
	require.NoError(t, err)
	ctx.SearchableFieldIDs[titleID] = true

	sorters := NewSorters(testSorterOpts(t))
	doc := map[string]any{"title": "visible", "internal": "hidden"}
	require.NoError(t, Document(ctx, 6, doc, fields.Lookup, sorters))

	words := drainDocids(t, sorters.WordDocids)
	assert.Contains(t, words, "visible")
	assert.NotContains(t, words, "hidden")
}
