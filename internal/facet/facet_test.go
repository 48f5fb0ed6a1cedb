package facet

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
	"github.com/lexidx/lexidx/internal/writer"
)

func jnum(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

func buildDistribution(t *testing.T, docs map[uint32]map[string]any, facetedFields []string, distinctField string) (*fieldmap.FieldsMap, *Distribution) {
	t.Helper()
	logger := arbor.NewLogger()
	env, err := badger.Open(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	fields := fieldmap.New()
	ctx := extract.NewContext()
	faceted := map[uint16]bool{}
	for _, name := range facetedFields {
		fid, err := fields.ID(name)
		require.NoError(t, err)
		ctx.FacetedFieldIDs[fid] = true
		faceted[fid] = true
	}

	var distinctID uint16
	hasDistinct := distinctField != ""
	if hasDistinct {
		id, err := fields.ID(distinctField)
		require.NoError(t, err)
		distinctID = id
		ctx.FacetedFieldIDs[id] = true
		faceted[id] = true
	}

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	var docids []uint32
	for docid := range docs {
		docids = append(docids, docid)
	}
	for _, docid := range docids {
		s := extract.NewSorters(extract.SorterOptions{MaxMemoryBytes: 1 << 20})
		require.NoError(t, extract.Document(ctx, docid, docs[docid], fields.Lookup, s))
		require.NoError(t, writer.CommitSorters(txn, s))
	}
	require.NoError(t, txn.Commit())

	readTxn := env.ReadTxn()
	t.Cleanup(readTxn.Abort)

	return fields, &Distribution{
		Txn:             readTxn,
		Fields:          fields,
		FacetedFieldIDs: faceted,
		DistinctFieldID: distinctID,
		HasDistinct:     hasDistinct,
	}
}

func allDocids(docs map[uint32]map[string]any) []uint32 {
	out := make([]uint32, 0, len(docs))
	for id := range docs {
		out = append(out, id)
	}
	return out
}

func TestStringsCountsPerValue(t *testing.T) {
	docs := map[uint32]map[string]any{
		1: {"genre": "scifi"},
		2: {"genre": "drama"},
		3: {"genre": "scifi"},
	}
	_, dist := buildDistribution(t, docs, []string{"genre"}, "")

	values, err := dist.Strings("genre", bmOf(allDocids(docs)...))
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "scifi", values[0].Value, "most frequent value ranks first")
	assert.EqualValues(t, 2, values[0].Count)
	assert.Equal(t, "drama", values[1].Value)
	assert.EqualValues(t, 1, values[1].Count)
}

func TestStringsAttributeNotFaceted(t *testing.T) {
	docs := map[uint32]map[string]any{1: {"genre": "scifi"}}
	_, dist := buildDistribution(t, docs, []string{"genre"}, "")

	_, err := dist.Strings("title", bmOf(1))
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrAttributeNotFilterable, ue.Code)
}

func TestNumberMinMax(t *testing.T) {
	docs := map[uint32]map[string]any{
		1: {"price": jnum(9.99)},
		2: {"price": jnum(19.99)},
		3: {"price": jnum(4.50)},
	}
	_, dist := buildDistribution(t, docs, []string{"price"}, "")

	r, ok, err := dist.Number("price", bmOf(allDocids(docs)...))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4.50, r.Min)
	assert.Equal(t, 19.99, r.Max)
}

func TestStringsWithDistinctFieldCollapsesDuplicates(t *testing.T) {
	// Two documents share the same sku (the distinct field); only one
	// should contribute to the genre count.
	docs := map[uint32]map[string]any{
		1: {"genre": "scifi", "sku": "abc"},
		2: {"genre": "scifi", "sku": "abc"},
		3: {"genre": "drama", "sku": "xyz"},
	}
	_, dist := buildDistribution(t, docs, []string{"genre"}, "sku")

	values, err := dist.Strings("genre", bmOf(allDocids(docs)...))
	require.NoError(t, err)
	total := uint64(0)
	for _, v := range values {
		total += v.Count
	}
	assert.EqualValues(t, 2, total, "duplicate sku collapses to one representative")
}

func bmOf(ids ...uint32) *roaring.Bitmap {
	return roaring.BitmapOf(ids...)
}
