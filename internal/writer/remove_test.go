package writer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/sorter"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

func TestRemoveSortersSubtractsReplacedDocument(t *testing.T) {
	env := newTestEnv(t)
	fields := fieldmap.New()
	titleID, err := fields.ID("title")
	require.NoError(t, err)
	tagID, err := fields.ID("tag")
	require.NoError(t, err)

	ctx := extract.NewContext()
	ctx.SearchableFieldIDs[titleID] = true
	ctx.FacetedFieldIDs[tagID] = true

	doc1v1 := map[string]any{"title": "red fox", "tag": "Rock"}
	doc2 := map[string]any{"title": "red dog", "tag": "Rock"}

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, Commit(txn, &Batch{
		Fields:  fields,
		Sorters: mergeTwo(t, extractOneDoc(t, ctx, fields, 1, doc1v1), extractOneDoc(t, ctx, fields, 2, doc2)),
	}))
	require.NoError(t, txn.Commit())

	// replace doc 1: its old words and its facet membership go away
	doc1v2 := map[string]any{"title": "blue cat", "tag": "Jazz"}
	txn, err = env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, Commit(txn, &Batch{
		Fields:   fields,
		Sorters:  extractOneDoc(t, ctx, fields, 1, doc1v2),
		Removals: extractOneDoc(t, ctx, fields, 1, doc1v1),
	}))
	require.NoError(t, txn.Commit())

	rtxn := env.ReadTxn()
	defer rtxn.Abort()

	// "fox" belonged only to doc 1's old version: key fully gone
	enc, err := rtxn.Get(badger.DBWord, codec.WordKey("fox"))
	require.NoError(t, err)
	assert.Empty(t, enc)

	// "red" survives through doc 2 alone
	enc, err = rtxn.Get(badger.DBWord, codec.WordKey("red"))
	require.NoError(t, err)
	bm, err := codec.DecodeBitmap(enc)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, bm.ToArray())

	// the new version's words are present
	enc, err = rtxn.Get(badger.DBWord, codec.WordKey("blue"))
	require.NoError(t, err)
	bm, err = codec.DecodeBitmap(enc)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, bm.ToArray())

	// per-docid position entries for the old words are deleted
	enc, err = rtxn.Get(badger.DBDocidWordPositions, codec.DocidWordKey(1, "fox"))
	require.NoError(t, err)
	assert.Empty(t, enc)

	// the shared string facet keeps its original form, minus doc 1
	enc, err = rtxn.Get(badger.DBFacetStringLevels, codec.FacetStringKey(tagID, "rock"))
	require.NoError(t, err)
	original, bitmapRaw, err := sorter.SplitPrefixValue(enc)
	require.NoError(t, err)
	assert.Equal(t, "Rock", original)
	bm, err = codec.DecodeBitmap(bitmapRaw)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2}, bm.ToArray())

	// DB 2 no longer holds the removed word
	wordsAfter, err := DistinctWords(rtxn)
	require.NoError(t, err)
	assert.NotContains(t, wordsAfter, "fox")
	assert.Contains(t, wordsAfter, "cat")
}

func TestCommitClearsStaleLevelGroupsOnShrink(t *testing.T) {
	env := newTestEnv(t)
	fields := fieldmap.New()
	bodyID, err := fields.ID("body")
	require.NoError(t, err)

	ctx := extract.NewContext()
	ctx.SearchableFieldIDs[bodyID] = true

	// 20 occurrences of the same word spread over distinct positions is
	// enough level-0 entries to grow a level-1 tier
	long := strings.Repeat("verylongword filler ", 20)
	docV1 := map[string]any{"body": long}

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, Commit(txn, &Batch{Fields: fields, Sorters: extractOneDoc(t, ctx, fields, 1, docV1)}))
	require.NoError(t, txn.Commit())

	level1Count := func() int {
		rtxn := env.ReadTxn()
		defer rtxn.Abort()
		count := 0
		err := rtxn.Iterate(badger.DBWordPositionLevels, badger.IterOptions{Prefix: codec.LevelPrefix("verylongword", 1)}, func(_, _ []byte) (bool, error) {
			count++
			return true, nil
		})
		require.NoError(t, err)
		return count
	}
	require.Greater(t, level1Count(), 0)

	// the replacement mentions the word just twice: level 0 shrinks below
	// the grouping threshold and every level-1 entry must disappear
	docV2 := map[string]any{"body": "verylongword then verylongword"}
	txn, err = env.WriteTxn()
	require.NoError(t, err)
	require.NoError(t, Commit(txn, &Batch{
		Fields:   fields,
		Sorters:  extractOneDoc(t, ctx, fields, 1, docV2),
		Removals: extractOneDoc(t, ctx, fields, 1, docV1),
	}))
	require.NoError(t, txn.Commit())

	assert.Equal(t, 0, level1Count())
}

// mergeTwo drains b's sorters into a, returning a with both documents'
// postings merged the way extract.Pool does across workers.
func mergeTwo(t *testing.T, a, b *extract.Sorters) *extract.Sorters {
	t.Helper()
	pairs := []struct{ dst, src *sorter.Sorter }{
		{a.WordDocids, b.WordDocids},
		{a.ExactWordDocids, b.ExactWordDocids},
		{a.DocidWordPositions, b.DocidWordPositions},
		{a.WordPositionLevel0, b.WordPositionLevel0},
		{a.WordPairProximity, b.WordPairProximity},
		{a.FieldWordCount, b.FieldWordCount},
		{a.FacetNumbers, b.FacetNumbers},
		{a.FacetStrings, b.FacetStrings},
		{a.FacetExists, b.FacetExists},
		{a.FacetNumberLevel0, b.FacetNumberLevel0},
		{a.FacetStringLevel0, b.FacetStringLevel0},
		{a.GeoPoints, b.GeoPoints},
	}
	for _, p := range pairs {
		require.NoError(t, p.src.Finish(func(key, value []byte) error {
			return p.dst.Push(key, value)
		}))
	}
	return a
}
