package settings

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/documents"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
	"github.com/lexidx/lexidx/internal/writer"
)

func jnum(f float64) json.Number {
	return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
}

// seedIndex writes docs as real DB 14 documents (plus their initial
// extraction pass) against a fresh environment, returning it alongside
// the fields map so a test can then build an Applier on top.
func seedIndex(t *testing.T, docs map[uint32]map[string]any, searchable []string) (*badger.Environment, *fieldmap.FieldsMap) {
	t.Helper()
	logger := arbor.NewLogger()
	env, err := badger.Open(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	fields := fieldmap.New()
	for docid, flat := range docs {
		for k := range flat {
			_, err := fields.ID(k)
			require.NoError(t, err)
		}
		_ = docid
	}

	ctx := extract.NewContext()
	for _, name := range searchable {
		id, ok := fields.Lookup(name)
		require.True(t, ok)
		ctx.SearchableFieldIDs[id] = true
	}

	txn, err := env.WriteTxn()
	require.NoError(t, err)

	var docWrites []writer.DocumentWrite
	sorters := extract.NewSorters(extract.SorterOptions{MaxMemoryBytes: 1 << 20})
	for docid, flat := range docs {
		require.NoError(t, extract.Document(ctx, docid, flat, fields.Lookup, sorters))
		obkv, err := documents.BuildOBKV(fields, flat)
		require.NoError(t, err)
		docWrites = append(docWrites, writer.DocumentWrite{Docid: docid, OBKV: obkv})
	}

	require.NoError(t, writer.Commit(txn, &writer.Batch{
		Fields:    fields,
		Sorters:   sorters,
		Documents: docWrites,
	}))
	require.NoError(t, txn.Commit())

	return env, fields
}

func TestDefaultSettingsForFreshIndex(t *testing.T) {
	env, fields := seedIndex(t, map[uint32]map[string]any{1: {"title": "hello"}}, nil)
	txn, err := env.WriteTxn()
	require.NoError(t, err)
	defer txn.Abort()

	a, err := New(txn, fields)
	require.NoError(t, err)
	assert.Equal(t, DefaultCriteria(), a.current.Criteria)
	assert.Equal(t, []string{"*"}, a.current.DisplayedFields)
}

func TestSetDisplayedFieldsIsMetadataOnlyAndIdempotent(t *testing.T) {
	env, fields := seedIndex(t, map[uint32]map[string]any{1: {"title": "hello"}}, []string{"title"})

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	a, err := New(txn, fields)
	require.NoError(t, err)
	require.NoError(t, a.SetDisplayedFields([]string{"title"}).Execute(nil))
	require.NoError(t, txn.Commit())

	txn2, err := env.WriteTxn()
	require.NoError(t, err)
	defer txn2.Abort()
	loaded, err := Load(txn2)
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, loaded.DisplayedFields)

	a2, err := New(txn2, fields)
	require.NoError(t, err)
	require.NoError(t, a2.ResetDisplayedFields().Execute(nil))
	reloaded, err := Load(txn2)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, reloaded.DisplayedFields, "reset returns to the default")
}

func TestPrimaryKeyCannotBeChangedOnceDocumentsExist(t *testing.T) {
	env, fields := seedIndex(t, map[uint32]map[string]any{1: {"id": "a", "title": "hello"}}, []string{"title"})

	txn, err := env.WriteTxn()
	require.NoError(t, err)
	defer txn.Abort()

	a, err := New(txn, fields)
	require.NoError(t, err)
	require.NoError(t, a.SetPrimaryKey("id").Execute(nil))

	a2, err := New(txn, fields)
	require.NoError(t, err)
	err = a2.SetPrimaryKey("other").Execute(nil)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrPrimaryKeyCannotBeChanged, ue.Code)
}

func TestSearchableFieldsChangeTriggersReextraction(t *testing.T) {
	docs := map[uint32]map[string]any{
		1: {"title": "hello", "body": "world"},
	}
	env, fields := seedIndex(t, docs, []string{"title"})

	bodyID, ok := fields.Lookup("body")
	require.True(t, ok)

	txn, err := env.WriteTxn()
	require.NoError(t, err)

	preBlob, err := txn.Get(badger.DBWord, codec.WordKey("world"))
	require.NoError(t, err)
	assert.Empty(t, preBlob, "body is not searchable yet so 'world' has no postings")

	a, err := New(txn, fields)
	require.NoError(t, err)
	require.NoError(t, a.SetSearchableFields([]string{"title", "body"}).Execute(nil))
	require.NoError(t, txn.Commit())

	readTxn := env.ReadTxn()
	defer readTxn.Abort()
	blob, err := readTxn.Get(badger.DBWord, codec.WordKey("world"))
	require.NoError(t, err)
	bm, err := codec.DecodeBitmap(blob)
	require.NoError(t, err)
	assert.True(t, bm.Contains(1), "re-extraction indexed the newly searchable field")
	_ = bodyID
}

func TestInvalidSettingsRejected(t *testing.T) {
	env, fields := seedIndex(t, map[uint32]map[string]any{1: {"title": "hello"}}, []string{"title"})
	txn, err := env.WriteTxn()
	require.NoError(t, err)
	defer txn.Abort()

	a, err := New(txn, fields)
	require.NoError(t, err)
	err = a.SetFilterableFields([]string{""}).Execute(nil)
	require.Error(t, err)
	var ue *common.UserError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, common.ErrInvalidSettings, ue.Code)
}

func TestNumericFacetFieldSurvivesReextraction(t *testing.T) {
	docs := map[uint32]map[string]any{
		1: {"title": "a", "price": jnum(9.99)},
		2: {"title": "b", "price": jnum(1.50)},
	}
	env, fields := seedIndex(t, docs, []string{"title"})

	txn, err := env.WriteTxn()
	require.NoError(t, err)

	a, err := New(txn, fields)
	require.NoError(t, err)
	require.NoError(t, a.SetFilterableFields([]string{"price"}).Execute(nil))
	require.NoError(t, txn.Commit())

	readTxn := env.ReadTxn()
	defer readTxn.Abort()
	priceID, ok := fields.Lookup("price")
	require.True(t, ok)
	v, err := readTxn.Get(badger.DBFieldDocidFacetNumber, codec.FieldDocidFacetNumberKey(priceID, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 9.99, codec.GetF64Ordered(v))
}
