package fieldmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalDocumentsIdsRebuildAndGet(t *testing.T) {
	e := NewExternalIDs()
	err := e.Rebuild([]Entry{
		{ExternalID: "a", Docid: 1},
		{ExternalID: "b", Docid: 2},
		{ExternalID: "c", Docid: 3},
	})
	require.NoError(t, err)

	docid, ok, err := e.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), docid)

	_, ok, err = e.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExternalDocumentsIdsMarkDeletedHidesMapping(t *testing.T) {
	e := NewExternalIDs()
	require.NoError(t, e.Rebuild([]Entry{{ExternalID: "a", Docid: 1}}))

	e.MarkDeleted(1)
	_, ok, err := e.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, e.IsDeleted(1))
}

func TestExternalDocumentsIdsRebuildNewerWins(t *testing.T) {
	e := NewExternalIDs()
	require.NoError(t, e.Rebuild([]Entry{{ExternalID: "a", Docid: 1}}))
	e.MarkDeleted(1)

	require.NoError(t, e.Rebuild([]Entry{{ExternalID: "a", Docid: 5}}))

	docid, ok, err := e.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(5), docid)
}

func TestExternalDocumentsIdsCompactRemovesDeleted(t *testing.T) {
	e := NewExternalIDs()
	require.NoError(t, e.Rebuild([]Entry{
		{ExternalID: "a", Docid: 1},
		{ExternalID: "b", Docid: 2},
	}))
	e.MarkDeleted(1)
	assert.Equal(t, 1, e.Len())

	require.NoError(t, e.Compact())
	assert.False(t, e.IsDeleted(1), "compaction clears the soft-deleted bitmap")

	_, ok, err := e.Get("a")
	require.NoError(t, err)
	assert.False(t, ok, "compacted-out id must stay unresolvable")

	docid, ok, err := e.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), docid)
}

func TestExternalDocumentsIdsPersistenceRoundTrip(t *testing.T) {
	e := NewExternalIDs()
	require.NoError(t, e.Rebuild([]Entry{
		{ExternalID: "a", Docid: 1},
		{ExternalID: "b", Docid: 2},
	}))
	e.MarkDeleted(2)

	fstBytes, deletedBytes, err := e.Bytes()
	require.NoError(t, err)

	loaded, err := Load(fstBytes, deletedBytes)
	require.NoError(t, err)

	docid, ok, err := loaded.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), docid)

	_, ok, err = loaded.Get("b")
	require.NoError(t, err)
	assert.False(t, ok)
}
