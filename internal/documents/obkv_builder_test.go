package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

func TestBuildOBKVRoundTrip(t *testing.T) {
	fields := fieldmap.New()
	doc, err := Decode([]byte(`{"title":"hello","price":9}`))
	require.NoError(t, err)

	data, err := BuildOBKV(fields, Flatten(doc))
	require.NoError(t, err)

	titleID, ok := fields.Lookup("title")
	require.True(t, ok)
	priceID, ok := fields.Lookup("price")
	require.True(t, ok)

	r := codec.NewOBKVReader(data)
	v, ok := r.Get(titleID)
	require.True(t, ok)
	assert.Equal(t, `"hello"`, string(v))

	v, ok = r.Get(priceID)
	require.True(t, ok)
	assert.Equal(t, "9", string(v))
}

func TestBuildOBKVAssignsNewFieldIDs(t *testing.T) {
	fields := fieldmap.New()
	_, err := fields.ID("existing")
	require.NoError(t, err)

	doc, err := Decode([]byte(`{"brand_new":"x"}`))
	require.NoError(t, err)

	_, err = BuildOBKV(fields, Flatten(doc))
	require.NoError(t, err)

	_, ok := fields.Lookup("brand_new")
	assert.True(t, ok)
}
