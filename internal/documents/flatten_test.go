package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenSimpleNesting(t *testing.T) {
	doc, err := Decode([]byte(`{"a":{"b":1,"c":[2,3]},"d":4}`))
	require.NoError(t, err)

	flat := Flatten(doc)

	assert.Contains(t, flat, "a.b")
	assert.Contains(t, flat, "a.c")
	assert.Contains(t, flat, "d")
	assert.ElementsMatch(t, flat["a.c"], []any{asNum(t, "2"), asNum(t, "3")})
}

func TestFlattenArrayOfObjectsBroadcasts(t *testing.T) {
	doc, err := Decode([]byte(`{"tags":[{"name":"x"},{"name":"y"}]}`))
	require.NoError(t, err)

	flat := Flatten(doc)

	require.Contains(t, flat, "tags.name")
	assert.ElementsMatch(t, flat["tags.name"], []any{"x", "y"})
}

func TestFlattenSingleValueStaysScalar(t *testing.T) {
	doc, err := Decode([]byte(`{"title":"hello"}`))
	require.NoError(t, err)

	flat := Flatten(doc)
	assert.Equal(t, "hello", flat["title"])
}

func TestFlattenNestedArrayOfArrays(t *testing.T) {
	doc, err := Decode([]byte(`{"a":[[1,2],3]}`))
	require.NoError(t, err)

	flat := Flatten(doc)
	seq, ok := flat["a"].([]any)
	require.True(t, ok)
	assert.Len(t, seq, 3)
}

func asNum(t *testing.T, s string) any {
	t.Helper()
	doc, err := Decode([]byte(`{"v":` + s + `}`))
	require.NoError(t, err)
	return doc["v"]
}
