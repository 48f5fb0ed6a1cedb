package sorter

import (
	"bytes"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexidx/lexidx/internal/codec"
)

func TestKeepFirst(t *testing.T) {
	got, err := KeepFirst([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func TestKeepLatestOBKV(t *testing.T) {
	got, err := KeepLatestOBKV([][]byte{[]byte("old"), []byte("new")})
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func obkv(entries map[uint16]string) []byte {
	w := &codec.OBKVWriter{}
	keys := make([]uint16, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sortUint16s(keys)
	for _, k := range keys {
		w.Add(k, []byte(entries[k]))
	}
	return w.Build()
}

func TestMergeOBKVsLaterFieldsWinButEarlierFieldsSurvive(t *testing.T) {
	a := obkv(map[uint16]string{1: `"old title"`, 2: `"price-a"`})
	b := obkv(map[uint16]string{1: `"new title"`})

	merged, err := MergeOBKVs([][]byte{a, b})
	require.NoError(t, err)

	r := codec.NewOBKVReader(merged)
	v, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, `"new title"`, string(v))

	v, ok = r.Get(2)
	require.True(t, ok)
	assert.Equal(t, `"price-a"`, string(v))
}

func TestMergeRoaring(t *testing.T) {
	a := roaring.NewBitmap()
	a.Add(1)
	a.Add(2)
	b := roaring.NewBitmap()
	b.Add(2)
	b.Add(3)

	aEnc, err := codec.EncodeBitmap(a)
	require.NoError(t, err)
	bEnc, err := codec.EncodeBitmap(b)
	require.NoError(t, err)

	merged, err := MergeRoaring([][]byte{aEnc, bEnc})
	require.NoError(t, err)

	decoded, err := codec.DecodeBitmap(merged)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), decoded.GetCardinality())
	assert.True(t, decoded.Contains(1))
	assert.True(t, decoded.Contains(2))
	assert.True(t, decoded.Contains(3))
}

func TestConcatU32s(t *testing.T) {
	got, err := ConcatU32s([][]byte{[]byte("ab"), []byte("cd"), []byte("ef")})
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(got))
}

func TestKeepFirstPrefixValueMergeRoaring(t *testing.T) {
	bm1 := roaring.NewBitmap()
	bm1.Add(1)
	enc1, err := codec.EncodeBitmap(bm1)
	require.NoError(t, err)

	bm2 := roaring.NewBitmap()
	bm2.Add(2)
	enc2, err := codec.EncodeBitmap(bm2)
	require.NoError(t, err)

	v1 := buildPrefixValue("phone", enc1)
	v2 := buildPrefixValue("phoneme", enc2)

	merged, err := KeepFirstPrefixValueMergeRoaring([][]byte{v1, v2})
	require.NoError(t, err)

	str, bmBytes, err := splitPrefixValue(merged)
	require.NoError(t, err)
	assert.Equal(t, "phone", str)

	decoded, err := codec.DecodeBitmap(bmBytes)
	require.NoError(t, err)
	assert.True(t, decoded.Contains(1))
	assert.True(t, decoded.Contains(2))
}

func buildTestFST(t *testing.T, entries map[string]uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	require.NoError(t, err)

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		require.NoError(t, builder.Insert([]byte(k), entries[k]))
	}
	require.NoError(t, builder.Close())
	return buf.Bytes()
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func TestFSTMergeUnionsKeepingFirstOnCollision(t *testing.T) {
	a := buildTestFST(t, map[string]uint64{"apple": 1, "banana": 2})
	b := buildTestFST(t, map[string]uint64{"banana": 99, "cherry": 3})

	merged, err := FSTMerge([][]byte{a, b})
	require.NoError(t, err)

	fst, err := vellum.Load(merged)
	require.NoError(t, err)

	v, ok, err := fst.Get([]byte("banana"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), v)

	v, ok, err = fst.Get([]byte("cherry"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), v)
}
