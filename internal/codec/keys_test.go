package codec

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutGetUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 42, 1 << 31, ^uint32(0)} {
		assert.Equal(t, v, GetUint32(PutUint32(v)))
	}
}

func TestF64OrderedSortsNumerically(t *testing.T) {
	values := []float64{-100.5, -1, 0, 0.5, 1, 3.14159, 1000000, -0.0001}

	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = PutF64Ordered(v)
	}

	// Sort a copy of the encoded byte slices lexicographically and check
	// the order matches sorting the original floats numerically.
	sortedValues := append([]float64{}, values...)
	sort.Float64s(sortedValues)

	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool {
		return string(encoded[idx[i]]) < string(encoded[idx[j]])
	})

	for i, v := range sortedValues {
		assert.Equal(t, v, values[idx[i]], "position %d mismatched after byte-order sort", i)
	}
}

func TestF64OrderedRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		v := (r.Float64() - 0.5) * 1e9
		assert.InDelta(t, v, GetF64Ordered(PutF64Ordered(v)), 1e-9)
	}
}

func TestDocidWordKeyRoundTrip(t *testing.T) {
	key := DocidWordKey(7, "hello")
	docid, word := SplitDocidWordKey(key)
	assert.Equal(t, uint32(7), docid)
	assert.Equal(t, "hello", word)
}

func TestWordPairPrefixMatchesFullKey(t *testing.T) {
	full := WordPairProximityKey("quick", "brown", 1)
	prefix := WordPairPrefix("quick")
	assert.True(t, len(full) > len(prefix))
	assert.Equal(t, prefix, full[:len(prefix)])
}

func TestLevelPrefixMatchesFullKey(t *testing.T) {
	full := LevelKey("search", 2, 10, 20)
	prefix := LevelPrefix("search", 2)
	assert.Equal(t, prefix, full[:len(prefix)])

	// a different level must not share the prefix
	other := LevelPrefix("search", 3)
	assert.NotEqual(t, prefix, other)
}

func TestTruncateKeyStringNoopWhenShort(t *testing.T) {
	s, truncated := TruncateKeyString("short", 0)
	assert.False(t, truncated)
	assert.Equal(t, "short", s)
}

func TestTruncateKeyStringMarksLongKeys(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	s, truncated := TruncateKeyString(string(long), 0)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(s), maxKeyBytes)
	assert.Equal(t, byte(0xff), s[len(s)-1])
}
