package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOBKVRoundTrip(t *testing.T) {
	w := &OBKVWriter{}
	w.Add(1, []byte(`"hello"`))
	w.Add(3, []byte(`42`))
	w.Add(7, []byte(`true`))

	data := w.Build()
	r := NewOBKVReader(data)

	require.Equal(t, 3, r.Len())

	v, ok := r.Get(3)
	require.True(t, ok)
	assert.Equal(t, "42", string(v))

	v, ok = r.Get(1)
	require.True(t, ok)
	assert.Equal(t, `"hello"`, string(v))

	_, ok = r.Get(99)
	assert.False(t, ok)
}

func TestOBKVForEachOrder(t *testing.T) {
	w := &OBKVWriter{}
	w.Add(1, []byte("a"))
	w.Add(2, []byte("b"))
	w.Add(5, []byte("c"))
	data := w.Build()

	var seen []uint16
	NewOBKVReader(data).ForEach(func(fieldID uint16, value []byte) bool {
		seen = append(seen, fieldID)
		return true
	})
	assert.Equal(t, []uint16{1, 2, 5}, seen)
}

func TestOBKVForEachStopsEarly(t *testing.T) {
	w := &OBKVWriter{}
	w.Add(1, []byte("a"))
	w.Add(2, []byte("b"))
	w.Add(3, []byte("c"))
	data := w.Build()

	var seen int
	NewOBKVReader(data).ForEach(func(fieldID uint16, value []byte) bool {
		seen++
		return fieldID != 2
	})
	assert.Equal(t, 2, seen)
}

func TestOBKVAddPanicsOnUnsortedFieldID(t *testing.T) {
	w := &OBKVWriter{}
	w.Add(5, []byte("a"))
	assert.Panics(t, func() {
		w.Add(3, []byte("b"))
	})
}

func TestOBKVEmptyDocument(t *testing.T) {
	w := &OBKVWriter{}
	data := w.Build()
	r := NewOBKVReader(data)
	assert.Equal(t, 0, r.Len())
	_, ok := r.Get(1)
	assert.False(t, ok)
}
