package codec

import (
	"encoding/binary"
	"fmt"
)

// OBKV is an ordered binary key-value document encoding: a flat byte
// buffer of (field-id, value-bytes) pairs sorted by ascending field-id.
// Ascending order lets a reader binary-search for one field without
// decoding the whole document, and lets a writer produced from a sorted
// field-id map simply append in order.
//
// Layout: count:u32 LE | entries:[field_id:u16 LE | value_len:u32 LE | value_bytes]

// OBKVWriter builds an OBKV buffer. Callers must add entries in strictly
// ascending field-id order; Add panics otherwise since ordering is a
// caller invariant, not a runtime condition.
type OBKVWriter struct {
	entries []obkvEntry
}

type obkvEntry struct {
	fieldID uint16
	value   []byte
}

// Add appends one field's raw value bytes (typically a JSON-encoded
// scalar produced by internal/documents). fieldID must be strictly
// greater than the fieldID of the previous Add call.
func (w *OBKVWriter) Add(fieldID uint16, value []byte) {
	if n := len(w.entries); n > 0 && w.entries[n-1].fieldID >= fieldID {
		panic(fmt.Sprintf("codec: OBKV field ids must be strictly ascending, got %d after %d", fieldID, w.entries[n-1].fieldID))
	}
	w.entries = append(w.entries, obkvEntry{fieldID: fieldID, value: value})
}

// Len reports how many entries have been added so far.
func (w *OBKVWriter) Len() int { return len(w.entries) }

// Build serializes the accumulated entries.
func (w *OBKVWriter) Build() []byte {
	size := 4
	for _, e := range w.entries {
		size += 2 + 4 + len(e.value)
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(w.entries)))
	off := 4
	for _, e := range w.entries {
		binary.LittleEndian.PutUint16(buf[off:off+2], e.fieldID)
		off += 2
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.value)))
		off += 4
		copy(buf[off:], e.value)
		off += len(e.value)
	}
	return buf
}

// OBKVReader reads entries back out of a serialized buffer without
// allocating a map, so a caller only paying for the fields it actually
// touches.
type OBKVReader struct {
	data []byte
}

func NewOBKVReader(data []byte) *OBKVReader { return &OBKVReader{data: data} }

// Get returns the raw value bytes for fieldID via binary search, or
// (nil, false) if the document has no such field.
func (r *OBKVReader) Get(fieldID uint16) ([]byte, bool) {
	if len(r.data) < 4 {
		return nil, false
	}
	count := int(binary.LittleEndian.Uint32(r.data[0:4]))
	lo, hi := 0, count-1

	// Entries are variable-length, so binary search needs an index pass
	// first; OBKV documents are small enough (one per document, one field
	// each) that this is cheaper than maintaining an offset table.
	offsets := r.entryOffsets(count)
	for lo <= hi {
		mid := (lo + hi) / 2
		entOff := offsets[mid]
		fid := binary.LittleEndian.Uint16(r.data[entOff : entOff+2])
		if fid == fieldID {
			vlen := binary.LittleEndian.Uint32(r.data[entOff+2 : entOff+6])
			start := entOff + 6
			return r.data[start : start+int(vlen)], true
		}
		if fid < fieldID {
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return nil, false
}

func (r *OBKVReader) entryOffsets(count int) []int {
	offsets := make([]int, count)
	off := 4
	for i := 0; i < count; i++ {
		offsets[i] = off
		vlen := binary.LittleEndian.Uint32(r.data[off+2 : off+6])
		off += 6 + int(vlen)
	}
	return offsets
}

// ForEach calls fn(fieldID, value) for every entry in ascending field-id
// order. Iteration stops early if fn returns false.
func (r *OBKVReader) ForEach(fn func(fieldID uint16, value []byte) bool) {
	if len(r.data) < 4 {
		return
	}
	count := int(binary.LittleEndian.Uint32(r.data[0:4]))
	off := 4
	for i := 0; i < count; i++ {
		fid := binary.LittleEndian.Uint16(r.data[off : off+2])
		vlen := binary.LittleEndian.Uint32(r.data[off+2 : off+6])
		start := off + 6
		value := r.data[start : start+int(vlen)]
		if !fn(fid, value) {
			return
		}
		off = start + int(vlen)
	}
}

// Len reports how many entries are stored.
func (r *OBKVReader) Len() int {
	if len(r.data) < 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(r.data[0:4]))
}
