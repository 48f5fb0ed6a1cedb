// Package fieldmap implements the field name/id bijection and the
// external/internal document id bijection, the two small structural
// mappings every other database's keys are expressed in terms of.
package fieldmap

import (
	"github.com/bytedance/sonic"

	"github.com/lexidx/lexidx/internal/common"
)

// FieldsMap is an insertion-ordered bijection between field names and the
// small integer ids used throughout the rest of the key space. It is
// small enough to keep fully resident and persist as one serialised blob,
// rewritten atomically whenever a new field name is seen.
type FieldsMap struct {
	names []string       // index i holds the name for field id i
	ids   map[string]int // name -> index into names
}

// New returns an empty map.
func New() *FieldsMap {
	return &FieldsMap{ids: make(map[string]int)}
}

// fieldsMapWire is FieldsMap's serialised form: just the insertion-ordered
// name list, since ids are reconstructed as list indices on load.
type fieldsMapWire struct {
	Names []string `json:"names"`
}

// Marshal serialises the map for storage in the main database.
func (m *FieldsMap) Marshal() ([]byte, error) {
	return sonic.Marshal(fieldsMapWire{Names: m.names})
}

// Unmarshal loads a map previously produced by Marshal.
func Unmarshal(data []byte) (*FieldsMap, error) {
	if len(data) == 0 {
		return New(), nil
	}
	var wire fieldsMapWire
	if err := sonic.Unmarshal(data, &wire); err != nil {
		return nil, common.NewInternalError(common.ErrSerdeJSON, err, "failed to decode fields map")
	}
	m := New()
	for i, name := range wire.Names {
		m.names = append(m.names, name)
		m.ids[name] = i
	}
	return m, nil
}

// maxFieldID bounds how many distinct field names one index may carry, a
// u16 key component elsewhere in the key space.
const maxFieldID = 1<<16 - 1

// ID returns the field id for name, assigning a new one if name has not
// been seen before. Returns AttributeLimitReached once the map is full.
func (m *FieldsMap) ID(name string) (uint16, error) {
	if id, ok := m.ids[name]; ok {
		return uint16(id), nil
	}
	if len(m.names) >= maxFieldID {
		return 0, common.NewUserError(common.ErrAttributeLimitReached, "cannot index field %q: attribute limit reached", name)
	}
	id := len(m.names)
	m.names = append(m.names, name)
	m.ids[name] = id
	return uint16(id), nil
}

// Lookup returns the id already assigned to name, if any, without
// allocating a new one.
func (m *FieldsMap) Lookup(name string) (uint16, bool) {
	id, ok := m.ids[name]
	return uint16(id), ok
}

// Name returns the field name for id.
func (m *FieldsMap) Name(id uint16) (string, bool) {
	if int(id) >= len(m.names) {
		return "", false
	}
	return m.names[id], true
}

// Len returns the number of distinct field names recorded.
func (m *FieldsMap) Len() int { return len(m.names) }

// Names returns every recorded field name, in ascending id order. The
// returned slice must not be mutated by the caller.
func (m *FieldsMap) Names() []string { return m.names }

// IDs returns every assigned field id, in ascending order.
func (m *FieldsMap) IDs() []uint16 {
	ids := make([]uint16, len(m.names))
	for i := range ids {
		ids[i] = uint16(i)
	}
	return ids
}
