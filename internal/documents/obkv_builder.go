package documents

import (
	"sort"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/fieldmap"
)

// BuildOBKV assigns a field id to every key in flat (allocating new ids in
// fields as needed) and packs the result into OBKV's ascending-field-id
// wire format. OBKV key sets are exactly fields.ids() intersected with the
// fields present in the source document, which falls out naturally here
// since only keys actually present in flat get an entry.
func BuildOBKV(fields *fieldmap.FieldsMap, flat map[string]any) ([]byte, error) {
	type fieldValue struct {
		id    uint16
		value []byte
	}

	entries := make([]fieldValue, 0, len(flat))
	for k, v := range flat {
		id, err := fields.ID(k)
		if err != nil {
			return nil, err
		}
		enc, err := Encode(v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fieldValue{id: id, value: enc})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	w := &codec.OBKVWriter{}
	for _, e := range entries {
		w.Add(e.id, e.value)
	}
	return w.Build(), nil
}
