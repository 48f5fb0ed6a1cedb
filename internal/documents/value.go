// Package documents implements document staging: decoding a caller's raw
// JSON documents into a dynamic value tree, flattening nested objects into
// dotted-path fields, resolving the primary key, and packing the result
// into the OBKV wire format the rest of the engine stores.
package documents

import (
	"encoding/json"

	"github.com/bytedance/sonic"

	"github.com/lexidx/lexidx/internal/common"
)

// jsonAPI decodes numbers as json.Number rather than float64 so integers
// round-trip without precision loss, matching the Null|Bool|I64|U64|F64|Str
// distinction documents are staged with.
var jsonAPI = sonic.Config{UseNumber: true}.Froze()

// Decode parses one document's raw JSON bytes into a dynamic value tree:
// nil, bool, json.Number, string, []any, or map[string]any.
func Decode(raw []byte) (map[string]any, error) {
	var v map[string]any
	if err := jsonAPI.Unmarshal(raw, &v); err != nil {
		return nil, common.NewUserError(common.ErrSerdeJSON, "document is not a JSON object: %v", err)
	}
	return v, nil
}

// DecodeValue parses one OBKV entry's raw value bytes back into a dynamic
// value (the inverse of Encode), used when a prior document's stored
// fields need to be replayed for an "update" merge or for re-extraction.
func DecodeValue(raw []byte) (any, error) {
	var v any
	if err := jsonAPI.Unmarshal(raw, &v); err != nil {
		return nil, common.NewInternalError(common.ErrSerdeJSON, err, "failed to decode stored field value")
	}
	return v, nil
}

// Encode serialises a single field's value back to its JSON wire form for
// storage as an OBKV entry's value bytes.
func Encode(v any) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return nil, common.NewInternalError(common.ErrSerdeJSON, err, "failed to encode field value")
	}
	return b, nil
}

// AsString coerces a scalar value to its canonical string form, used both
// for primary key resolution (integers coerce to their decimal form) and
// for facet-string normalization upstream.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	default:
		return "", false
	}
}

// AsFloat64 coerces a scalar value to float64 for numeric facet/sort
// storage, reporting false for anything that isn't a JSON number.
func AsFloat64(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}
