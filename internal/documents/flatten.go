package documents

// Flatten turns a nested document into a flat map keyed by dotted path:
// {a: {b: 1, c: [2,3]}, d: 4} becomes {"a.b": 1, "a.c": [2,3], "d": 4}.
//
// Every leaf value (scalar or null) is inserted into the flat map one at a
// time, descending into both nested objects (dotted key) and arrays (same
// key, no index suffix) before insertion. A first insertion at a key just
// sets it; a second insertion converts the existing value into a
// two-element sequence; later insertions append. This is what makes a
// plain array collapse back to itself ({c: [2,3]} inserts 2 then 3 under
// "a.c", converging on the same two-element sequence) while also letting
// an array of objects broadcast each object's fields up to the parent's
// dotted keys as parallel sequences.
func Flatten(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		walk(out, k, v)
	}
	return out
}

func walk(out map[string]any, key string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			walk(out, joinKey(key, k), vv)
		}
	case []any:
		for _, elem := range t {
			walk(out, key, elem)
		}
	default:
		assign(out, key, t)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func assign(out map[string]any, key string, v any) {
	existing, ok := out[key]
	if !ok {
		out[key] = v
		return
	}
	if seq, ok := existing.([]any); ok {
		out[key] = append(seq, v)
		return
	}
	out[key] = []any{existing, v}
}
