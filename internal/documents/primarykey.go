package documents

import (
	"strings"

	"github.com/lexidx/lexidx/internal/common"
)

// ResolvePrimaryKeyName picks which flattened field holds the document id
// when the index doesn't already have one on record:
//  1. if existingKey is non-empty, it wins unconditionally;
//  2. otherwise scan the first document's top-level keys for one whose
//     name contains "id" case-insensitively; the document is a Go map, so
//     when several keys match, which of them is picked is not defined;
//  3. otherwise, if autoGenerate is enabled, the literal name "id";
//  4. otherwise MissingPrimaryKey.
func ResolvePrimaryKeyName(existingKey string, firstDoc map[string]any, autoGenerate bool) (string, error) {
	if existingKey != "" {
		return existingKey, nil
	}
	for key := range firstDoc {
		if strings.Contains(strings.ToLower(key), "id") {
			return key, nil
		}
	}
	if autoGenerate {
		return "id", nil
	}
	return "", common.NewUserError(common.ErrMissingPrimaryKey, "no primary key field found and auto-generation is disabled")
}

// ResolveDocumentID extracts and validates the document id for doc given
// the resolved primary key name, which may be a dotted path descending
// through nested maps. autoGenerate controls what happens when the field
// is absent from doc entirely (as opposed to present but invalid).
func ResolveDocumentID(primaryKey string, doc map[string]any, autoGenerate bool) (string, error) {
	raw, found, ambiguous := lookupNested(doc, strings.Split(primaryKey, "."))
	if ambiguous {
		return "", common.NewUserError(common.ErrTooManyDocumentIds, "multiple values found for primary key %q across branches", primaryKey)
	}
	if !found {
		if autoGenerate {
			return common.NewAutoDocumentID(), nil
		}
		return "", common.NewUserError(common.ErrMissingDocumentID, "document has no value for primary key %q", primaryKey)
	}

	s, ok := AsString(raw)
	if !ok {
		return "", common.NewUserError(common.ErrInvalidDocumentID, "primary key %q value is not a string, number or boolean", primaryKey)
	}
	id, valid := common.ValidateDocumentID(s)
	if !valid {
		return "", common.NewUserError(common.ErrInvalidDocumentID, "document id %q contains characters outside [a-zA-Z0-9_-]", s)
	}
	return id, nil
}

// lookupNested descends path through nested maps. A final value that is
// an array of more than one element is reported via ambiguous=true,
// becoming TooManyDocumentIds at the caller. An array met before the last
// path segment is not descended into, so such a path is reported as not
// found.
func lookupNested(doc map[string]any, path []string) (value any, found bool, ambiguous bool) {
	cur := any(doc)
	for i, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false, false
		}
		if i == len(path)-1 {
			if seq, ok := v.([]any); ok {
				if len(seq) > 1 {
					return nil, false, true
				}
				if len(seq) == 1 {
					return seq[0], true, false
				}
				return nil, false, false
			}
			return v, true, false
		}
		cur = v
	}
	return nil, false, false
}
