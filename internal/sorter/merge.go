package sorter

import (
	"bytes"

	"github.com/blevesearch/vellum"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
)

// KeepFirst discards every value but the first one pushed for a key, used
// for databases where a later write for the same key is a duplicate, not
// an update.
func KeepFirst(values [][]byte) ([]byte, error) {
	return values[0], nil
}

// KeepLatestOBKV keeps only the last OBKV document pushed for a key,
// used where a later write fully supersedes an earlier one (a "replace"
// document update).
func KeepLatestOBKV(values [][]byte) ([]byte, error) {
	return values[len(values)-1], nil
}

// MergeOBKVs field-wise merges a sequence of OBKV documents for the same
// key, where later documents' fields win over earlier ones but fields
// absent from a later document keep their earlier value (an "update"
// document merge, as opposed to KeepLatestOBKV's full replace).
func MergeOBKVs(values [][]byte) ([]byte, error) {
	merged := map[uint16][]byte{}
	var order []uint16
	for _, raw := range values {
		r := codec.NewOBKVReader(raw)
		r.ForEach(func(fieldID uint16, value []byte) bool {
			if _, exists := merged[fieldID]; !exists {
				order = append(order, fieldID)
			}
			merged[fieldID] = value
			return true
		})
	}

	sortUint16s(order)
	w := &codec.OBKVWriter{}
	for _, fid := range order {
		w.Add(fid, merged[fid])
	}
	return w.Build(), nil
}

func sortUint16s(s []uint16) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// MergeRoaring decodes every value as a hybrid-encoded bitmap, unions
// them, and re-encodes. Used by posting-list databases (word-docids,
// facet-string-docids) where colliding keys accumulate documents.
func MergeRoaring(values [][]byte) ([]byte, error) {
	return codec.MergeOr(values)
}

// MergeCboRoaring is the same union merge under the name used by the
// word-pair-proximity and field/word-count databases, whose values are the
// same hybrid codec under a different conventional name.
func MergeCboRoaring(values [][]byte) ([]byte, error) {
	return codec.MergeOr(values)
}

// ConcatU32s concatenates every value's native-endian uint32 list, used by
// databases where a colliding key represents independent position lists
// that should simply be appended rather than unioned as a set (order and
// duplicates both carry meaning).
func ConcatU32s(values [][]byte) ([]byte, error) {
	total := 0
	for _, v := range values {
		total += len(v)
	}
	out := make([]byte, 0, total)
	for _, v := range values {
		out = append(out, v...)
	}
	return out, nil
}

// KeepFirstPrefixValueMergeRoaring is used by the facet-string database
// (DB 11): values are (original_string, roaring_bitmap) pairs
// serialized as len-prefixed original string followed by the bitmap
// bytes. The first original string wins, but the bitmaps of every
// colliding entry are unioned.
func KeepFirstPrefixValueMergeRoaring(values [][]byte) ([]byte, error) {
	firstStr, _, err := splitPrefixValue(values[0])
	if err != nil {
		return nil, err
	}

	bitmaps := make([][]byte, 0, len(values))
	for _, v := range values {
		_, bm, err := splitPrefixValue(v)
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, bm)
	}
	mergedBitmap, err := codec.MergeOr(bitmaps)
	if err != nil {
		return nil, err
	}
	return buildPrefixValue(firstStr, mergedBitmap), nil
}

// SplitPrefixValue decodes a (original_string, bitmap) pair built by
// buildPrefixValue, for callers outside this package that need to read a
// DB 11 value back apart (e.g. the filter
// evaluator resolving a string facet's original casing).
func SplitPrefixValue(v []byte) (string, []byte, error) {
	return splitPrefixValue(v)
}

// BuildPrefixValue is the encoding counterpart of SplitPrefixValue, for
// callers that rewrite a pair after mutating its bitmap in place (e.g.
// the writer subtracting a replaced document's docid).
func BuildPrefixValue(s string, bitmap []byte) []byte {
	return buildPrefixValue(s, bitmap)
}

func splitPrefixValue(v []byte) (string, []byte, error) {
	if len(v) < 2 {
		return "", nil, common.NewInternalError(common.ErrCorruption, nil, "malformed prefix-value merge entry")
	}
	strLen := int(v[0])<<8 | int(v[1])
	if len(v) < 2+strLen {
		return "", nil, common.NewInternalError(common.ErrCorruption, nil, "malformed prefix-value merge entry")
	}
	return string(v[2 : 2+strLen]), v[2+strLen:], nil
}

func buildPrefixValue(s string, bitmap []byte) []byte {
	out := make([]byte, 2+len(s)+len(bitmap))
	out[0] = byte(len(s) >> 8)
	out[1] = byte(len(s))
	copy(out[2:], s)
	copy(out[2+len(s):], bitmap)
	return out
}

// FSTMerge unions a sequence of serialized FSTs into one, keeping the
// first value recorded for any key present in more than one (earlier
// chunks were written first and their entries should not be clobbered by a
// later chunk covering the same prefix range).
func FSTMerge(values [][]byte) ([]byte, error) {
	fsts := make([]*vellum.FST, 0, len(values))
	for _, raw := range values {
		f, err := vellum.Load(raw)
		if err != nil {
			return nil, common.NewInternalError(common.ErrCorruption, err, "failed to load fst chunk during merge")
		}
		fsts = append(fsts, f)
	}

	var buf bytes.Buffer
	err := vellum.Merge(&buf, fsts, func(vals []uint64) uint64 {
		return vals[0]
	})
	if err != nil {
		return nil, common.NewInternalError(common.ErrCorruption, err, "failed to merge fst chunks")
	}
	return buf.Bytes(), nil
}
