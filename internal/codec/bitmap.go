package codec

import (
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2"
)

// smallBitmapThreshold is the cardinality at or below which a bitmap is
// stored as a flat array of native-endian uint32s instead of a roaring
// bitmap container. Below this threshold roaring's own container overhead
// (its header plus at least one run/array container) costs more bytes than
// just listing the values, and almost every posting list in a typical
// corpus (most words appear in only a handful of documents) falls in this
// range.
const smallBitmapThreshold = 7

// EncodeBitmap serializes bm using the hybrid representation: packed u32
// array when the cardinality is small, standard roaring serialization
// otherwise. The decoder tells the two apart purely by length, so no
// format tag byte is stored.
func EncodeBitmap(bm *roaring.Bitmap) ([]byte, error) {
	card := bm.GetCardinality()
	if card <= smallBitmapThreshold {
		return encodeSmall(bm), nil
	}
	return bm.ToBytes()
}

func encodeSmall(bm *roaring.Bitmap) []byte {
	it := bm.Iterator()
	buf := make([]byte, 0, int(bm.GetCardinality())*4)
	for it.HasNext() {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], it.Next())
		buf = append(buf, tmp[:]...)
	}
	return buf
}

// maxSmallBitmapBytes bounds how large a packed-array encoding can be
// before it is unambiguously a roaring bitmap instead: a packed encoding of
// the threshold cardinality is exactly 4*smallBitmapThreshold bytes, and a
// valid roaring bitmap serialization is always larger than that for any
// container format roaring emits, so length alone disambiguates.
const maxSmallBitmapBytes = smallBitmapThreshold * 4

// DecodeBitmap reverses EncodeBitmap.
func DecodeBitmap(data []byte) (*roaring.Bitmap, error) {
	bm := roaring.NewBitmap()
	if len(data) == 0 {
		return bm, nil
	}
	if len(data) <= maxSmallBitmapBytes && len(data)%4 == 0 {
		n := len(data) / 4
		for i := 0; i < n; i++ {
			bm.Add(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
		}
		return bm, nil
	}
	if _, err := bm.FromBuffer(data); err != nil {
		return nil, err
	}
	return bm, nil
}

// MergeOr decodes every entry in raws, unions them, and re-encodes the
// result. Used by the sorter's merge functions wherever two partial
// postings bitmaps for the same key need combining across a chunk
// boundary.
func MergeOr(raws [][]byte) ([]byte, error) {
	out := roaring.NewBitmap()
	for _, raw := range raws {
		bm, err := DecodeBitmap(raw)
		if err != nil {
			return nil, err
		}
		out.Or(bm)
	}
	return EncodeBitmap(out)
}

// EncodeCboBitmap and DecodeCboBitmap are the same hybrid codec under the
// name used by the word-pair-proximity and attribute-position databases,
// whose values are almost always small.
var (
	EncodeCboBitmap = EncodeBitmap
	DecodeCboBitmap = DecodeBitmap
)
