package fieldmap

import (
	"bytes"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"

	"github.com/lexidx/lexidx/internal/common"
)

// Entry is one external-id/docid pair, used when feeding a batch of new
// mappings into the FST.
type Entry struct {
	ExternalID string
	Docid      uint32
}

// ExternalDocumentsIds is the bijection between a caller's document id
// strings and the internal u32 docids everything else in the engine is
// keyed by, backed by an FST for compact lookups over potentially millions
// of ids. The FST is immutable once built, so deletions are recorded in a
// soft-deleted bitmap instead of rewriting it. Rebuild leaves that bitmap
// as it is; only an explicit Compact pass removes the deleted entries and
// clears it.
type ExternalDocumentsIds struct {
	fst         *vellum.FST
	raw         []byte
	softDeleted *roaring.Bitmap
}

// NewExternalIDs returns an empty mapping.
func NewExternalIDs() *ExternalDocumentsIds {
	return &ExternalDocumentsIds{softDeleted: roaring.NewBitmap()}
}

// Load reconstructs a mapping from its persisted FST bytes and
// soft-deleted bitmap bytes, either of which may be nil/empty for a fresh
// index.
func Load(fstBytes, deletedBytes []byte) (*ExternalDocumentsIds, error) {
	e := NewExternalIDs()
	if len(fstBytes) > 0 {
		fst, err := vellum.Load(fstBytes)
		if err != nil {
			return nil, common.NewInternalError(common.ErrCorruption, err, "failed to load external-ids fst")
		}
		e.fst = fst
		e.raw = fstBytes
	}
	if len(deletedBytes) > 0 {
		bm := roaring.NewBitmap()
		if _, err := bm.FromBuffer(deletedBytes); err != nil {
			return nil, common.NewInternalError(common.ErrCorruption, err, "failed to load soft-deleted bitmap")
		}
		e.softDeleted = bm
	}
	return e, nil
}

// Bytes returns the serialised FST and soft-deleted bitmap for
// persistence in the main database.
func (e *ExternalDocumentsIds) Bytes() (fstBytes, deletedBytes []byte, err error) {
	deletedBytes, err = e.softDeleted.ToBytes()
	if err != nil {
		return nil, nil, err
	}
	return e.raw, deletedBytes, nil
}

// Get resolves an external id to its internal docid. A soft-deleted
// mapping is reported as not found even though the FST still holds it.
func (e *ExternalDocumentsIds) Get(externalID string) (uint32, bool, error) {
	if e.fst == nil {
		return 0, false, nil
	}
	v, ok, err := e.fst.Get([]byte(externalID))
	if err != nil {
		return 0, false, common.NewInternalError(common.ErrCorruption, err, "external-ids fst lookup failed")
	}
	if !ok {
		return 0, false, nil
	}
	docid := uint32(v)
	if e.softDeleted.Contains(docid) {
		return 0, false, nil
	}
	return docid, true, nil
}

// MarkDeleted records docid as removed without touching the FST.
func (e *ExternalDocumentsIds) MarkDeleted(docid uint32) {
	e.softDeleted.Add(docid)
}

// IsDeleted reports whether docid has been soft-deleted.
func (e *ExternalDocumentsIds) IsDeleted(docid uint32) bool {
	return e.softDeleted.Contains(docid)
}

// Len reports how many live (non-soft-deleted) entries the FST holds.
func (e *ExternalDocumentsIds) Len() int {
	if e.fst == nil {
		return 0
	}
	return int(e.fst.Len()) - int(e.softDeleted.GetCardinality())
}

// Rebuild merges additions (which must be sorted ascending by ExternalID,
// the order vellum requires for Insert) into the existing FST. On a key
// collision the addition wins, matching "choosing the newer id on
// collision": a document re-added under an id that was previously soft
// deleted and reused gets its new docid.
func (e *ExternalDocumentsIds) Rebuild(additions []Entry) error {
	if len(additions) == 0 {
		return nil
	}
	added, addedRaw, err := buildFST(additions)
	if err != nil {
		return err
	}
	if e.fst == nil {
		e.fst, e.raw = added, addedRaw
		return nil
	}

	merged, raw, err := mergeKeepLast(e.fst, added)
	if err != nil {
		return err
	}
	e.fst, e.raw = merged, raw
	return nil
}

// Compact rebuilds the FST with every soft-deleted mapping actually
// removed, then clears the soft-deleted bitmap. Run opportunistically
// after a large clear or as a scheduled maintenance pass; cheap to skip
// since Get already honors the bitmap.
func (e *ExternalDocumentsIds) Compact() error {
	if e.fst == nil || e.softDeleted.IsEmpty() {
		return nil
	}

	var kept []Entry
	it, err := e.fst.Iterator(nil, nil)
	for err == nil {
		k, v := it.Current()
		if !e.softDeleted.Contains(uint32(v)) {
			kept = append(kept, Entry{ExternalID: string(k), Docid: uint32(v)})
		}
		err = it.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return common.NewInternalError(common.ErrCorruption, err, "external-ids fst iteration failed during compaction")
	}

	if len(kept) == 0 {
		e.fst, e.raw = nil, nil
		e.softDeleted = roaring.NewBitmap()
		return nil
	}
	rebuilt, rebuiltRaw, err := buildFST(kept)
	if err != nil {
		return err
	}
	e.fst, e.raw = rebuilt, rebuiltRaw
	e.softDeleted = roaring.NewBitmap()
	return nil
}

func buildFST(entries []Entry) (*vellum.FST, []byte, error) {
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to start external-ids fst builder")
	}
	for _, e := range entries {
		if err := builder.Insert([]byte(e.ExternalID), uint64(e.Docid)); err != nil {
			return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to insert %q into external-ids fst", e.ExternalID)
		}
	}
	if err := builder.Close(); err != nil {
		return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to close external-ids fst builder")
	}
	raw := buf.Bytes()
	fst, err := vellum.Load(raw)
	if err != nil {
		return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to reload external-ids fst")
	}
	return fst, raw, nil
}

// mergeKeepLast unions old and added, taking added's value whenever a key
// exists in both (vellum.Merge's reader order determines precedence: later
// readers in the slice win).
func mergeKeepLast(old, added *vellum.FST) (*vellum.FST, []byte, error) {
	var buf bytes.Buffer
	err := vellum.Merge(&buf, []*vellum.FST{old, added}, func(vals []uint64) uint64 {
		return vals[len(vals)-1]
	})
	if err != nil {
		return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to merge external-ids fst")
	}
	raw := buf.Bytes()
	merged, err := vellum.Load(raw)
	if err != nil {
		return nil, nil, common.NewInternalError(common.ErrCorruption, err, "failed to reload merged external-ids fst")
	}
	return merged, raw, nil
}
