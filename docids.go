package lexidx

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/writer"
)

// docidAllocator hands out fresh internal docids from the complement of
// the documents bitmap current as of the write txn this batch started
// from, satisfying internal/transform.AvailableIDs. Every id it hands out
// is immediately marked taken so two documents new to the same batch never
// collide, without touching the on-disk bitmap until the batch commits.
type docidAllocator struct {
	cursor uint32
	taken  *roaring.Bitmap
}

func newDocidAllocator(existing *roaring.Bitmap) *docidAllocator {
	return &docidAllocator{taken: existing.Clone()}
}

func (a *docidAllocator) Next() uint32 {
	for a.taken.Contains(a.cursor) {
		a.cursor++
	}
	id := a.cursor
	a.taken.Add(id)
	a.cursor++
	return id
}

// existingLookup resolves an external id against the FST-backed mapping
// and, if found, replays its stored original-form OBKV, satisfying
// internal/transform.ExistingLookup.
type existingLookup struct {
	txn *Txn
	ext *fieldmap.ExternalDocumentsIds
}

func (e *existingLookup) Lookup(externalID string) (docid uint32, obkv []byte, exists bool, err error) {
	docid, ok, err := e.ext.Get(externalID)
	if err != nil {
		return 0, nil, false, err
	}
	if !ok {
		return 0, nil, false, nil
	}
	obkv, err = writer.GetDocument(e.txn, docid)
	if err != nil {
		return 0, nil, false, err
	}
	return docid, obkv, true, nil
}

// documentsBitmap loads the set of internal docids currently live in the
// index, an empty bitmap for a fresh one.
func documentsBitmap(txn *Txn) (*roaring.Bitmap, error) {
	blob, err := writer.LoadDocumentsIDsBitmap(txn)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return roaring.NewBitmap(), nil
	}
	return codec.DecodeBitmap(blob)
}
