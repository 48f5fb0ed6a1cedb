package lexidx

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
	"github.com/lexidx/lexidx/internal/writer"
)

// ClearDocuments removes every document from the index: DB 14 itself,
// every derived database extraction populated from it, and the
// external-ids FST. The field-id map,
// settings, and primary key are left alone — a cleared index can still
// be re-populated under the same schema, and clearing is the one way
// PrimaryKeyCannotBeChanged's guard ever gets lifted (internal/settings'
// Execute only enforces immutability while documents exist).
type ClearDocuments struct {
	idx    *Index
	txn    *Txn
	handle *updateHandle
}

// ID identifies this operation for AbortUpdate/UpdateStatus.
func (c *ClearDocuments) ID() uint64 { return c.handle.id }

// NewClearDocuments registers a new clear-documents operation against txn.
func (idx *Index) NewClearDocuments(txn *Txn) *ClearDocuments {
	return &ClearDocuments{idx: idx, txn: txn, handle: idx.updates.register()}
}

// Execute deletes every document and returns how many were removed.
func (c *ClearDocuments) Execute() (uint64, error) {
	id := c.handle.id
	c.idx.updates.setState(id, UpdateProcessing)

	deleted, err := c.run()
	if err != nil {
		c.idx.updates.setState(id, UpdateFailed)
		return 0, err
	}

	c.idx.touch()
	c.idx.updates.setState(id, UpdateProcessed)
	return deleted, nil
}

func (c *ClearDocuments) run() (uint64, error) {
	var count uint64
	var docids [][]byte
	err := c.txn.Iterate(badger.DBDocuments, badger.IterOptions{}, func(key, _ []byte) (bool, error) {
		docids = append(docids, append([]byte{}, key...))
		count++
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	for _, key := range docids {
		if err := c.txn.Delete(badger.DBDocuments, key); err != nil {
			return 0, err
		}
	}

	if err := writer.ClearDerivedDatabases(c.txn); err != nil {
		return 0, err
	}
	if err := writer.ClearDerivedMainKeys(c.txn); err != nil {
		return 0, err
	}

	fields, err := writer.LoadFieldsMap(c.txn)
	if err != nil {
		return 0, err
	}
	if err := writer.ClearFacetExists(c.txn, fields.IDs()); err != nil {
		return 0, err
	}

	if err := writer.SaveExternalIDs(c.txn, fieldmap.NewExternalIDs()); err != nil {
		return 0, err
	}
	if err := writer.SaveFieldDistribution(c.txn, map[string]int{}); err != nil {
		return 0, err
	}
	emptyBitmap, err := codec.EncodeBitmap(roaring.NewBitmap())
	if err != nil {
		return 0, err
	}
	if err := writer.SaveDocumentsIDsBitmap(c.txn, emptyBitmap); err != nil {
		return 0, err
	}
	return count, nil
}
