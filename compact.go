package lexidx

import "github.com/lexidx/lexidx/internal/writer"

// CompactExternalIds rebuilds the external-id FST with every soft-deleted
// mapping actually removed, for hosts that want to reclaim space after a
// large delete batch. Safe to call on a fresh or already
// fully-compacted index: a no-op when nothing is soft-deleted.
func (idx *Index) CompactExternalIds(txn *Txn) error {
	ext, err := writer.LoadOrNewExternalIDs(txn)
	if err != nil {
		return err
	}
	if err := ext.Compact(); err != nil {
		return err
	}
	if err := writer.SaveExternalIDs(txn, ext); err != nil {
		return err
	}
	idx.touch()
	return nil
}
