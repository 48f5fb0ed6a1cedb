// Package writer implements the database writers and level-hierarchy
// builders: it merges one extraction pass's sorted runs
// into the persistent databases, rebuilds the word-position and
// facet-numeric level hierarchies, and rebuilds the words/words-prefix
// FSTs and the geo index.
package writer

import (
	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/sorter"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// ValueMergeFunc combines a newly-extracted value with whatever is
// already on disk for the same key (nil if the key is new).
type ValueMergeFunc func(old, next []byte) ([]byte, error)

// ApplyBitmap drains src (an already fully-merged-across-workers sorted
// stream) into db, unioning each entry against whatever bitmap already
// exists on disk for that key.
func ApplyBitmap(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return Apply(txn, db, src, mergeBitmapOnDisk)
}

func mergeBitmapOnDisk(old, next []byte) ([]byte, error) {
	if len(old) == 0 {
		return next, nil
	}
	return codec.MergeOr([][]byte{old, next})
}

// ApplyKeepFirst drains src into db, leaving any pre-existing value alone
// (used for the per-(field,docid) facet value databases, where a second
// write for the same key is a duplicate within the batch, not an update).
func ApplyKeepFirst(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return Apply(txn, db, src, func(old, next []byte) ([]byte, error) {
		if len(old) > 0 {
			return old, nil
		}
		return next, nil
	})
}

// ApplyKeepFirstPrefixValue drains src into db, merging (original-string,
// bitmap) pairs the way sorter.KeepFirstPrefixValueMergeRoaring does, but
// against whatever is already stored on disk.
func ApplyKeepFirstPrefixValue(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return Apply(txn, db, src, func(old, next []byte) ([]byte, error) {
		if len(old) == 0 {
			return next, nil
		}
		return sorter.KeepFirstPrefixValueMergeRoaring([][]byte{old, next})
	})
}

// ApplyLatest drains src into db, overwriting any existing value
// unconditionally (used for single-valued per-docid stores like geo
// points, where the latest write for a docid always supersedes an
// earlier one within the same commit).
func ApplyLatest(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return Apply(txn, db, src, func(old, next []byte) ([]byte, error) {
		return next, nil
	})
}

// Apply is the shared read-merge-write loop every ApplyX helper wraps.
func Apply(txn *badger.Txn, db badger.Database, src *sorter.Sorter, mergeFn ValueMergeFunc) error {
	return src.Finish(func(key, value []byte) error {
		old, err := txn.Get(db, key)
		if err != nil {
			return err
		}
		merged, err := mergeFn(old, value)
		if err != nil {
			return err
		}
		return txn.Put(db, key, merged)
	})
}

// CommitSorters applies every database an extraction pass produced,
// using the merge semantics appropriate to each: union for bitmap-valued
// tables, keep-first for the per-(field,docid) facet values, and
// latest-wins for geo points.
func CommitSorters(txn *badger.Txn, s *extract.Sorters) error {
	steps := []struct {
		db  badger.Database
		src *sorter.Sorter
		fn  func(*badger.Txn, badger.Database, *sorter.Sorter) error
	}{
		{badger.DBWord, s.WordDocids, ApplyBitmap},
		{badger.DBWord, s.ExactWordDocids, ApplyBitmap},
		{badger.DBDocidWordPositions, s.DocidWordPositions, ApplyBitmap},
		{badger.DBWordPositionLevels, s.WordPositionLevel0, ApplyBitmap},
		{badger.DBWordPairProximity, s.WordPairProximity, ApplyBitmap},
		{badger.DBFieldWordCount, s.FieldWordCount, ApplyBitmap},
		{badger.DBFieldDocidFacetNumber, s.FacetNumbers, ApplyKeepFirst},
		{badger.DBFieldDocidFacetString, s.FacetStrings, ApplyKeepFirst},
		{badger.DBMain, s.FacetExists, ApplyBitmap},
		{badger.DBFacetNumberLevels, s.FacetNumberLevel0, ApplyBitmap},
		{badger.DBFacetStringLevels, s.FacetStringLevel0, ApplyKeepFirstPrefixValue},
		{badger.DBGeoPoints, s.GeoPoints, ApplyLatest},
	}
	for _, st := range steps {
		if st.src == nil {
			continue
		}
		if err := st.fn(txn, st.db, st.src); err != nil {
			return err
		}
	}
	return nil
}
