package writer

import (
	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/sorter"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// RemoveSorters subtracts one extraction pass's postings from the
// persistent databases: the inverse of CommitSorters, run over the prior
// versions of documents being replaced this commit so their stale
// postings don't survive alongside the new versions'.
//
// Bitmap-valued tables subtract the replayed docids and drop the key
// once its bitmap empties; per-(field,docid) and per-docid tables delete
// the key outright, since those entries belong to exactly one document.
func RemoveSorters(txn *badger.Txn, s *extract.Sorters) error {
	// word sorters first: a word whose bitmap empties leaves the index
	// altogether, and its position-level hierarchy has to go with it —
	// the level rebuild only visits words still present in DB 2, so a
	// vanished word's levels would otherwise never be revisited.
	for _, src := range []*sorter.Sorter{s.WordDocids, s.ExactWordDocids} {
		if src == nil {
			continue
		}
		if err := subtractWordDocids(txn, src); err != nil {
			return err
		}
	}

	subtract := []struct {
		db  badger.Database
		src *sorter.Sorter
	}{
		{badger.DBWordPositionLevels, s.WordPositionLevel0},
		{badger.DBWordPairProximity, s.WordPairProximity},
		{badger.DBFieldWordCount, s.FieldWordCount},
		{badger.DBMain, s.FacetExists},
		{badger.DBFacetNumberLevels, s.FacetNumberLevel0},
	}
	for _, st := range subtract {
		if st.src == nil {
			continue
		}
		if err := subtractBitmap(txn, st.db, st.src); err != nil {
			return err
		}
	}

	deletes := []struct {
		db  badger.Database
		src *sorter.Sorter
	}{
		{badger.DBDocidWordPositions, s.DocidWordPositions},
		{badger.DBFieldDocidFacetNumber, s.FacetNumbers},
		{badger.DBFieldDocidFacetString, s.FacetStrings},
		{badger.DBGeoPoints, s.GeoPoints},
	}
	for _, st := range deletes {
		if st.src == nil {
			continue
		}
		if err := deleteKeys(txn, st.db, st.src); err != nil {
			return err
		}
	}

	if s.FacetStringLevel0 != nil {
		if err := subtractPrefixValue(txn, badger.DBFacetStringLevels, s.FacetStringLevel0); err != nil {
			return err
		}
	}
	return nil
}

// subtractWordDocids subtracts from DB 2 and, for every word that ends
// up with no documents at all, deletes the word's entire position-level
// tree (level 0 included: with no document left, no position entry can
// hold anything either).
func subtractWordDocids(txn *badger.Txn, src *sorter.Sorter) error {
	var emptied []string
	err := src.Finish(func(key, value []byte) error {
		old, err := txn.Get(badger.DBWord, key)
		if err != nil {
			return err
		}
		if len(old) == 0 {
			return nil
		}
		current, err := codec.DecodeBitmap(old)
		if err != nil {
			return err
		}
		gone, err := codec.DecodeBitmap(value)
		if err != nil {
			return err
		}
		current.AndNot(gone)
		if current.IsEmpty() {
			emptied = append(emptied, string(key))
			return txn.Delete(badger.DBWord, key)
		}
		enc, err := codec.EncodeBitmap(current)
		if err != nil {
			return err
		}
		return txn.Put(badger.DBWord, key, enc)
	})
	if err != nil {
		return err
	}
	for _, word := range emptied {
		for level := uint8(0); level <= maxLevel; level++ {
			var keys [][]byte
			err := txn.Iterate(badger.DBWordPositionLevels, badger.IterOptions{Prefix: codec.LevelPrefix(word, level)}, func(key, _ []byte) (bool, error) {
				keys = append(keys, append([]byte{}, key...))
				return true, nil
			})
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := txn.Delete(badger.DBWordPositionLevels, k); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// subtractBitmap removes each entry's docids from the on-disk bitmap
// under the same key, deleting the key when nothing is left.
func subtractBitmap(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return src.Finish(func(key, value []byte) error {
		old, err := txn.Get(db, key)
		if err != nil {
			return err
		}
		if len(old) == 0 {
			return nil
		}
		current, err := codec.DecodeBitmap(old)
		if err != nil {
			return err
		}
		gone, err := codec.DecodeBitmap(value)
		if err != nil {
			return err
		}
		current.AndNot(gone)
		if current.IsEmpty() {
			return txn.Delete(db, key)
		}
		enc, err := codec.EncodeBitmap(current)
		if err != nil {
			return err
		}
		return txn.Put(db, key, enc)
	})
}

func deleteKeys(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return src.Finish(func(key, _ []byte) error {
		return txn.Delete(db, key)
	})
}

// subtractPrefixValue handles DB 11's (original-string, bitmap) values:
// the replayed docids come out of the stored bitmap, the original string
// survives as long as any document still carries the value.
func subtractPrefixValue(txn *badger.Txn, db badger.Database, src *sorter.Sorter) error {
	return src.Finish(func(key, value []byte) error {
		old, err := txn.Get(db, key)
		if err != nil {
			return err
		}
		if len(old) == 0 {
			return nil
		}
		original, oldBitmapRaw, err := sorter.SplitPrefixValue(old)
		if err != nil {
			return err
		}
		_, goneRaw, err := sorter.SplitPrefixValue(value)
		if err != nil {
			return err
		}
		current, err := codec.DecodeBitmap(oldBitmapRaw)
		if err != nil {
			return err
		}
		gone, err := codec.DecodeBitmap(goneRaw)
		if err != nil {
			return err
		}
		current.AndNot(gone)
		if current.IsEmpty() {
			return txn.Delete(db, key)
		}
		enc, err := codec.EncodeBitmap(current)
		if err != nil {
			return err
		}
		return txn.Put(db, key, sorter.BuildPrefixValue(original, enc))
	})
}
