package writer

import (
	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// derivedDatabases lists every database extraction populates, in no
// particular order: every one of these is wiped and rebuilt from
// scratch whenever the index's layout changes (settings-triggered
// re-extraction) or every document is cleared.
var derivedDatabases = []badger.Database{
	badger.DBWord,
	badger.DBWordPrefix,
	badger.DBDocidWordPositions,
	badger.DBWordPairProximity,
	badger.DBWordPrefixPairProximity,
	badger.DBWordPositionLevels,
	badger.DBWordPrefixPositionLevels,
	badger.DBFieldWordCount,
	badger.DBFacetNumberLevels,
	badger.DBFacetStringLevels,
	badger.DBFieldDocidFacetNumber,
	badger.DBFieldDocidFacetString,
	badger.DBGeoPoints,
}

// ClearDerivedDatabases deletes every key from each database extraction
// populates, leaving DB 1 (schema/FSTs/settings) and DB 14 (original
// documents) untouched.
func ClearDerivedDatabases(txn *badger.Txn) error {
	for _, db := range derivedDatabases {
		if err := clearDatabase(txn, db); err != nil {
			return err
		}
	}
	return nil
}

func clearDatabase(txn *badger.Txn, db badger.Database) error {
	var keys [][]byte
	err := txn.Iterate(db, badger.IterOptions{}, func(key, _ []byte) (bool, error) {
		keys = append(keys, append([]byte{}, key...))
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := txn.Delete(db, k); err != nil {
			return err
		}
	}
	return nil
}

// ClearDerivedMainKeys deletes the DB 1 entries that extraction (rather
// than schema bookkeeping) populates: the words/words-prefix FSTs and the
// geo index. Per-field facet-exists bitmaps are cleared separately by
// ClearFacetExists, since only the caller knows the full field-id set.
func ClearDerivedMainKeys(txn *badger.Txn) error {
	for _, key := range [][]byte{
		codec.MainWordsFSTKey(),
		codec.MainWordsPrefixFSTKey(),
		codec.MainGeoRTreeKey(),
		codec.MainGeoFacetedDocidsKey(),
	} {
		if err := txn.Delete(badger.DBMain, key); err != nil {
			return err
		}
	}
	return nil
}

// ClearFacetExists deletes the per-field "has any facet value" bitmap for
// every field id in fieldIDs.
func ClearFacetExists(txn *badger.Txn, fieldIDs []uint16) error {
	for _, fid := range fieldIDs {
		if err := txn.Delete(badger.DBMain, codec.MainFacetExistsKey(fid)); err != nil {
			return err
		}
	}
	return nil
}
