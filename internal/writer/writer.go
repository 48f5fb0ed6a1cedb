package writer

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/extract"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// DocumentWrite is one document ready to be persisted in original-form
// OBKV (DB 14), produced by internal/transform.
type DocumentWrite struct {
	Docid uint32
	OBKV  []byte
}

// Batch gathers everything one indexing commit needs to hand the writer
// stage: the extraction pass's merged sorters, the documents to persist
// verbatim, and the schema state transform.Transformer has already
// mutated in memory (new field ids, new external-id entries).
type Batch struct {
	Fields           *fieldmap.FieldsMap
	ExternalIDs      *fieldmap.ExternalDocumentsIds
	Sorters          *extract.Sorters
	// Removals holds the extraction of every document's prior version
	// being replaced this commit; its postings are subtracted before
	// Sorters' are applied.
	Removals         *extract.Sorters
	Documents        []DocumentWrite
	FacetedNumberIDs []uint16 // field ids whose facet type is numeric, for DB 10's hierarchy
	DistributionDiff map[string]int

	// PrimaryKey is persisted only when non-empty; callers enforce the
	// immutability rule before ever setting this on a second commit.
	PrimaryKey string
}

// Commit runs the full write sequence for one indexing pass: apply every
// sorter into its database, persist the documents
// themselves, rebuild the word-position and facet-numeric level
// hierarchies, rebuild the words/words-prefix FSTs and the geo index, and
// finally rewrite the main database's schema blobs. Every step operates
// on the same write txn, so a failure partway through rolls the whole
// commit back when the caller aborts instead of committing.
func Commit(txn *badger.Txn, b *Batch) error {
	if b.Removals != nil {
		if err := RemoveSorters(txn, b.Removals); err != nil {
			return err
		}
	}
	if err := CommitSorters(txn, b.Sorters); err != nil {
		return err
	}

	for _, d := range b.Documents {
		if err := PutDocument(txn, d.Docid, d.OBKV); err != nil {
			return err
		}
	}

	words, err := DistinctWords(txn)
	if err != nil {
		return err
	}
	if err := BuildWordPositionLevels(txn, words); err != nil {
		return err
	}

	// DB 3 and DB 8 are derived wholesale from DB 2/DB 7; rebuilding from
	// a clean slate is what lets a prefix that fell below the frequency
	// threshold (or lost members to a replaced document) actually go away.
	if err := clearDatabase(txn, badger.DBWordPrefix); err != nil {
		return err
	}
	if err := clearDatabase(txn, badger.DBWordPrefixPositionLevels); err != nil {
		return err
	}
	prefixes, err := RebuildWordPrefixes(txn)
	if err != nil {
		return err
	}
	for _, prefix := range prefixes {
		if err := DeriveWordPrefixLevel0(txn, prefix, words); err != nil {
			return err
		}
	}
	if err := BuildWordPrefixPositionLevels(txn, prefixes); err != nil {
		return err
	}

	if err := BuildFacetNumberLevels(txn, b.FacetedNumberIDs); err != nil {
		return err
	}

	if err := BuildGeoIndex(txn); err != nil {
		return err
	}

	if err := RebuildWordsFST(txn); err != nil {
		return err
	}

	if err := SaveFieldsMap(txn, b.Fields); err != nil {
		return err
	}
	if b.ExternalIDs != nil {
		if err := SaveExternalIDs(txn, b.ExternalIDs); err != nil {
			return err
		}
	}
	if len(b.DistributionDiff) > 0 {
		if err := MergeFieldDistribution(txn, b.DistributionDiff); err != nil {
			return err
		}
	}
	if b.PrimaryKey != "" {
		if err := SavePrimaryKey(txn, b.PrimaryKey); err != nil {
			return err
		}
	}

	bitmapEnc, err := RebuildDocumentsIDsBitmap(txn)
	if err != nil {
		return err
	}
	return SaveDocumentsIDsBitmap(txn, bitmapEnc)
}

// RebuildDocumentsIDsBitmap scans DB 14 and returns the encoded bitmap of
// every live internal docid. Cheap relative to the rest of a commit since
// it only reads keys, not values.
func RebuildDocumentsIDsBitmap(txn *badger.Txn) ([]byte, error) {
	bm := roaring.NewBitmap()
	err := txn.Iterate(badger.DBDocuments, badger.IterOptions{}, func(key, _ []byte) (bool, error) {
		bm.Add(codec.GetUint32(key))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return codec.EncodeBitmap(bm)
}
