package writer

import (
	"bytes"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// PrefixLength is how many leading runes of a word become a candidate
// word-prefix entry. Fixed rather than configurable per index.
const PrefixLength = 4

// PrefixFrequencyThreshold is the minimum combined document frequency a
// prefix needs across all the words sharing it before it's promoted into
// the words-prefix FST and DB 3.
const PrefixFrequencyThreshold = 5

// RebuildWordsFST scans every key in DB 2 (word -> bitmap) and rebuilds
// the words FST from scratch, so the FST always equals DB 2's distinct
// key set. Keys are already visited
// in ascending byte order by Txn.Iterate, which is exactly what vellum's
// builder requires.
func RebuildWordsFST(txn *badger.Txn) error {
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return common.NewInternalError(common.ErrCorruption, err, "failed to start words fst builder")
	}
	err = txn.Iterate(badger.DBWord, badger.IterOptions{}, func(key, _ []byte) (bool, error) {
		if ierr := builder.Insert(key, 0); ierr != nil {
			return false, common.NewInternalError(common.ErrCorruption, ierr, "failed to insert word into fst")
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if err := builder.Close(); err != nil {
		return common.NewInternalError(common.ErrCorruption, err, "failed to close words fst builder")
	}
	return txn.Put(badger.DBMain, codec.MainWordsFSTKey(), buf.Bytes())
}

// RebuildWordPrefixes groups every word in DB 2 by its first PrefixLength
// runes, keeps the prefixes whose combined document frequency clears
// PrefixFrequencyThreshold, writes their unioned bitmaps to DB 3, and
// rebuilds the words-prefix FST from the surviving prefix set.
func RebuildWordPrefixes(txn *badger.Txn) ([]string, error) {
	type acc struct {
		bitmap *roaring.Bitmap
	}
	prefixes := map[string]*acc{}
	var order []string

	err := txn.Iterate(badger.DBWord, badger.IterOptions{}, func(key, value []byte) (bool, error) {
		word := string(key)
		prefix := runePrefix(word, PrefixLength)
		if prefix == "" {
			return true, nil
		}
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return false, err
		}
		a, ok := prefixes[prefix]
		if !ok {
			a = &acc{bitmap: roaring.NewBitmap()}
			prefixes[prefix] = a
			order = append(order, prefix)
		}
		a.bitmap.Or(bm)
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(order)

	var kept []string
	for _, prefix := range order {
		a := prefixes[prefix]
		if int(a.bitmap.GetCardinality()) < PrefixFrequencyThreshold {
			continue
		}
		enc, err := codec.EncodeBitmap(a.bitmap)
		if err != nil {
			return nil, err
		}
		if err := txn.Put(badger.DBWordPrefix, codec.WordKey(prefix), enc); err != nil {
			return nil, err
		}
		kept = append(kept, prefix)
	}

	if err := rebuildPrefixFST(txn, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

func rebuildPrefixFST(txn *badger.Txn, prefixes []string) error {
	var buf bytes.Buffer
	builder, err := vellum.New(&buf, nil)
	if err != nil {
		return common.NewInternalError(common.ErrCorruption, err, "failed to start words-prefix fst builder")
	}
	for _, p := range prefixes {
		if err := builder.Insert([]byte(p), 0); err != nil {
			return common.NewInternalError(common.ErrCorruption, err, "failed to insert prefix into fst")
		}
	}
	if err := builder.Close(); err != nil {
		return common.NewInternalError(common.ErrCorruption, err, "failed to close words-prefix fst builder")
	}
	return txn.Put(badger.DBMain, codec.MainWordsPrefixFSTKey(), buf.Bytes())
}

func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) == 0 {
		return ""
	}
	if len(r) < n {
		return string(r)
	}
	return string(r[:n])
}

// DistinctWords scans DB 2 and returns every distinct word, used by the
// caller to drive BuildWordPositionLevels after a commit.
func DistinctWords(txn *badger.Txn) ([]string, error) {
	var words []string
	err := txn.Iterate(badger.DBWord, badger.IterOptions{}, func(key, _ []byte) (bool, error) {
		words = append(words, string(key))
		return true, nil
	})
	return words, err
}
