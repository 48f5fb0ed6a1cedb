// Package criteria implements the ranking pipeline: it
// resolves a query tree (internal/query) against the databases
// internal/writer built, then refines the resulting candidate set through
// an ordered chain of criteria (words, typo, proximity, attribute,
// exactness, sort) that each split a bucket of tied documents into finer,
// better-ranked sub-buckets.
package criteria

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/vellum"
	"github.com/blevesearch/vellum/levenshtein"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/query"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// maxTypoDFA bounds the Levenshtein automata this package ever builds;
// QueryKind.Typo never exceeds 2 (internal/query's typo table tops out
// there), and a corrupt tree must not build a higher-order automaton.
const maxTypoDFA = 2

// Context is everything the resolver and the criterion chain need from
// the index: the raw databases, wrapped with the decoding every criterion
// otherwise duplicates. It also satisfies query.Context, so the same
// value drives both tree construction and tree resolution.
type Context interface {
	query.Context

	// WordDocids returns DB 2's exact posting list for word.
	WordDocids(word string) (*roaring.Bitmap, error)

	// WordPrefixDocids returns DB 3's posting list for a kept prefix, or
	// an empty bitmap if prefix never cleared the frequency threshold.
	WordPrefixDocids(prefix string) (*roaring.Bitmap, error)

	// WordDerivations streams the words FST (and, if prefix is set, the
	// words-prefix FST) with a Levenshtein automaton bounded by typos
	// edits, returning every matching word with its posting list.
	WordDerivations(word string, typos uint8, prefix bool) ([]WordDerivation, error)

	// WordPairProximityDocids returns DB 5's posting list for the
	// ordered pair (word1, word2) at exactly distance prox.
	WordPairProximityDocids(word1, word2 string, prox uint8) (*roaring.Bitmap, error)

	// DocidWordPositions decodes DB 4's packed position list for one
	// (docid, word) pair.
	DocidWordPositions(docid uint32, word string) ([]uint32, error)

	// FieldWordCountDocids returns DB 9's posting list for (field, count).
	FieldWordCountDocids(fieldID uint16, count uint32) (*roaring.Bitmap, error)

	// FieldDocidFacetNumber returns the numeric facet value recorded for
	// (field, docid) in DB 12, and whether one exists.
	FieldDocidFacetNumber(fieldID uint16, docid uint32) (float64, bool, error)

	// FieldDocidFacetStrings returns every original-form string facet
	// value recorded for (field, docid) in DB 13, in no particular order.
	FieldDocidFacetStrings(fieldID uint16, docid uint32) ([]string, error)

	// Fields exposes the field-id map so callers can resolve names.
	Fields() *fieldmap.FieldsMap

	// SearchableFieldIDs lists every field the attribute criterion should
	// consider, in their configured ranking order (earlier = preferred).
	SearchableFieldIDs() []uint16
}

// WordDerivation is one word the Levenshtein automaton accepted, paired
// with its posting list. Typos holds the edit budget the automaton was
// built with, an upper bound on the edits the word actually cost.
type WordDerivation struct {
	Word   string
	Typos  uint8
	Docids *roaring.Bitmap
}

type txnContext struct {
	txn                 *badger.Txn
	fields              *fieldmap.FieldsMap
	searchableFieldIDs  []uint16
	stopWords           map[string]bool
	synonyms            map[string][][]string
}

// NewContext builds a Context backed by one read (or write) transaction.
// synonyms may be nil; searchableFieldIDs should already be in ranking
// order (the Attribute criterion iterates it in this order).
func NewContext(txn *badger.Txn, fields *fieldmap.FieldsMap, searchableFieldIDs []uint16, stopWords map[string]bool, synonyms map[string][][]string) Context {
	return &txnContext{
		txn:                txn,
		fields:             fields,
		searchableFieldIDs: searchableFieldIDs,
		stopWords:          stopWords,
		synonyms:           synonyms,
	}
}

func (c *txnContext) Fields() *fieldmap.FieldsMap      { return c.fields }
func (c *txnContext) SearchableFieldIDs() []uint16     { return c.searchableFieldIDs }

func (c *txnContext) WordDocumentCount(word string) (int, error) {
	bm, err := c.WordDocids(word)
	if err != nil {
		return 0, err
	}
	return int(bm.GetCardinality()), nil
}

func (c *txnContext) Synonyms(words []string) ([][]string, error) {
	if len(words) != 1 || c.synonyms == nil {
		return nil, nil
	}
	return c.synonyms[words[0]], nil
}

func (c *txnContext) WordDocids(word string) (*roaring.Bitmap, error) {
	return c.loadBitmap(badger.DBWord, codec.WordKey(word))
}

func (c *txnContext) WordPrefixDocids(prefix string) (*roaring.Bitmap, error) {
	return c.loadBitmap(badger.DBWordPrefix, codec.WordKey(prefix))
}

func (c *txnContext) loadBitmap(db badger.Database, key []byte) (*roaring.Bitmap, error) {
	blob, err := c.txn.Get(db, key)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return roaring.NewBitmap(), nil
	}
	return codec.DecodeBitmap(blob)
}

func (c *txnContext) WordPairProximityDocids(word1, word2 string, prox uint8) (*roaring.Bitmap, error) {
	return c.loadBitmap(badger.DBWordPairProximity, codec.WordPairProximityKey(word1, word2, prox))
}

func (c *txnContext) DocidWordPositions(docid uint32, word string) ([]uint32, error) {
	blob, err := c.txn.Get(badger.DBDocidWordPositions, codec.DocidWordKey(docid, word))
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, nil
	}
	bm, err := codec.DecodeBitmap(blob)
	if err != nil {
		return nil, err
	}
	positions := make([]uint32, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		positions = append(positions, it.Next())
	}
	return positions, nil
}

func (c *txnContext) FieldWordCountDocids(fieldID uint16, count uint32) (*roaring.Bitmap, error) {
	return c.loadBitmap(badger.DBFieldWordCount, codec.FieldWordCountKey(fieldID, count))
}

func (c *txnContext) FieldDocidFacetNumber(fieldID uint16, docid uint32) (float64, bool, error) {
	blob, err := c.txn.Get(badger.DBFieldDocidFacetNumber, codec.FieldDocidFacetNumberKey(fieldID, docid))
	if err != nil {
		return 0, false, err
	}
	if len(blob) != 8 {
		return 0, false, nil
	}
	return codec.GetF64Ordered(blob), true, nil
}

func (c *txnContext) FieldDocidFacetStrings(fieldID uint16, docid uint32) ([]string, error) {
	prefix := codec.FieldDocidFacetStringPrefix(fieldID, docid)
	var out []string
	err := c.txn.Iterate(badger.DBFieldDocidFacetString, badger.IterOptions{Prefix: prefix}, func(_, value []byte) (bool, error) {
		out = append(out, string(value))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WordDerivations streams the words FST (and the words-prefix FST when
// prefix is requested) with a Levenshtein automaton of the given edit
// budget, completing the query builder's deferred resolution: a Tolerant
// QueryKind only records the word and budget, and it's this call that
// turns it into concrete candidate words at evaluation time.
func (c *txnContext) WordDerivations(word string, typos uint8, prefix bool) ([]WordDerivation, error) {
	if typos > maxTypoDFA {
		typos = maxTypoDFA
	}

	fstBlob, err := c.txn.Get(badger.DBMain, codec.MainWordsFSTKey())
	if err != nil {
		return nil, err
	}
	var derivations []WordDerivation
	if len(fstBlob) > 0 {
		ds, err := streamDerivations(fstBlob, word, typos)
		if err != nil {
			return nil, err
		}
		for _, d := range ds {
			bm, err := c.WordDocids(d.Word)
			if err != nil {
				return nil, err
			}
			if bm.IsEmpty() {
				continue
			}
			d.Docids = bm
			derivations = append(derivations, d)
		}
	}

	if prefix {
		prefixBlob, err := c.txn.Get(badger.DBMain, codec.MainWordsPrefixFSTKey())
		if err != nil {
			return nil, err
		}
		if len(prefixBlob) > 0 {
			ds, err := streamDerivations(prefixBlob, word, typos)
			if err != nil {
				return nil, err
			}
			for _, d := range ds {
				bm, err := c.WordPrefixDocids(d.Word)
				if err != nil {
					return nil, err
				}
				if bm.IsEmpty() {
					continue
				}
				d.Docids = bm
				derivations = append(derivations, d)
			}
		}
	}
	return derivations, nil
}

// streamDerivations walks fstBlob with a Levenshtein automaton bounded by
// typos edits, collecting every accepted key. typos == 0 still uses a
// (trivial) automaton rather than a direct FST.Get so prefix derivations
// share the same code path regardless of budget.
func streamDerivations(fstBlob []byte, word string, typos uint8) ([]WordDerivation, error) {
	fst, err := vellum.Load(fstBlob)
	if err != nil {
		return nil, common.NewInternalError(common.ErrCorruption, err, "failed to load fst")
	}

	builder, err := levenshtein.NewLevenshteinAutomatonBuilder(uint8(maxTypoDFA), true)
	if err != nil {
		return nil, common.NewInternalError(common.ErrCorruption, err, "failed to build levenshtein automaton builder")
	}
	dfa, err := builder.BuildDfa(word, typos)
	if err != nil {
		return nil, common.NewInternalError(common.ErrCorruption, err, "failed to build levenshtein dfa for %q", word)
	}

	itr, err := fst.Search(dfa, nil, nil)
	var out []WordDerivation
	for err == nil {
		key, _ := itr.Current()
		out = append(out, WordDerivation{Word: string(key), Typos: typos})
		err = itr.Next()
	}
	if err != nil && err != vellum.ErrIteratorDone {
		return nil, common.NewInternalError(common.ErrCorruption, err, "fst derivation stream failed")
	}
	return out, nil
}
