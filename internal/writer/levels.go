package writer

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// levelBase is the branching factor between consecutive levels of a
// hierarchy: level l groups levelBase^l level-0 entries together.
const levelBase = 4

// minLevelSize is the fewest level-0 entries a hierarchy needs before any
// coarser level is built, and the fewest groups a level above level 1 may
// have; level 1 itself is built with as few as two groups.
const minLevelSize = 4

// maxLevel bounds hierarchy depth as a backstop against pathological
// inputs (a single word with an astronomical distinct-position count);
// ordinary corpora never get close to this.
const maxLevel = 16

// --- word-position levels (DB 7/8): bounds are packed u32 positions ---

type u32LevelEntry struct {
	left, right uint32
	bitmap      *roaring.Bitmap
}

// BuildWordPositionLevels rebuilds the level>0 hierarchy (DB 7) for every
// word that has level-0 entries (written by CommitSorters via
// WordPositionLevel0). Must run after CommitSorters.
func BuildWordPositionLevels(txn *badger.Txn, words []string) error {
	for _, word := range words {
		if err := clearLevelsAbove0(txn, badger.DBWordPositionLevels, func(level uint8) []byte {
			return codec.LevelPrefix(word, level)
		}); err != nil {
			return err
		}
		entries, err := readU32Level0(txn, badger.DBWordPositionLevels, codec.LevelPrefix(word, 0))
		if err != nil {
			return err
		}
		if err := buildU32Levels(txn, badger.DBWordPositionLevels, entries, func(level uint8, left, right uint32) []byte {
			return codec.LevelKey(word, level, left, right)
		}); err != nil {
			return err
		}
	}
	return nil
}

// BuildWordPrefixPositionLevels is the same hierarchy builder applied to
// DB 8, over prefixes instead of whole words.
func BuildWordPrefixPositionLevels(txn *badger.Txn, prefixes []string) error {
	for _, prefix := range prefixes {
		entries, err := readU32Level0(txn, badger.DBWordPrefixPositionLevels, codec.LevelPrefix(prefix, 0))
		if err != nil {
			return err
		}
		if err := buildU32Levels(txn, badger.DBWordPrefixPositionLevels, entries, func(level uint8, left, right uint32) []byte {
			return codec.LevelKey(prefix, level, left, right)
		}); err != nil {
			return err
		}
	}
	return nil
}

// clearLevelsAbove0 deletes every existing level>0 entry reachable via
// prefixFn before a hierarchy rebuild. A rebuild writes fresh group
// boundaries, and a group key from the previous commit whose bounds no
// longer line up would otherwise survive with a stale union.
func clearLevelsAbove0(txn *badger.Txn, db badger.Database, prefixFn func(level uint8) []byte) error {
	for level := uint8(1); level <= maxLevel; level++ {
		var keys [][]byte
		err := txn.Iterate(db, badger.IterOptions{Prefix: prefixFn(level)}, func(key, _ []byte) (bool, error) {
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
	}
	return nil
}

func readU32Level0(txn *badger.Txn, db badger.Database, prefix []byte) ([]u32LevelEntry, error) {
	var out []u32LevelEntry
	err := txn.Iterate(db, badger.IterOptions{Prefix: prefix}, func(key, value []byte) (bool, error) {
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return false, err
		}
		n := len(key)
		left := codec.GetUint32(key[n-8 : n-4])
		right := codec.GetUint32(key[n-4:])
		out = append(out, u32LevelEntry{left: left, right: right, bitmap: bm})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].left < out[j].left })
	return out, nil
}

// buildU32Levels groups level-0 entries into successive coarser levels by
// entry count (levelBase^level entries per group), unioning each group's
// bitmaps and writing one entry per group via keyFn. Grouping by entry
// count rather than by absolute value width keeps every level's
// branching factor uniform regardless of how sparse or
// skewed the underlying distribution is.
func buildU32Levels(txn *badger.Txn, db badger.Database, level0 []u32LevelEntry, keyFn func(level uint8, left, right uint32) []byte) error {
	if len(level0) < minLevelSize {
		return nil
	}

	current := level0
	for level := uint8(1); level <= maxLevel; level++ {
		groupSize := pow(levelBase, level)
		if groupSize >= len(level0) {
			break
		}
		numGroups := (len(level0) + groupSize - 1) / groupSize
		if numGroups < minLevelSize && level > 1 {
			break
		}

		next := make([]u32LevelEntry, 0, numGroups)
		for i := 0; i < len(level0); i += groupSize {
			end := i + groupSize
			if end > len(level0) {
				end = len(level0)
			}
			group := level0[i:end]
			union := roaring.NewBitmap()
			for _, e := range group {
				union.Or(e.bitmap)
			}
			left, right := group[0].left, group[len(group)-1].right
			enc, err := codec.EncodeBitmap(union)
			if err != nil {
				return err
			}
			if err := txn.Put(db, keyFn(level, left, right), enc); err != nil {
				return err
			}
			next = append(next, u32LevelEntry{left: left, right: right, bitmap: union})
		}
		current = next
		if len(current) <= 1 {
			break
		}
	}
	return nil
}

// DeriveWordPrefixLevel0 populates DB 8's level-0 entries for one kept
// prefix by unioning the level-0 entries of every word in words that
// shares it, grouped by identical (left, right) bounds. Must run after
// BuildWordPositionLevels and before BuildWordPrefixPositionLevels, since
// the prefix hierarchy is built over the same per-position buckets the
// word hierarchy uses, just unioned across every word sharing the prefix.
func DeriveWordPrefixLevel0(txn *badger.Txn, prefix string, words []string) error {
	groups := map[[2]uint32]*roaring.Bitmap{}
	var order [][2]uint32

	for _, word := range words {
		if runePrefix(word, PrefixLength) != prefix {
			continue
		}
		entries, err := readU32Level0(txn, badger.DBWordPositionLevels, codec.LevelPrefix(word, 0))
		if err != nil {
			return err
		}
		for _, e := range entries {
			k := [2]uint32{e.left, e.right}
			bm, ok := groups[k]
			if !ok {
				bm = roaring.NewBitmap()
				groups[k] = bm
				order = append(order, k)
			}
			bm.Or(e.bitmap)
		}
	}

	for _, k := range order {
		enc, err := codec.EncodeBitmap(groups[k])
		if err != nil {
			return err
		}
		if err := txn.Put(badger.DBWordPrefixPositionLevels, codec.LevelKey(prefix, 0, k[0], k[1]), enc); err != nil {
			return err
		}
	}
	return nil
}

// --- facet numeric levels (DB 10): bounds are monotonic-encoded f64 ---

type f64LevelEntry struct {
	left, right float64
	bitmap      *roaring.Bitmap
}

// BuildFacetNumberLevels rebuilds the level>0 hierarchy (DB 10) for every
// faceted numeric field, the same grouping scheme applied over the
// field's f64 facet values instead of word positions.
func BuildFacetNumberLevels(txn *badger.Txn, fieldIDs []uint16) error {
	for _, fid := range fieldIDs {
		if err := clearLevelsAbove0(txn, badger.DBFacetNumberLevels, func(level uint8) []byte {
			return codec.FacetNumberLevelPrefix(fid, level)
		}); err != nil {
			return err
		}
		entries, err := readF64Level0(txn, fid)
		if err != nil {
			return err
		}
		if err := buildF64Levels(txn, fid, entries); err != nil {
			return err
		}
	}
	return nil
}

func readF64Level0(txn *badger.Txn, fieldID uint16) ([]f64LevelEntry, error) {
	var out []f64LevelEntry
	prefix := codec.FacetNumberLevelPrefix(fieldID, 0)
	err := txn.Iterate(badger.DBFacetNumberLevels, badger.IterOptions{Prefix: prefix}, func(key, value []byte) (bool, error) {
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return false, err
		}
		n := len(key)
		left := codec.GetF64Ordered(key[n-16 : n-8])
		right := codec.GetF64Ordered(key[n-8:])
		out = append(out, f64LevelEntry{left: left, right: right, bitmap: bm})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].left < out[j].left })
	return out, nil
}

func buildF64Levels(txn *badger.Txn, fieldID uint16, level0 []f64LevelEntry) error {
	if len(level0) < minLevelSize {
		return nil
	}
	for level := uint8(1); level <= maxLevel; level++ {
		groupSize := pow(levelBase, level)
		if groupSize >= len(level0) {
			break
		}
		numGroups := (len(level0) + groupSize - 1) / groupSize
		if numGroups < minLevelSize && level > 1 {
			break
		}
		for i := 0; i < len(level0); i += groupSize {
			end := i + groupSize
			if end > len(level0) {
				end = len(level0)
			}
			group := level0[i:end]
			union := roaring.NewBitmap()
			for _, e := range group {
				union.Or(e.bitmap)
			}
			left, right := group[0].left, group[len(group)-1].right
			enc, err := codec.EncodeBitmap(union)
			if err != nil {
				return err
			}
			if err := txn.Put(badger.DBFacetNumberLevels, codec.FacetNumberLevelKey(fieldID, level, left, right), enc); err != nil {
				return err
			}
		}
		if numGroups <= 1 {
			break
		}
	}
	return nil
}

func pow(base int, exp uint8) int {
	out := 1
	for i := uint8(0); i < exp; i++ {
		out *= base
	}
	return out
}
