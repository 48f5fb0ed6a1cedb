package extract

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/documents"
)

// NewSorters allocates one sorter per target database, all sharing the
// same memory/spill configuration. A worker owns exactly one Sorters for
// the documents it processes; the caller merges every worker's Sorters
// together once extraction finishes (see Pool).
func NewSorters(opts SorterOptions) *Sorters {
	return &Sorters{
		WordDocids:         newSub(opts, mergeRoaring),
		ExactWordDocids:    newSub(opts, mergeRoaring),
		DocidWordPositions: newSub(opts, mergeRoaring),
		WordPositionLevel0: newSub(opts, mergeRoaring),
		WordPairProximity:  newSub(opts, mergeRoaring),
		FieldWordCount:     newSub(opts, mergeRoaring),
		FacetNumbers:       newSub(opts, keepFirst),
		FacetStrings:       newSub(opts, keepFirst),
		FacetExists:        newSub(opts, mergeRoaring),
		FacetNumberLevel0:  newSub(opts, mergeRoaring),
		FacetStringLevel0:  newSub(opts, keepFirstPrefixMergeRoaring),
		GeoPoints:          newSub(opts, keepFirst),
	}
}

// SingleDocBitmap encodes a one-element bitmap {docid}, the value pushed
// for every posting-list entry produced while walking a single document;
// colliding keys across documents are unioned together by the sorter's
// merge function.
func SingleDocBitmap(docid uint32) []byte {
	bm := roaring.BitmapOf(docid)
	enc, err := codec.EncodeBitmap(bm)
	if err != nil {
		// EncodeBitmap only fails on roaring's own serialization path,
		// which cannot fail for an in-memory bitmap of one element.
		panic(fmt.Sprintf("extract: failed to encode single-doc bitmap: %v", err))
	}
	return enc
}

// Document walks one flattened document (dotted-path keys, OBKV-field-id
// resolved separately) and emits its postings into sorters. fields
// resolves dotted-path field names already flattened by internal/documents
// to field ids.
func Document(ctx *Context, docid uint32, flat map[string]any, fieldID func(name string) (uint16, bool), sorters *Sorters) error {
	for name, value := range flat {
		fid, ok := fieldID(name)
		if !ok {
			continue
		}

		if ctx.IsSearchable(fid) {
			if err := extractText(ctx, sorters, fid, docid, value); err != nil {
				return err
			}
		}

		if ctx.IsFaceted(fid) {
			if err := extractFacet(sorters, fid, docid, value); err != nil {
				return err
			}
		}
	}

	if ctx.HasGeoFields {
		if err := extractGeo(ctx, sorters, docid, flat, fieldID); err != nil {
			return err
		}
	}

	return nil
}

func extractText(ctx *Context, sorters *Sorters, fid uint16, docid uint32, value any) error {
	texts := scalarStrings(value)
	if len(texts) == 0 {
		return nil
	}

	wordSorter := sorters.WordDocids
	if ctx.IsExact(fid) {
		wordSorter = sorters.ExactWordDocids
	}

	var wordCount uint32
	var prevPositions []uint32
	var prevWords []string

	for _, text := range texts {
		tokenize(text, ctx.MaxPositionsPerAttribute, func(relPos uint16, word string) bool {
			if ctx.StopWords[word] {
				return true
			}
			wordCount++
			pos := codec.PackPosition(fid, relPos)

			if err := wordSorter.Push(codec.WordKey(word), SingleDocBitmap(docid)); err != nil {
				return false
			}
			if err := sorters.DocidWordPositions.Push(codec.DocidWordKey(docid, word), SingleDocBitmap(pos)); err != nil {
				return false
			}
			if err := sorters.WordPositionLevel0.Push(codec.LevelKey(word, 0, pos, pos), SingleDocBitmap(docid)); err != nil {
				return false
			}

			emitProximity(sorters, docid, prevWords, prevPositions, word, pos)
			prevWords = appendWindow(prevWords, word)
			prevPositions = appendWindowU32(prevPositions, pos)
			return true
		})
	}

	if wordCount > 0 {
		return sorters.FieldWordCount.Push(codec.FieldWordCountKey(fid, wordCount), SingleDocBitmap(docid))
	}
	return nil
}

// proximityWindow bounds how many preceding words are kept to pair the
// current word against; proximity beyond this distance is represented
// lazily at query time by plain set intersection, so extraction only
// materializes pairs up to distance 7.
const proximityWindow = 7

func appendWindow(words []string, w string) []string {
	words = append(words, w)
	if len(words) > proximityWindow {
		words = words[1:]
	}
	return words
}

func appendWindowU32(positions []uint32, p uint32) []uint32 {
	positions = append(positions, p)
	if len(positions) > proximityWindow {
		positions = positions[1:]
	}
	return positions
}

// emitProximity pairs word (at pos) with every word still inside the
// sliding window, short-circuiting once the distance would reach 8:
// pairs beyond distance 7 are never materialized and are answered at
// query time instead.
func emitProximity(sorters *Sorters, docid uint32, prevWords []string, prevPositions []uint32, word string, pos uint32) {
	for i := len(prevWords) - 1; i >= 0; i-- {
		d := codec.ProximityBetween(prevPositions[i], pos)
		if d == 0 || d > proximityWindow {
			continue
		}
		// (w1, w2, d): the earlier word first, current word second.
		sorters.WordPairProximity.Push(codec.WordPairProximityKey(prevWords[i], word, d), SingleDocBitmap(docid))
		// (w2, w1, d+1): one-sided storage with the +1 offset when the
		// second word precedes the first.
		if d+1 <= proximityWindow {
			sorters.WordPairProximity.Push(codec.WordPairProximityKey(word, prevWords[i], d+1), SingleDocBitmap(docid))
		}
	}
}

func extractFacet(sorters *Sorters, fid uint16, docid uint32, value any) error {
	values := scalarValues(value)
	if len(values) == 0 {
		return nil
	}

	hadAny := false
	for _, v := range values {
		if f, ok := documents.AsFloat64(v); ok {
			hadAny = true
			if err := sorters.FacetNumbers.Push(codec.FieldDocidFacetNumberKey(fid, docid), codec.PutF64Ordered(f)); err != nil {
				return err
			}
			if err := sorters.FacetNumberLevel0.Push(codec.FacetNumberLevelKey(fid, 0, f, f), SingleDocBitmap(docid)); err != nil {
				return err
			}
			continue
		}
		if s, ok := documents.AsString(v); ok {
			hadAny = true
			normalized := strings.ToLower(strings.TrimSpace(s))
			if err := sorters.FacetStrings.Push(codec.FieldDocidFacetStringKey(fid, docid, normalized), []byte(s)); err != nil {
				return err
			}
			if err := sorters.FacetStringLevel0.Push(codec.FacetStringKey(fid, normalized), buildFacetStringValue(s, docid)); err != nil {
				return err
			}
		}
	}
	if hadAny {
		return sorters.FacetExists.Push(codec.MainFacetExistsKey(fid), SingleDocBitmap(docid))
	}
	return nil
}

func buildFacetStringValue(original string, docid uint32) []byte {
	bm := SingleDocBitmap(docid)
	out := make([]byte, 2+len(original)+len(bm))
	out[0] = byte(len(original) >> 8)
	out[1] = byte(len(original))
	copy(out[2:], original)
	copy(out[2+len(original):], bm)
	return out
}

const (
	geoLatMin, geoLatMax = -90.0, 90.0
	geoLngMin, geoLngMax = -180.0, 180.0
)

func extractGeo(ctx *Context, sorters *Sorters, docid uint32, flat map[string]any, fieldID func(string) (uint16, bool)) error {
	var lat, lng float64
	var haveLat, haveLng bool
	for name, value := range flat {
		fid, ok := fieldID(name)
		if !ok {
			continue
		}
		if fid == ctx.GeoLatFieldID {
			if f, ok := documents.AsFloat64(firstScalar(value)); ok {
				lat, haveLat = f, true
			}
		}
		if fid == ctx.GeoLngFieldID {
			if f, ok := documents.AsFloat64(firstScalar(value)); ok {
				lng, haveLng = f, true
			}
		}
	}
	if !haveLat || !haveLng {
		return nil
	}
	if err := validateGeo(lat, lng); err != nil {
		return err
	}
	return sorters.GeoPoints.Push(codec.GeoPointKey(docid), codec.PutGeoPoint(lat, lng))
}

func validateGeo(lat, lng float64) error {
	if lat < geoLatMin || lat > geoLatMax || lat != lat {
		return common.NewUserError(common.ErrInvalidGeoField, "latitude %v out of range [-90,90]", lat)
	}
	if lng < geoLngMin || lng > geoLngMax || lng != lng {
		return common.NewUserError(common.ErrInvalidGeoField, "longitude %v out of range [-180,180]", lng)
	}
	return nil
}

// scalarStrings extracts every string leaf from a flattened field's value,
// which may itself be a scalar or (after flatten's array-collision
// broadcast) a []any of scalars.
func scalarStrings(v any) []string {
	var out []string
	for _, s := range scalarValues(v) {
		if str, ok := documents.AsString(s); ok {
			out = append(out, str)
		}
	}
	return out
}

func scalarValues(v any) []any {
	if seq, ok := v.([]any); ok {
		var out []any
		for _, e := range seq {
			out = append(out, scalarValues(e)...)
		}
		return out
	}
	if v == nil {
		return nil
	}
	return []any{v}
}

func firstScalar(v any) any {
	vals := scalarValues(v)
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}
