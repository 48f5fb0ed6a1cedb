package filter

import (
	"math"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	bleveGeo "github.com/blevesearch/bleve/v2/geo"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/common"
	"github.com/lexidx/lexidx/internal/fieldmap"
	"github.com/lexidx/lexidx/internal/sorter"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// Evaluator walks a parsed filter AST against one read txn's snapshot,
// resolving comparisons/ranges against the facet level hierarchy, string
// equality against the facet string database, and `_geoRadius` against
// the geo index.
type Evaluator struct {
	Txn                *badger.Txn
	Fields             *fieldmap.FieldsMap
	FilterableFieldIDs map[uint16]bool
	FilterableNames    []string // sorted, for AttributeNotFilterable's error message

	// geoIndexLevel must match the level internal/writer built the geo
	// index at (internal/writer.geoIndexLevel); duplicated here rather
	// than imported to keep the filter and writer packages independent of
	// each other.
	GeoIndexLevel int
}

// Eval resolves expr to the bitmap of matching internal docids.
func (e *Evaluator) Eval(expr Expr) (*roaring.Bitmap, error) {
	switch n := expr.(type) {
	case *And:
		left, err := e.Eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.Eval(n.Right)
		if err != nil {
			return nil, err
		}
		return roaring.And(left, right), nil
	case *Or:
		left, err := e.Eval(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := e.Eval(n.Right)
		if err != nil {
			return nil, err
		}
		return roaring.Or(left, right), nil
	case *Not:
		inner, err := e.Eval(n.Inner)
		if err != nil {
			return nil, err
		}
		all, err := e.allDocuments()
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(all, inner), nil
	case *Compare:
		return e.evalCompare(n)
	case *Range:
		return e.evalRange(n)
	case *In:
		return e.evalIn(n)
	case *Exists:
		return e.evalExists(n)
	case *GeoRadius:
		return e.evalGeoRadius(n)
	default:
		return nil, common.NewInternalError(common.ErrCorruption, nil, "unknown filter AST node %T", expr)
	}
}

func (e *Evaluator) resolveFilterable(name string) (uint16, error) {
	fid, ok := e.Fields.Lookup(name)
	if !ok || !e.FilterableFieldIDs[fid] {
		return 0, common.NewUserError(common.ErrAttributeNotFilterable,
			"attribute %q is not filterable, available filterable attributes: %s",
			name, strings.Join(e.FilterableNames, ", "))
	}
	return fid, nil
}

func (e *Evaluator) allDocuments() (*roaring.Bitmap, error) {
	blob, err := e.Txn.Get(badger.DBMain, codec.MainDocumentsIDsBitmapKey())
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return roaring.NewBitmap(), nil
	}
	return codec.DecodeBitmap(blob)
}

func (e *Evaluator) facetExists(fieldID uint16) (*roaring.Bitmap, error) {
	blob, err := e.Txn.Get(badger.DBMain, codec.MainFacetExistsKey(fieldID))
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return roaring.NewBitmap(), nil
	}
	return codec.DecodeBitmap(blob)
}

func (e *Evaluator) evalCompare(n *Compare) (*roaring.Bitmap, error) {
	fid, err := e.resolveFilterable(n.Field)
	if err != nil {
		return nil, err
	}

	if n.Op == OpNE {
		eq, err := e.evalEquality(fid, n.Value)
		if err != nil {
			return nil, err
		}
		all, err := e.facetExists(fid)
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(all, eq), nil
	}

	if n.Op == OpEQ {
		return e.evalEquality(fid, n.Value)
	}

	// >, >=, <, <= only make sense against the numeric facet levels.
	if !n.Value.IsNumber {
		return nil, common.NewUserError(common.ErrInvalidFilter,
			"operator %q on %q requires a numeric value", n.Op, n.Field)
	}
	lo, hi := math.Inf(-1), math.Inf(1)
	switch n.Op {
	case OpGT:
		lo = math.Nextafter(n.Value.Num, math.Inf(1))
	case OpGE:
		lo = n.Value.Num
	case OpLT:
		hi = math.Nextafter(n.Value.Num, math.Inf(-1))
	case OpLE:
		hi = n.Value.Num
	}
	return e.scanNumericRange(fid, lo, hi)
}

func (e *Evaluator) evalEquality(fid uint16, v Value) (*roaring.Bitmap, error) {
	if v.IsNumber {
		return e.scanNumericRange(fid, v.Num, v.Num)
	}
	return e.lookupStringFacet(fid, v.Str)
}

func (e *Evaluator) evalRange(n *Range) (*roaring.Bitmap, error) {
	fid, err := e.resolveFilterable(n.Field)
	if err != nil {
		return nil, err
	}
	if !n.Low.IsNumber || !n.High.IsNumber {
		return nil, common.NewUserError(common.ErrInvalidFilter, "%q TO %q range requires numeric bounds", n.Field, n.Field)
	}
	return e.scanNumericRange(fid, n.Low.Num, n.High.Num)
}

func (e *Evaluator) evalIn(n *In) (*roaring.Bitmap, error) {
	fid, err := e.resolveFilterable(n.Field)
	if err != nil {
		return nil, err
	}
	result := roaring.NewBitmap()
	for _, v := range n.Values {
		matched, err := e.evalEquality(fid, v)
		if err != nil {
			return nil, err
		}
		result.Or(matched)
	}
	if n.Negate {
		all, err := e.facetExists(fid)
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(all, result), nil
	}
	return result, nil
}

func (e *Evaluator) evalExists(n *Exists) (*roaring.Bitmap, error) {
	fid, err := e.resolveFilterable(n.Field)
	if err != nil {
		return nil, err
	}
	bm, err := e.facetExists(fid)
	if err != nil {
		return nil, err
	}
	if n.Negate {
		all, err := e.allDocuments()
		if err != nil {
			return nil, err
		}
		return roaring.AndNot(all, bm), nil
	}
	return bm, nil
}

// scanNumericRange unions every DB 10 level-0 entry overlapping [lo, hi].
// Equal by construction to the multi-level range-descent algorithm's
// result; this evaluator scans level 0
// directly rather than descending the hierarchy writer.BuildFacetNumberLevels
// built, which stays available for a future query planner to exploit.
func (e *Evaluator) scanNumericRange(fieldID uint16, lo, hi float64) (*roaring.Bitmap, error) {
	result := roaring.NewBitmap()
	prefix := codec.FacetNumberLevelPrefix(fieldID, 0)
	err := e.Txn.Iterate(badger.DBFacetNumberLevels, badger.IterOptions{Prefix: prefix}, func(key, value []byte) (bool, error) {
		n := len(key)
		left := codec.GetF64Ordered(key[n-16 : n-8])
		right := codec.GetF64Ordered(key[n-8:])
		if right < lo || left > hi {
			return true, nil
		}
		bm, err := codec.DecodeBitmap(value)
		if err != nil {
			return false, err
		}
		result.Or(bm)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Evaluator) lookupStringFacet(fieldID uint16, value string) (*roaring.Bitmap, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	raw, err := e.Txn.Get(badger.DBFacetStringLevels, codec.FacetStringKey(fieldID, normalized))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return roaring.NewBitmap(), nil
	}
	_, bmBytes, err := sorter.SplitPrefixValue(raw)
	if err != nil {
		return nil, err
	}
	return codec.DecodeBitmap(bmBytes)
}

const earthRadiusMeters = 6371008.8

func (e *Evaluator) evalGeoRadius(n *GeoRadius) (*roaring.Bitmap, error) {
	if n.Lat < -90 || n.Lat > 90 {
		return nil, common.NewUserError(common.ErrInvalidFilter, "_geoRadius latitude %v out of range [-90,90]", n.Lat)
	}
	if n.Lng < -180 || n.Lng > 180 {
		return nil, common.NewUserError(common.ErrInvalidFilter, "_geoRadius longitude %v out of range [-180,180]", n.Lng)
	}
	if n.Meters < 0 {
		return nil, common.NewUserError(common.ErrInvalidFilter, "_geoRadius distance %v must be non-negative", n.Meters)
	}

	blob, err := e.Txn.Get(badger.DBMain, codec.MainGeoRTreeKey())
	if err != nil {
		return nil, err
	}
	entries := decodeGeoEntries(blob)
	if len(entries) == 0 {
		return roaring.NewBitmap(), nil
	}

	level := e.GeoIndexLevel
	if level <= 0 {
		level = 16
	}
	center := s2.PointFromLatLng(s2.LatLngFromDegrees(n.Lat, n.Lng))
	angle := s1.Angle(n.Meters / earthRadiusMeters)
	queryCap := s2.CapFromCenterAngle(center, angle)
	coverer := &s2.RegionCoverer{MaxLevel: level, MinLevel: level, MaxCells: 64}
	covering := coverer.Covering(queryCap)

	result := roaring.NewBitmap()
	for _, entry := range entries {
		cellID := s2.CellID(entry.cell)
		if !covering.ContainsCellID(cellID) {
			continue
		}
		lat, lng, ok, err := e.lookupGeoPoint(entry.docid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		distKm := bleveGeo.Haversin(n.Lng, n.Lat, lng, lat)
		if distKm*1000 <= n.Meters {
			result.Add(entry.docid)
		}
	}
	return result, nil
}

func (e *Evaluator) lookupGeoPoint(docid uint32) (lat, lng float64, ok bool, err error) {
	blob, err := e.Txn.Get(badger.DBGeoPoints, codec.GeoPointKey(docid))
	if err != nil {
		return 0, 0, false, err
	}
	if len(blob) == 0 {
		return 0, 0, false, nil
	}
	lat, lng = codec.GetGeoPoint(blob)
	return lat, lng, true, nil
}

type geoEntry struct {
	cell  uint64
	docid uint32
}

func decodeGeoEntries(blob []byte) []geoEntry {
	const rowSize = 12
	out := make([]geoEntry, 0, len(blob)/rowSize)
	for i := 0; i+rowSize <= len(blob); i += rowSize {
		out = append(out, geoEntry{
			cell:  codec.GetUint64(blob[i : i+8]),
			docid: codec.GetUint32(blob[i+8 : i+12]),
		})
	}
	return out
}
