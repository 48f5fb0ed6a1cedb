package writer

import (
	"bytes"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/golang/geo/s2"

	"github.com/lexidx/lexidx/internal/codec"
	"github.com/lexidx/lexidx/internal/storage/badger"
)

// geoIndexLevel is the S2 cell level every geo point is indexed at: a
// poor man's R-tree over the unit sphere, the same trick used to turn a
// flat sorted-array store into a spatial index without a dedicated
// geospatial database.
const geoIndexLevel = 16

// geoCellEntry is one row of the persisted geo index: the id of the
// geoIndexLevel cell holding a point and the docid it belongs to, stored
// sorted ascending by cell id. The `_geoRadius` filter evaluator reads
// every row and tests its cell against the query's RegionCoverer output.
type geoCellEntry struct {
	cell  s2.CellID
	docid uint32
}

// BuildGeoIndex rebuilds the geo index (DB "geo R-tree" blob) and the
// geo-faceted docids bitmap from every entry currently in DBGeoPoints.
// Must run after CommitSorters has applied a batch's GeoPoints sorter.
func BuildGeoIndex(txn *badger.Txn) error {
	var entries []geoCellEntry
	faceted := roaring.NewBitmap()

	err := txn.Iterate(badger.DBGeoPoints, badger.IterOptions{}, func(key, value []byte) (bool, error) {
		docid := codec.GetUint32(key)
		lat, lng := codec.GetGeoPoint(value)
		cellID := s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lng)).Parent(geoIndexLevel)
		entries = append(entries, geoCellEntry{cell: cellID, docid: docid})
		faceted.Add(docid)
		return true, nil
	})
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].cell < entries[j].cell })

	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(codec.PutUint64(uint64(e.cell)))
		buf.Write(codec.PutUint32(e.docid))
	}
	if err := txn.Put(badger.DBMain, codec.MainGeoRTreeKey(), buf.Bytes()); err != nil {
		return err
	}

	facetedEnc, err := codec.EncodeBitmap(faceted)
	if err != nil {
		return err
	}
	return txn.Put(badger.DBMain, codec.MainGeoFacetedDocidsKey(), facetedEnc)
}

// DecodeGeoIndex parses the persisted geo index blob back into its sorted
// (cell, docid) entries. The `_geoRadius` filter evaluator does not call
// it; it decodes the blob with its own reader.
func DecodeGeoIndex(blob []byte) []struct {
	Cell  uint64
	Docid uint32
} {
	const rowSize = 12
	out := make([]struct {
		Cell  uint64
		Docid uint32
	}, 0, len(blob)/rowSize)
	for i := 0; i+rowSize <= len(blob); i += rowSize {
		cell := codec.GetUint64(blob[i : i+8])
		docid := codec.GetUint32(blob[i+8 : i+12])
		out = append(out, struct {
			Cell  uint64
			Docid uint32
		}{Cell: cell, Docid: docid})
	}
	return out
}
