// Package jurisdiction decides which permit authority serves a location. It
// loads service-area boundaries from TIGER shapefiles and answers
// point-in-polygon lookups over their WKB encodings.
package jurisdiction

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/permit-cli/internal/model"
)

// levelRank orders authorities from most to least specific.
var levelRank = map[model.JurisdictionLevel]int{
	model.LevelCity:   0,
	model.LevelCounty: 1,
	model.LevelState:  2,
}

type area struct {
	authority model.Authority
	shape     *geom.MultiPolygon
	size      float64
}

// Index answers point lookups over a fixed set of boundaries. It is
// immutable once built and safe for concurrent use.
type Index struct {
	areas []area
}

// NewIndex decodes every boundary that carries a geometry. Boundaries
// without one are skipped; undecodable geometries are an error.
func NewIndex(boundaries []model.Boundary) (*Index, error) {
	idx := &Index{areas: make([]area, 0, len(boundaries))}
	for _, b := range boundaries {
		if len(b.Geometry) == 0 {
			continue
		}
		mp, err := DecodeWKB(b.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "jurisdiction: boundary %s", b.Authority.ID)
		}
		idx.areas = append(idx.areas, area{authority: b.Authority, shape: mp, size: mp.Area()})
	}

	// Most specific level first, then the smallest area, so Locate can stop
	// at the first hit.
	sort.SliceStable(idx.areas, func(i, j int) bool {
		ri, rj := rank(idx.areas[i].authority.Level), rank(idx.areas[j].authority.Level)
		if ri != rj {
			return ri < rj
		}
		return idx.areas[i].size < idx.areas[j].size
	})
	return idx, nil
}

// Len returns the number of indexed boundaries.
func (x *Index) Len() int { return len(x.areas) }

// Locate returns the most specific authority whose area contains the point.
func (x *Index) Locate(lat, lng float64) (model.Authority, bool) {
	if x == nil {
		return model.Authority{}, false
	}
	for _, a := range x.areas {
		if Contains(a.shape, lat, lng) {
			return a.authority, true
		}
	}
	return model.Authority{}, false
}

func rank(l model.JurisdictionLevel) int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return len(levelRank)
}

// Contains reports whether the point lies inside mp: within some polygon's
// exterior ring and outside all of that polygon's holes.
func Contains(mp *geom.MultiPolygon, lat, lng float64) bool {
	pt := geom.Coord{lng, lat}
	if b := mp.Bounds(); b == nil || !b.OverlapsPoint(geom.XY, pt) {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		if polygonContains(mp.Polygon(i), pt) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, pt geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, pt, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, pt, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// DecodeWKB parses a (E)WKB polygon or multipolygon.
func DecodeWKB(data []byte) (*geom.MultiPolygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "jurisdiction: decode WKB")
	}
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.Layout() != geom.XY {
			return nil, eris.Errorf("jurisdiction: unsupported layout %v", t.Layout())
		}
		return t, nil
	case *geom.Polygon:
		if t.Layout() != geom.XY {
			return nil, eris.Errorf("jurisdiction: unsupported layout %v", t.Layout())
		}
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(t.SRID())
		if err := mp.Push(t); err != nil {
			return nil, eris.Wrap(err, "jurisdiction: wrap polygon")
		}
		return mp, nil
	default:
		return nil, eris.Errorf("jurisdiction: geometry %T is not a polygon", g)
	}
}

// EncodeWKB writes mp as NDR EWKB with SRID 4326.
func EncodeWKB(mp *geom.MultiPolygon) ([]byte, error) {
	data, err := ewkb.Marshal(mp.SetSRID(4326), ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "jurisdiction: encode WKB")
	}
	return data, nil
}
