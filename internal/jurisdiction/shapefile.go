package jurisdiction

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/permit-cli/internal/model"
)

// LoadOptions describes the shapefile being loaded. TIGER place and county
// files carry no USPS state code, so the caller names it.
type LoadOptions struct {
	Level   model.JurisdictionLevel
	State   string // two-letter USPS code
	Contact string
}

// LoadShapefile reads TIGER place or county boundaries. Each record becomes
// a Boundary whose ID is the slugged name plus state, e.g. "austin-tx" or
// "travis-county-tx". Records without a name or polygon are skipped.
func LoadShapefile(path string, opts LoadOptions) ([]model.Boundary, error) {
	if _, ok := levelRank[opts.Level]; !ok {
		return nil, eris.Errorf("jurisdiction: unknown level %q", opts.Level)
	}
	state := strings.ToUpper(strings.TrimSpace(opts.State))
	if len(state) != 2 {
		return nil, eris.Errorf("jurisdiction: state must be a two-letter code, got %q", opts.State)
	}

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "jurisdiction: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		fieldIdx[strings.ToLower(strings.TrimRight(f.String(), "\x00"))] = i
	}
	attr := func(name string) string {
		i, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
	}
	if _, ok := fieldIdx["name"]; !ok {
		return nil, eris.Errorf("jurisdiction: %s has no NAME field", path)
	}

	var out []model.Boundary
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		name := attr("name")
		poly, ok := shape.(*shp.Polygon)
		if name == "" || !ok {
			skipped++
			continue
		}
		mp := ShapeToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		wkb, err := EncodeWKB(mp)
		if err != nil {
			skipped++
			continue
		}

		display := attr("namelsad")
		if display == "" {
			display = name
		}
		id := Slug(name)
		if opts.Level == model.LevelCounty && !strings.HasSuffix(id, "-county") {
			id += "-county"
		}
		out = append(out, model.Boundary{
			Authority: model.Authority{
				ID:      id + "-" + strings.ToLower(state),
				Name:    display,
				Level:   opts.Level,
				Contact: opts.Contact,
			},
			State:    state,
			Geometry: wkb,
		})
	}

	if skipped > 0 {
		zap.L().Debug("jurisdiction: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

// ShapeToMultiPolygon converts a shapefile polygon. Shapefiles store outer
// rings clockwise and holes counter-clockwise; a counter-clockwise ring is
// attached as a hole of the preceding outer ring.
func ShapeToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if len(polys) > 0 && xy.IsRingCounterClockwise(geom.XY, flat) {
			if err := polys[len(polys)-1].Push(ring); err != nil {
				zap.L().Debug("jurisdiction: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("jurisdiction: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		polys = append(polys, poly)
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("jurisdiction: skipping malformed polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// Slug lower-cases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
