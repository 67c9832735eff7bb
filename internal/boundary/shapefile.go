package boundary

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/areal/internal/projection"
)

// LoadShapefile reads polygon records from an ESRI shapefile. The key comes
// from the DBF attribute keyField (case-insensitive). The SRID is inferred
// from a sibling .prj file when one is present.
func LoadShapefile(path, keyField string) (*Store, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	keyIdx := -1
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), keyField) {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, eris.Errorf("boundary: key field %s not found in %s", keyField, path)
	}

	b := newBuilder(keyField)
	b.store.SRID = sridFromPrj(path)

	for reader.Next() {
		_, shape := reader.Shape()
		key := strings.TrimSpace(strings.TrimRight(reader.Attribute(keyIdx), "\x00"))

		var g geom.T
		if p, ok := shape.(*shp.Polygon); ok {
			g = shapePolygon(p)
		}
		if err := b.add(key, g); err != nil {
			return nil, err
		}
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	if b.skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", b.skipped),
		)
	}
	return b.store, nil
}

// shapePolygon converts a shapefile polygon to a MultiPolygon. Shapefile outer
// rings wind clockwise and holes counter-clockwise; each hole is attached to
// the most recent outer ring.
func shapePolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(flat) <= 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var sum float64
	for i := 0; i+3 < len(flat); i += 2 {
		sum += flat[i]*flat[i+3] - flat[i+2]*flat[i+1]
	}
	return sum / 2
}

// sridFromPrj inspects the WKT in a .prj sidecar. Unknown or missing
// projections yield 0 so the caller's default applies.
func sridFromPrj(shpPath string) int {
	prjPath := strings.TrimSuffix(shpPath, ".shp") + ".prj"
	data, err := os.ReadFile(prjPath)
	if err != nil {
		return 0
	}
	wkt := strings.ToUpper(string(data))
	switch {
	case strings.Contains(wkt, "BRITISH_NATIONAL_GRID"), strings.Contains(wkt, "OSGB 1936 / BRITISH NATIONAL GRID"), strings.Contains(wkt, "OSGB_1936_BRITISH_NATIONAL_GRID"):
		return projection.BritishNationalGrid
	case strings.Contains(wkt, "LAEA") && strings.Contains(wkt, "ETRS"):
		return projection.LAEAEurope
	case strings.HasPrefix(strings.TrimSpace(wkt), "GEOGCS") && strings.Contains(wkt, "WGS"):
		return projection.WGS84
	default:
		return 0
	}
}
