// Package projection converts geographic (longitude/latitude) geometries into
// the planar coordinate systems used for area arithmetic.
package projection

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/wroge/wgs84"
)

// Supported EPSG codes.
const (
	// WGS84 is geographic longitude/latitude in degrees.
	WGS84 = 4326
	// BritishNationalGrid is OSGB36 / British National Grid.
	BritishNationalGrid = 27700
	// LAEAEurope is ETRS89 / LAEA Europe.
	LAEAEurope = 3035
	// EASEGrid2 is WGS84 / NSIDC EASE-Grid 2.0 Global.
	EASEGrid2 = 6933
)

// registry resolves EPSG codes to wgs84 reference systems. 27700 carries
// the OSGB36 Helmert shift; 3035 is ETRS89 treated as coincident with WGS84.
var registry = func() *wgs84.Repository {
	r := wgs84.EPSG()
	r.Add(EASEGrid2, wgs84.ProjectedReferenceSystem{
		Datum:      wgs84.WGS84(),
		Projection: easeGrid2{},
	})
	return r
}()

var planar = []int{BritishNationalGrid, LAEAEurope, EASEGrid2}

// Supported reports whether srid can be used as a planar target.
func Supported(srid int) bool {
	for _, p := range planar {
		if p == srid {
			return true
		}
	}
	return false
}

// Planar returns the EPSG codes that can be used as planar targets.
func Planar() []int {
	return append([]int(nil), planar...)
}

// Known reports whether geometries in srid can be reprojected.
func Known(srid int) bool {
	return srid == 0 || registry.Code(srid) != nil
}

// ParseSRID accepts "27700", "EPSG:27700" and the OGC URN form
// "urn:ogc:def:crs:EPSG::27700". "CRS84" and its URN map to WGS84.
func ParseSRID(s string) (int, error) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	if strings.HasSuffix(upper, "CRS84") {
		return WGS84, nil
	}
	if i := strings.LastIndex(upper, ":"); i >= 0 {
		upper = upper[i+1:]
	}
	srid, err := strconv.Atoi(upper)
	if err != nil || srid <= 0 {
		return 0, eris.Errorf("projection: unrecognised CRS %q", s)
	}
	return srid, nil
}

// Transform returns a copy of g reprojected from src into target. A src of 0
// means the geometry carried no CRS and is treated as WGS84. Any CRS for
// which Known is true may be the source. The input is never modified.
func Transform(g geom.T, src, target int) (geom.T, error) {
	if src == 0 {
		src = WGS84
	}

	stride := g.Stride()
	out := make([]float64, len(g.FlatCoords()))
	copy(out, g.FlatCoords())

	if src != target {
		from := registry.Code(src)
		if from == nil {
			return nil, eris.Errorf("projection: unsupported source CRS EPSG:%d", src)
		}
		if !Supported(target) {
			return nil, eris.Errorf("projection: unsupported target CRS EPSG:%d", target)
		}
		fn := wgs84.Transform(from, registry.Code(target))
		for i := 0; i+1 < len(out); i += stride {
			x, y := out[i], out[i+1]
			if !finite(x) || !finite(y) || (src == WGS84 && (y < -90 || y > 90)) {
				return nil, eris.Errorf("projection: coordinate (%g, %g) is not valid in EPSG:%d", x, y, src)
			}
			out[i], out[i+1], _ = fn(x, y, 0)
			if !finite(out[i]) || !finite(out[i+1]) {
				return nil, eris.Errorf("projection: coordinate (%g, %g) has no image in EPSG:%d", x, y, target)
			}
		}
	}

	switch t := g.(type) {
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), out, t.Ends()).SetSRID(target), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(t.Layout(), out, t.Endss()).SetSRID(target), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(t.Layout(), out).SetSRID(target), nil
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), out).SetSRID(target), nil
	default:
		return nil, eris.Errorf("projection: unsupported geometry type %T", g)
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// FromGeoJSONCRS resolves the legacy GeoJSON "crs" member. A nil member
// yields 0 so callers can apply their own default.
func FromGeoJSONCRS(crs *geojson.CRS) (int, error) {
	if crs == nil {
		return 0, nil
	}
	if crs.Type != "" && !strings.EqualFold(crs.Type, "name") {
		return 0, eris.Errorf("projection: unsupported GeoJSON crs type %q", crs.Type)
	}
	name, _ := crs.Properties["name"].(string)
	if name == "" {
		return 0, eris.New("projection: GeoJSON crs has no name")
	}
	return ParseSRID(name)
}
