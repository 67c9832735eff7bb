package areal

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/areal/internal/projection"
)

// Query is a caller boundary: one polygon per feature, in SRID.
type Query struct {
	SRID     int
	Polygons []*geom.Polygon
}

// NewQuery builds a Query from geometries already in srid, coercing each.
func NewQuery(srid int, geoms ...geom.T) (*Query, error) {
	if srid == 0 {
		srid = projection.WGS84
	}
	q := &Query{SRID: srid}
	for i, g := range geoms {
		p, err := Coerce(i, g)
		if err != nil {
			return nil, err
		}
		q.Polygons = append(q.Polygons, p)
	}
	return q, nil
}

// ParseQuery decodes a GeoJSON FeatureCollection, Feature or bare geometry.
// Coordinates are longitude/latitude unless a legacy "crs" member says
// otherwise.
func ParseQuery(data []byte) (*Query, error) {
	var head struct {
		Type string       `json:"type"`
		CRS  *geojson.CRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &GeometryError{Index: -1, Reason: err.Error()}
	}

	srid, err := projection.FromGeoJSONCRS(head.CRS)
	if err != nil {
		return nil, &GeometryError{Index: -1, Reason: err.Error()}
	}
	if !projection.Known(srid) {
		return nil, &GeometryError{Index: -1, Reason: fmt.Sprintf("unsupported CRS EPSG:%d", srid)}
	}

	var geoms []geom.T
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, &GeometryError{Index: -1, Reason: err.Error()}
		}
		for _, f := range fc.Features {
			if f == nil {
				geoms = append(geoms, nil)
				continue
			}
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, &GeometryError{Index: -1, Reason: err.Error()}
		}
		geoms = append(geoms, f.Geometry)
	case "":
		return nil, &GeometryError{Index: -1, Reason: "missing GeoJSON type"}
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, &GeometryError{Index: -1, Reason: err.Error()}
		}
		geoms = append(geoms, g)
	}

	return NewQuery(srid, geoms...)
}

// Coerce converts one feature geometry to a polygon. Polygons pass through;
// a closed LineString becomes the shell of a polygon; a MultiPolygon with a
// single part becomes that part. Anything else is a GeometryError.
func Coerce(index int, g geom.T) (*geom.Polygon, error) {
	switch t := g.(type) {
	case nil:
		return nil, &GeometryError{Index: index, Type: "null", Reason: "feature has no geometry"}
	case *geom.Polygon:
		if t.Empty() || t.NumLinearRings() == 0 {
			return nil, &GeometryError{Index: index, Type: "Polygon", Reason: "empty polygon"}
		}
		return t, nil
	case *geom.LineString:
		if !closedRing(t) {
			return nil, &GeometryError{Index: index, Type: "LineString", Reason: "line is not a closed ring"}
		}
		return geom.NewPolygonFlat(t.Layout(), t.FlatCoords(), []int{len(t.FlatCoords())}).SetSRID(t.SRID()), nil
	case *geom.MultiPolygon:
		if t.NumPolygons() != 1 {
			return nil, &GeometryError{Index: index, Type: "MultiPolygon", Reason: "multipolygon must have exactly one part"}
		}
		return Coerce(index, t.Polygon(0))
	default:
		return nil, &GeometryError{Index: index, Type: typeString(g), Reason: "cannot be coerced to a polygon"}
	}
}

func closedRing(l *geom.LineString) bool {
	n := l.NumCoords()
	if n < 4 {
		return false
	}
	first, last := l.Coord(0), l.Coord(n-1)
	return first.X() == last.X() && first.Y() == last.Y()
}

func typeString(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "Point"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	default:
		return "unknown"
	}
}
