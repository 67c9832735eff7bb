package areal

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/areal/internal/projection"
)

// Fragment is the overlap of one unit with one query polygon.
type Fragment struct {
	Key string `json:"key"`
	// Polygon is the index of the query polygon that produced the fragment.
	Polygon      int     `json:"polygon"`
	UnitArea     float64 `json:"area"`
	Intersection float64 `json:"intersection"`
	Ratio        float64 `json:"ratio"`
	// Values aliases the unit's values and must not be modified.
	Values []float64 `json:"values"`
}

// Project returns q reprojected into srid. Geographic and planar queries are
// both accepted as long as their CRS is known to the projection package.
func (q *Query) Project(srid int) (*Query, error) {
	src := q.SRID
	if src == 0 {
		src = projection.WGS84
	}
	if src != srid && !projection.Known(src) {
		return nil, &CRSMismatchError{Query: src, Dataset: srid}
	}

	out := &Query{SRID: srid, Polygons: make([]*geom.Polygon, len(q.Polygons))}
	for i, p := range q.Polygons {
		g, err := projection.Transform(p, src, srid)
		if err != nil {
			return nil, eris.Wrapf(err, "areal: project query polygon %d", i)
		}
		out.Polygons[i] = g.(*geom.Polygon)
	}
	return out, nil
}

// Intersect overlays q on the dataset. q is reprojected into the dataset's
// CRS first. Units with no positive overlap produce no fragment. Fragments
// are ordered by query polygon, then by unit order.
func Intersect(d *Dataset, q *Query) ([]Fragment, error) {
	pq, err := q.Project(d.SRID)
	if err != nil {
		return nil, err
	}
	if pq.SRID != d.SRID {
		return nil, &CRSMismatchError{Query: pq.SRID, Dataset: d.SRID}
	}

	var frags []Fragment
	for pi, poly := range pq.Polygons {
		if poly.SRID() != d.SRID {
			return nil, &CRSMismatchError{Query: poly.SRID(), Dataset: d.SRID}
		}

		qb := poly.Bounds()
		qg, _, err := toGEOS(poly)
		if err != nil {
			return nil, eris.Wrapf(err, "areal: query polygon %d", pi)
		}

		for i := range d.Units {
			u := &d.Units[i]
			if !u.bounds.Overlaps(geom.XY, qb) {
				continue
			}
			inter, contained, err := overlapArea(qg, u.geos, u.Area)
			if err != nil {
				return nil, eris.Wrapf(err, "areal: intersect unit %s", u.Key)
			}
			if !(inter > 0) {
				continue
			}

			ratio := 1.0
			if !contained {
				ratio = inter / u.Area
			}
			frags = append(frags, Fragment{
				Key:          u.Key,
				Polygon:      pi,
				UnitArea:     u.Area,
				Intersection: inter,
				Ratio:        ratio,
				Values:       u.Values,
			})
		}
	}
	return frags, nil
}
