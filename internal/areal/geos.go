package areal

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// toGEOS converts a go-geom polygonal geometry into a valid GEOS geometry.
// Invalid rings (self-intersections, bow ties, spikes) are repaired with the
// structure method, which keeps only polygonal output; repaired reports
// whether that happened.
func toGEOS(g geom.T) (out *geos.Geom, repaired bool, err error) {
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, false, eris.Wrap(err, "areal: encode wkb")
	}

	defer recoverGEOS(&err)

	out, err = geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, false, eris.Wrap(err, "areal: decode wkb into geos")
	}
	if out.IsValid() {
		return out, false, nil
	}
	fixed := out.MakeValidWithParams(geos.MakeValidStructure, geos.MakeValidDiscardCollapsed)
	if fixed == nil {
		return nil, false, eris.New("areal: geometry could not be repaired")
	}
	switch {
	case fixed.IsEmpty():
	case fixed.TypeID() == geos.TypeIDPolygon, fixed.TypeID() == geos.TypeIDMultiPolygon:
	default:
		return nil, false, eris.Errorf("areal: repaired geometry is %s, not polygonal", fixed.Type())
	}
	return fixed, true, nil
}

// overlapArea returns the area of a ∩ b. When a contains b the intersection
// is b itself and bArea is returned unchanged.
func overlapArea(a, b *geos.Geom, bArea float64) (area float64, contained bool, err error) {
	defer recoverGEOS(&err)

	if a.Contains(b) {
		return bArea, true, nil
	}
	if !a.Intersects(b) {
		return 0, false, nil
	}
	inter := a.Intersection(b)
	if inter.IsEmpty() {
		return 0, false, nil
	}
	return inter.Area(), false, nil
}

// recoverGEOS turns a GEOS panic into an error.
func recoverGEOS(err *error) {
	if r := recover(); r != nil {
		*err = eris.Errorf("areal: geos: %v", r)
	}
}

func area(g *geos.Geom) (a float64, err error) {
	defer recoverGEOS(&err)
	return g.Area(), nil
}
