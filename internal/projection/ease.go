package projection

import (
	"math"

	"github.com/wroge/wgs84"
)

// easeStdParallel is the standard parallel of EASE-Grid 2.0 in degrees.
const easeStdParallel = 30.0

// easeGrid2 is the Lambert cylindrical equal-area projection used by
// EPSG:6933. The EPSG repository in wgs84 does not carry it.
type easeGrid2 struct{}

var _ wgs84.Projection = easeGrid2{}

func (easeGrid2) k0(e2 float64) float64 {
	sin1 := math.Sin(radians(easeStdParallel))
	return math.Cos(radians(easeStdParallel)) / math.Sqrt(1-e2*sin1*sin1)
}

func (p easeGrid2) FromLonLat(lon, lat float64, s wgs84.Spheroid) (east, north float64) {
	a, e := s.A(), eccentricity(s)
	k0 := p.k0(e * e)
	return a * k0 * radians(lon), a * authalic(e, math.Sin(radians(lat))) / (2 * k0)
}

func (p easeGrid2) ToLonLat(east, north float64, s wgs84.Spheroid) (lon, lat float64) {
	a, e := s.A(), eccentricity(s)
	e2 := e * e
	k0 := p.k0(e2)
	beta := math.Asin(clampUnit(2 * north * k0 / (a * authalic(e, 1))))

	// Authalic latitude series, EPSG guidance note 7-2.
	e4, e6 := e2*e2, e2*e2*e2
	phi := beta +
		(e2/3+31*e4/180+517*e6/5040)*math.Sin(2*beta) +
		(23*e4/360+251*e6/3780)*math.Sin(4*beta) +
		(761*e6/45360)*math.Sin(6*beta)
	return degrees(east / (a * k0)), degrees(phi)
}

func eccentricity(s wgs84.Spheroid) float64 {
	f := 1 / s.Fi()
	return math.Sqrt(2*f - f*f)
}

// authalic returns q(phi) for sinPhi on an ellipsoid of eccentricity e.
func authalic(e, sinPhi float64) float64 {
	e2 := e * e
	es := e * sinPhi
	return (1 - e2) * (sinPhi/(1-es*es) - math.Log((1-es)/(1+es))/(2*e))
}

func clampUnit(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
