// Package svy21 converts SVY21 (EPSG:3414) plane coordinates to WGS84.
//
// SVY21 is Singapore's national survey projection: a transverse Mercator
// grid on the WGS84 ellipsoid with a local origin and false northing/easting.
// The government carpark dataset publishes facility positions in this grid,
// while everything downstream (maps, distance queries) wants degrees, so the
// inverse projection runs once at ingest time. The closed-form Redfearn
// series is used instead of iterative inversion: deterministic and cheap.
package svy21

import "math"

// Projection parameters for the SVY21 datum.
const (
	semiMajorAxis = 6378137.0
	flattening    = 1.0 / 298.257223563
	originLatDeg  = 1.366666
	originLonDeg  = 103.833333
	falseNorthing = 38744.572
	falseEasting  = 28001.642
	scaleFactor   = 1.0
)

// Terms derived from the ellipsoid, computed once.
var (
	semiMinorAxis = semiMajorAxis * (1 - flattening)

	e2 = (2 - flattening) * flattening
	e4 = e2 * e2
	e6 = e4 * e2

	// Meridian arc series coefficients.
	a0 = 1 - e2/4 - 3*e4/64 - 5*e6/256
	a2 = (3.0 / 8.0) * (e2 + e4/4 + 15*e6/128)
	a4 = (15.0 / 256.0) * (e4 + 3*e6/4)
	a6 = 35 * e6 / 3072

	// Third flattening and its powers.
	n  = (semiMajorAxis - semiMinorAxis) / (semiMajorAxis + semiMinorAxis)
	n2 = n * n
	n3 = n2 * n
	n4 = n2 * n2

	// Rectifying radius.
	g = semiMajorAxis * (1 - n) * (1 - n2) * (1 + 9*n2/4 + 225*n4/64) * (math.Pi / 180)
)

// meridianArc returns the meridian arc length in meters from the equator to
// the given latitude in degrees.
func meridianArc(latDeg float64) float64 {
	lat := latDeg * math.Pi / 180
	return semiMajorAxis * (a0*lat - a2*math.Sin(2*lat) + a4*math.Sin(4*lat) - a6*math.Sin(6*lat))
}

// ToLatLon converts an SVY21 northing/easting pair in meters to WGS84
// latitude/longitude in degrees.
//
// The function is pure and total over finite inputs. Coordinates outside the
// survey area produce a well-defined but non-physical result rather than an
// error, so malformed upstream data degrades to a misplaced map pin instead
// of a failed ingest; callers pre-filter non-numeric strings.
func ToLatLon(northing, easting float64) (lat, lon float64) {
	// Arc length implied by the northing, reduced to the footpoint latitude
	// via the inverse rectifying series.
	nPrime := northing - falseNorthing
	mPrime := meridianArc(originLatDeg) + nPrime/scaleFactor
	sigma := mPrime * math.Pi / (180 * g)

	latPrime := sigma +
		(3*n/2-27*n3/32)*math.Sin(2*sigma) +
		(21*n2/16-55*n4/32)*math.Sin(4*sigma) +
		(151*n3/96)*math.Sin(6*sigma) +
		(1097*n4/512)*math.Sin(8*sigma)

	sinLat := math.Sin(latPrime)
	sin2Lat := sinLat * sinLat

	// Radii of curvature at the footpoint: rho in the meridian, nu normal
	// to it, psi their ratio.
	rho := semiMajorAxis * (1 - e2) / math.Pow(1-e2*sin2Lat, 1.5)
	nu := semiMajorAxis / math.Sqrt(1-e2*sin2Lat)
	psi := nu / rho
	psi2 := psi * psi
	psi3 := psi2 * psi
	psi4 := psi2 * psi2

	t := math.Tan(latPrime)
	t2 := t * t
	t4 := t2 * t2
	t6 := t4 * t2

	ePrime := easting - falseEasting
	x := ePrime / (scaleFactor * nu)
	x2 := x * x
	x3 := x2 * x
	x5 := x3 * x2
	x7 := x5 * x2

	latFactor := t / (scaleFactor * rho)
	latTerm1 := latFactor * ePrime * x / 2
	latTerm2 := latFactor * ePrime * x3 / 24 * (-4*psi2 + 9*psi*(1-t2) + 12*t2)
	latTerm3 := latFactor * ePrime * x5 / 720 *
		(8*psi4*(11-24*t2) - 12*psi3*(21-71*t2) + 15*psi2*(15-98*t2+15*t4) + 180*psi*(5*t2-3*t4) + 360*t4)
	latTerm4 := latFactor * ePrime * x7 / 40320 * (1385 - 3633*t2 + 4095*t4 + 1575*t6)

	latRad := latPrime - latTerm1 + latTerm2 - latTerm3 + latTerm4

	secLat := 1 / math.Cos(latPrime)
	lonTerm1 := x * secLat
	lonTerm2 := x3 * secLat / 6 * (psi + 2*t2)
	lonTerm3 := x5 * secLat / 120 * (-4*psi3*(1-6*t2) + psi2*(9-68*t2) + 72*psi*t2 + 24*t4)
	lonTerm4 := x7 * secLat / 5040 * (61 + 662*t2 + 1320*t4 + 720*t6)

	lonRad := originLonDeg*math.Pi/180 + lonTerm1 - lonTerm2 + lonTerm3 - lonTerm4

	return latRad * 180 / math.Pi, lonRad * 180 / math.Pi
}
