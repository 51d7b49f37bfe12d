// Package geometry holds the pure math used to place a vessel and to predict when its
// course crosses the camera's line of sight. Nothing here keeps state or takes locks.
package geometry

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultMinSpeed is the speed over ground (knots) at or below which a vessel is
// treated as stationary and never predicted to cross.
const DefaultMinSpeed = 0.2

const (
	// coincidentTol is the |sin(d12)| below which observer and vessel are the same point.
	coincidentTol = 1e-12
	collinearTol  = 1e-9
)

// Observer is the fixed camera position and its viewing bearing.
type Observer struct {
	Lat     float64
	Lon     float64
	Bearing float64 // degrees clockwise from north

	// MinSpeed overrides DefaultMinSpeed when > 0.
	MinSpeed float64
}

// Track is the dynamic state of one vessel as needed by PredictCrossing.
// Lat/Lon should already be the vessel's center (see CenterOfVessel).
type Track struct {
	Lat        float64
	Lon        float64
	Speed      float64 // knots
	Course     float64 // degrees clockwise from north
	LastUpdate time.Time
}

// Crossing is a predicted intersection of a vessel track with the observer ray.
type Crossing struct {
	Time     time.Time
	Depth    float64 // metres from the observer to the intersection
	Distance float64 // metres from the vessel to the intersection
	Lat      float64
	Lon      float64
}

// CenterOfVessel returns the physical center of a vessel from its reported reference point,
// hull offsets (metres) and heading (degrees clockwise from north).
//
// A flat-earth conversion is used for the offsets: they are tens of metres.
func CenterOfVessel(lat, lon, toBow, toStern, toPort, toStarboard, heading float64) (float64, float64) {
	// offsets in the vessel frame: forward and starboard positive
	lOffset := ((toBow + toStern) / 2.0) - toStern
	wOffset := ((toStarboard + toPort) / 2.0) - toPort

	theta := radians(math.Mod(math.Mod(-heading, 360)+360, 360))
	north := wOffset*math.Sin(theta) + lOffset*math.Cos(theta)
	east := wOffset*math.Cos(theta) - lOffset*math.Sin(theta)

	return lat + MetersToLat(north), lon + MetersToLon(east, lat)
}

// PredictCrossing computes when the vessel's course line crosses the observer's bearing
// ray and how far from the observer that happens. The second result is false when there
// is no usable prediction: stationary vessel, coincident points, parallel or degenerate
// geometry, or any inverse trig argument out of domain. It never panics, so callers can
// poll it on every report.
//
// The intersection is the classic two-radials construction
// (http://www.movable-type.co.uk/scripts/latlong.html).
func PredictCrossing(obs Observer, v Track) (Crossing, bool) {
	minSpeed := obs.MinSpeed
	if minSpeed <= 0 {
		minSpeed = DefaultMinSpeed
	}
	if !(v.Speed > minSpeed) {
		return Crossing{}, false
	}

	phi1, lambda1 := radians(obs.Lat), radians(obs.Lon)
	phi2, lambda2 := radians(v.Lat), radians(v.Lon)
	theta13 := radians(obs.Bearing)
	theta23 := radians(v.Course)

	d12 := 2.0 * math.Asin(math.Sqrt(
		math.Pow(math.Sin((phi1-phi2)/2.0), 2)+
			math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin((lambda1-lambda2)/2.0), 2),
	))
	if math.IsNaN(d12) || scalar.EqualWithinAbs(math.Sin(d12), 0, coincidentTol) {
		return Crossing{}, false
	}

	ta, ok := acos((math.Sin(phi2) - math.Sin(phi1)*math.Cos(d12)) / (math.Sin(d12) * math.Cos(phi1)))
	if !ok {
		return Crossing{}, false
	}
	tb, ok := acos((math.Sin(phi1) - math.Sin(phi2)*math.Cos(d12)) / (math.Sin(d12) * math.Cos(phi2)))
	if !ok {
		return Crossing{}, false
	}

	// initial bearings observer->vessel and vessel->observer
	var t12, t21 float64
	if math.Sin(lambda2-lambda1) > 0 {
		t12 = ta
		t21 = 2*math.Pi - tb
	} else {
		t12 = 2*math.Pi - ta
		t21 = tb
	}

	a1 := theta13 - t12
	a2 := t21 - theta23

	// angular distance observer -> intersection
	var d13 float64
	if scalar.EqualWithinAbs(math.Sin(a1), 0, collinearTol) && scalar.EqualWithinAbs(math.Sin(a2), 0, collinearTol) {
		// ray and track share a great circle; the vessel passes the observer itself
		d13 = 0
	} else {
		a3, ok := acos(-math.Cos(a1)*math.Cos(a2) + math.Sin(a1)*math.Sin(a2)*math.Cos(d12))
		if !ok {
			return Crossing{}, false
		}
		d13 = math.Atan2(
			math.Sin(d12)*math.Sin(a1)*math.Sin(a2),
			math.Cos(a2)+math.Cos(a1)*math.Cos(a3),
		)
	}

	lat3, ok := asin(math.Sin(phi1)*math.Cos(d13) + math.Cos(phi1)*math.Sin(d13)*math.Cos(theta13))
	if !ok {
		return Crossing{}, false
	}
	lon3 := lambda1 + math.Atan2(
		math.Sin(theta13)*math.Sin(d13)*math.Cos(phi1),
		math.Cos(d13)-math.Sin(phi1)*math.Sin(lat3),
	)

	intLat, intLon := degrees(lat3), degrees(lon3)
	if !validLatLon(intLat, intLon) {
		return Crossing{}, false
	}

	depth := Distance(obs.Lat, obs.Lon, intLat, intLon)
	dist := Distance(v.Lat, v.Lon, intLat, intLon)
	secs := dist / KnotsToMetersPerSecond(v.Speed)
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return Crossing{}, false
	}

	return Crossing{
		Time:     v.LastUpdate.Add(time.Duration(secs * float64(time.Second))),
		Depth:    depth,
		Distance: dist,
		Lat:      intLat,
		Lon:      intLon,
	}, true
}

// acos and asin report false instead of returning NaN for out-of-domain input.
func acos(x float64) (float64, bool) {
	if math.IsNaN(x) || x < -1 || x > 1 {
		return 0, false
	}
	return math.Acos(x), true
}

func asin(x float64) (float64, bool) {
	if math.IsNaN(x) || x < -1 || x > 1 {
		return 0, false
	}
	return math.Asin(x), true
}

func validLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
