package geometry

import "math"

const (
	metersPerDegree = 111111.0
	knotToMPS       = 0.514444444

	// earthRadius is the IUGG mean radius in metres.
	earthRadius = 6371008.8
)

// KnotsToMetersPerSecond converts a speed over ground in knots to m/s.
func KnotsToMetersPerSecond(knots float64) float64 {
	return knotToMPS * knots
}

// MetersToLat converts a north/south offset in metres to degrees of latitude.
func MetersToLat(meters float64) float64 {
	return meters / metersPerDegree
}

// MetersToLon converts an east/west offset in metres to degrees of longitude at the given latitude.
func MetersToLon(meters, latitude float64) float64 {
	return meters / (math.Cos(radians(latitude)) * metersPerDegree)
}

// Distance returns the great-circle distance in metres between two points (haversine).
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := phi2 - phi1
	dLambda := radians(lon2 - lon1)

	a := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	return 2 * earthRadius * math.Asin(math.Sqrt(math.Min(1, a)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
