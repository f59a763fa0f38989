// Package geo provides the coordinate type and great-circle distance math used
// by the nearest-agent selection logic.
package geo

import "math"

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371

// Point is a geographic coordinate in floating-point degrees.
type Point struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

// DistanceKm computes the great-circle distance between two points in
// kilometers using the haversine formula. Identical points yield exactly 0,
// and antipodal points are well-defined (no division by zero).
func DistanceKm(a, b Point) float64 {
	if a == b {
		return 0
	}

	dLat := radians(b.Lat - a.Lat)
	dLong := radians(b.Long - a.Long)

	sinLat := math.Sin(dLat / 2)
	sinLong := math.Sin(dLong / 2)

	h := sinLat*sinLat + math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*sinLong*sinLong

	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
