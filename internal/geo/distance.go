// Package geo provides the coordinate math used to place and group map markers.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by both distance estimators.
const EarthRadiusMeters = 6371000.0

// MetersPerDegree approximates the length of one degree of latitude.
const MetersPerDegree = 111000.0

// Coordinates is a WGS84 position in degrees.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsFinite reports whether both components are finite numbers.
// Callers filter with it before handing points to the clustering code,
// which never validates its input.
func IsFinite(c Coordinates) bool {
	return !math.IsNaN(c.Latitude) && !math.IsInf(c.Latitude, 0) &&
		!math.IsNaN(c.Longitude) && !math.IsInf(c.Longitude, 0)
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinates) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// Equirectangular returns an approximate distance between a and b in meters.
// The longitude difference is scaled by the cosine of the mean latitude and
// the result is the planar norm. Error stays negligible below ~50 km.
func Equirectangular(a, b Coordinates) float64 {
	meanLat := toRadians((a.Latitude + b.Latitude) / 2)
	x := toRadians(b.Longitude-a.Longitude) * math.Cos(meanLat)
	y := toRadians(b.Latitude - a.Latitude)
	return EarthRadiusMeters * math.Sqrt(x*x+y*y)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
