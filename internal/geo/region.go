package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// Region is the visible map window: a center plus the latitude and
// longitude spans in degrees.
type Region struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// BBox is a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether c lies inside the box, edges included.
func (b BBox) Contains(c Coordinates) bool {
	return c.Latitude >= b.MinLat && c.Latitude <= b.MaxLat &&
		c.Longitude >= b.MinLng && c.Longitude <= b.MaxLng
}

// Center returns the region center.
func (r Region) Center() Coordinates {
	return Coordinates{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Bounds returns the region grown by buffer (a fraction of each span added
// on every side) as a bounding box.
func (r Region) Bounds(buffer float64) BBox {
	halfLat := r.LatitudeDelta * (0.5 + buffer)
	halfLng := r.LongitudeDelta * (0.5 + buffer)
	return BBox{
		MinLng: r.Longitude - halfLng,
		MinLat: r.Latitude - halfLat,
		MaxLng: r.Longitude + halfLng,
		MaxLat: r.Latitude + halfLat,
	}
}

// Validate rejects regions a map view could not have produced.
func (r Region) Validate() error {
	for _, v := range []float64{r.Latitude, r.Longitude, r.LatitudeDelta, r.LongitudeDelta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.New("geo: region has non-finite component")
		}
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return eris.Errorf("geo: region latitude %f out of range", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return eris.Errorf("geo: region longitude %f out of range", r.Longitude)
	}
	if r.LatitudeDelta <= 0 || r.LongitudeDelta <= 0 {
		return eris.New("geo: region deltas must be positive")
	}
	return nil
}

// InRegion reports whether c lies within the region widened by buffer.
// A buffer of 0.2 keeps markers up to 20% of a span beyond each edge so
// they are already placed when the user pans.
func InRegion(c Coordinates, r Region, buffer float64) bool {
	halfLat := r.LatitudeDelta * (0.5 + buffer)
	halfLng := r.LongitudeDelta * (0.5 + buffer)
	return c.Latitude >= r.Latitude-halfLat && c.Latitude <= r.Latitude+halfLat &&
		c.Longitude >= r.Longitude-halfLng && c.Longitude <= r.Longitude+halfLng
}
