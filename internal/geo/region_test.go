package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInRegion(t *testing.T) {
	region := Region{Latitude: 10, Longitude: 20, LatitudeDelta: 2, LongitudeDelta: 4}

	tests := []struct {
		name     string
		point    Coordinates
		buffer   float64
		expected bool
	}{
		{"center", Coordinates{Latitude: 10, Longitude: 20}, 0, true},
		{"on north edge", Coordinates{Latitude: 11, Longitude: 20}, 0, true},
		{"just past north edge", Coordinates{Latitude: 11.01, Longitude: 20}, 0, false},
		{"inside 10% buffer", Coordinates{Latitude: 11.15, Longitude: 20}, 0.1, true},
		{"outside 10% buffer", Coordinates{Latitude: 11.25, Longitude: 20}, 0.1, false},
		{"inside 20% buffer", Coordinates{Latitude: 11.35, Longitude: 20}, 0.2, true},
		{"east edge with buffer", Coordinates{Latitude: 10, Longitude: 22.7}, 0.2, true},
		{"west past buffer", Coordinates{Latitude: 10, Longitude: 17.1}, 0.2, false},
		{"south inside", Coordinates{Latitude: 9.2, Longitude: 19}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InRegion(tt.point, region, tt.buffer))
		})
	}
}

func TestRegionBounds_MatchesInRegion(t *testing.T) {
	region := Region{Latitude: 51.5, Longitude: -0.12, LatitudeDelta: 0.2, LongitudeDelta: 0.3}
	bbox := region.Bounds(0.1)

	assert.InDelta(t, 51.38, bbox.MinLat, 1e-9)
	assert.InDelta(t, 51.62, bbox.MaxLat, 1e-9)
	assert.InDelta(t, -0.30, bbox.MinLng, 1e-9)
	assert.InDelta(t, 0.06, bbox.MaxLng, 1e-9)

	for _, c := range []Coordinates{
		{Latitude: 51.5, Longitude: -0.12},
		{Latitude: 51.61, Longitude: 0.05},
		{Latitude: 51.7, Longitude: -0.12},
		{Latitude: 51.39, Longitude: -0.31},
	} {
		assert.Equal(t, InRegion(c, region, 0.1), bbox.Contains(c), "point %+v", c)
	}
}

func TestRegionValidate(t *testing.T) {
	require.NoError(t, Region{Latitude: 30, Longitude: -97, LatitudeDelta: 0.05, LongitudeDelta: 0.05}.Validate())

	bad := []Region{
		{Latitude: math.NaN(), Longitude: 0, LatitudeDelta: 1, LongitudeDelta: 1},
		{Latitude: 0, Longitude: 0, LatitudeDelta: 0, LongitudeDelta: 1},
		{Latitude: 0, Longitude: 0, LatitudeDelta: 1, LongitudeDelta: -1},
		{Latitude: 91, Longitude: 0, LatitudeDelta: 1, LongitudeDelta: 1},
		{Latitude: 0, Longitude: 181, LatitudeDelta: 1, LongitudeDelta: 1},
		{Latitude: 0, Longitude: 0, LatitudeDelta: math.Inf(1), LongitudeDelta: 1},
	}
	for _, r := range bad {
		assert.Error(t, r.Validate(), "region %+v", r)
	}
}
