package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Coordinates
		expected float64
		delta    float64
	}{
		{
			name:     "same point",
			a:        Coordinates{Latitude: 30.2672, Longitude: -97.7431},
			b:        Coordinates{Latitude: 30.2672, Longitude: -97.7431},
			expected: 0,
			delta:    1e-9,
		},
		{
			name:     "one degree of latitude",
			a:        Coordinates{Latitude: 0, Longitude: 0},
			b:        Coordinates{Latitude: 1, Longitude: 0},
			expected: 111195,
			delta:    1,
		},
		{
			name:     "austin to dallas",
			a:        Coordinates{Latitude: 30.2672, Longitude: -97.7431},
			b:        Coordinates{Latitude: 32.7767, Longitude: -96.7970},
			expected: 293000,
			delta:    2000,
		},
		{
			name:     "across the antimeridian",
			a:        Coordinates{Latitude: 0, Longitude: 179.5},
			b:        Coordinates{Latitude: 0, Longitude: -179.5},
			expected: 111195,
			delta:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.a, tt.b)
			assert.InDelta(t, tt.expected, got, tt.delta)
			assert.InDelta(t, got, Haversine(tt.b, tt.a), 1e-6, "distance must be symmetric")
		})
	}
}

func TestEquirectangular_CloseToHaversineAtShortRange(t *testing.T) {
	origin := Coordinates{Latitude: 40.7128, Longitude: -74.0060}
	for _, meters := range []float64{10, 250, 1000, 5000, 20000} {
		deg := meters / MetersPerDegree
		target := Coordinates{Latitude: origin.Latitude + deg/2, Longitude: origin.Longitude + deg/2}

		exact := Haversine(origin, target)
		approx := Equirectangular(origin, target)
		assert.InDelta(t, exact, approx, exact*0.001+1e-6, "meters=%v", meters)
	}
}

func TestEquirectangular_NonNegative(t *testing.T) {
	a := Coordinates{Latitude: -33.8688, Longitude: 151.2093}
	b := Coordinates{Latitude: -33.8700, Longitude: 151.2000}
	assert.GreaterOrEqual(t, Equirectangular(a, b), 0.0)
	assert.GreaterOrEqual(t, Equirectangular(b, a), 0.0)
	assert.Equal(t, 0.0, Equirectangular(a, a))
}

func TestIsFinite(t *testing.T) {
	assert.True(t, IsFinite(Coordinates{Latitude: 1, Longitude: 2}))
	assert.False(t, IsFinite(Coordinates{Latitude: math.NaN(), Longitude: 2}))
	assert.False(t, IsFinite(Coordinates{Latitude: 1, Longitude: math.Inf(1)}))
	assert.False(t, IsFinite(Coordinates{Latitude: math.Inf(-1), Longitude: math.NaN()}))
}
