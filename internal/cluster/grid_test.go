package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickupsports/mapcluster/internal/geo"
)

func TestCellSize(t *testing.T) {
	assert.InDelta(t, 0.005, CellSize(277.5), 1e-12)
	assert.InDelta(t, 2.0/111000.0, CellSize(1), 1e-15)
}

func TestGrid_Keys(t *testing.T) {
	coords := []geo.Coordinates{
		{Latitude: 0.25, Longitude: 0.75},
		{Latitude: -0.25, Longitude: -0.75},
		{Latitude: 1.5, Longitude: 2.5},
	}
	g := NewGrid(coords, 1)

	assert.Equal(t, "0,0", g.Key(coords[0]))
	assert.Equal(t, "-1,-1", g.Key(coords[1]))
	assert.Equal(t, "1,2", g.Key(coords[2]))
	assert.Equal(t, 3, g.Buckets())
}

func TestGrid_BucketKeepsInsertionOrder(t *testing.T) {
	coords := []geo.Coordinates{
		{Latitude: 0.1, Longitude: 0.1},
		{Latitude: 5, Longitude: 5},
		{Latitude: 0.2, Longitude: 0.3},
		{Latitude: 0.9, Longitude: 0.9},
	}
	g := NewGrid(coords, 1)

	assert.Equal(t, []int{0, 2, 3}, g.Bucket(geo.Coordinates{Latitude: 0.5, Longitude: 0.5}))
	assert.Nil(t, g.Bucket(geo.Coordinates{Latitude: -3, Longitude: -3}))
}

func TestGrid_NeighborsCoverThreeByThreeWindow(t *testing.T) {
	coords := []geo.Coordinates{
		{Latitude: 0.5, Longitude: 0.5},   // 0: own cell
		{Latitude: 1.5, Longitude: 1.5},   // 1: diagonal neighbour
		{Latitude: -0.5, Longitude: 0.5},  // 2: south neighbour
		{Latitude: 2.5, Longitude: 0.5},   // 3: two cells north
		{Latitude: 0.5, Longitude: -1.5},  // 4: two cells west
		{Latitude: 0.7, Longitude: 0.2},   // 5: own cell
		{Latitude: -0.5, Longitude: -0.5}, // 6: diagonal neighbour
	}
	g := NewGrid(coords, 1)

	var got []int
	g.Neighbors(0, func(j int) { got = append(got, j) })

	// Row-major from the south-west cell; own cell in insertion order.
	assert.Equal(t, []int{6, 2, 0, 5, 1}, got)
}

func TestGrid_NeighboursWithinThresholdShareWindow(t *testing.T) {
	const threshold = 500.0
	base := geo.Coordinates{Latitude: 45.001, Longitude: 9.001}
	coords := []geo.Coordinates{base}
	for _, off := range [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {0.7, 0.7}, {-0.7, -0.7}} {
		coords = append(coords, geo.Coordinates{
			Latitude:  base.Latitude + off[0]*threshold/geo.MetersPerDegree,
			Longitude: base.Longitude + off[1]*threshold/geo.MetersPerDegree,
		})
	}
	g := NewGrid(coords, CellSize(threshold))

	found := make(map[int]bool)
	g.Neighbors(0, func(j int) { found[j] = true })
	for i := range coords {
		assert.True(t, found[i], "point %d missing from window", i)
	}
}

// Cells are square in degrees, so far from the equator an east/west pair
// inside the threshold can fall outside the 3x3 window and stay apart.
// Scaling columns by cos(latitude) would change this expectation.
func TestGrid_HighLatitudeEastWestPairOutsideWindow(t *testing.T) {
	const threshold = 1000.0
	a := geo.Coordinates{Latitude: 80, Longitude: 10.005}
	b := geo.Coordinates{Latitude: 80, Longitude: 10.05}
	require.Less(t, geo.Haversine(a, b), threshold)

	g := NewGrid([]geo.Coordinates{a, b}, CellSize(threshold))
	var got []int
	g.Neighbors(0, func(j int) { got = append(got, j) })
	assert.Equal(t, []int{0}, got)

	res := Build([]testPoint{
		{id: "a", lat: a.Latitude, lng: a.Longitude},
		{id: "b", lat: b.Latitude, lng: b.Longitude},
	}, threshold, SeedLinkage)
	assert.Empty(t, res.Clusters)
	assert.Len(t, res.Individuals, 2)
}

func TestGrid_EquatorEastWestPairInsideWindow(t *testing.T) {
	const threshold = 1000.0
	a := geo.Coordinates{Latitude: 0.005, Longitude: 10.005}
	b := geo.Coordinates{Latitude: 0.005, Longitude: 10.0128}
	require.Less(t, geo.Haversine(a, b), threshold)

	g := NewGrid([]geo.Coordinates{a, b}, CellSize(threshold))
	var got []int
	g.Neighbors(0, func(j int) { got = append(got, j) })
	assert.ElementsMatch(t, []int{0, 1}, got)
}
