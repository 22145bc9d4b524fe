package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func TestBuild_TwoClosePointsCluster(t *testing.T) {
	a := testPoint{id: "a", lat: 30.2672, lng: -97.7431}
	b := testPoint{id: "b", lat: a.lat + metersToLatDegrees(10), lng: a.lng}

	res := Build([]testPoint{a, b}, 277.5, SeedLinkage)

	require.Len(t, res.Clusters, 1)
	assert.Empty(t, res.Individuals)
	c := res.Clusters[0]
	assert.Equal(t, "cluster-a", c.ID)
	assert.Equal(t, 2, c.Count)
	assert.Equal(t, []testPoint{a, b}, c.Members)
	assert.InDelta(t, (a.lat+b.lat)/2, c.Latitude, 1e-9)
	assert.InDelta(t, a.lng, c.Longitude, 1e-9)
}

func TestBuild_ThresholdIsInclusive(t *testing.T) {
	a := testPoint{id: "a", lat: 0, lng: 0}
	b := testPoint{id: "b", lat: metersToLatDegrees(100), lng: 0}

	d := geo.Equirectangular(a.Coordinates(), b.Coordinates())
	res := Build([]testPoint{a, b}, d, SeedLinkage)
	assert.Len(t, res.Clusters, 1)
}

func TestBuild_NonPositiveThresholdLeavesEveryPointAlone(t *testing.T) {
	pts := []testPoint{{id: "a"}, {id: "b"}, {id: "c"}}
	res := Build(pts, 0, SeedLinkage)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, pts, res.Individuals)
}

func TestBuild_EmptyAndSingle(t *testing.T) {
	res := Build([]testPoint(nil), 100, SeedLinkage)
	assert.Empty(t, res.Clusters)
	assert.Empty(t, res.Individuals)

	one := []testPoint{{id: "solo", lat: 1, lng: 1}}
	res = Build(one, 100, SeedLinkage)
	assert.Empty(t, res.Clusters)
	assert.Equal(t, one, res.Individuals)
}

// chain returns three points on a meridian, 200 m apart: a-b-c. a and c are
// 400 m apart, beyond a 277 m threshold.
func chain() (a, b, c testPoint) {
	a = testPoint{id: "a", lat: 45, lng: 7}
	b = testPoint{id: "b", lat: 45 + metersToLatDegrees(200), lng: 7}
	c = testPoint{id: "c", lat: 45 + metersToLatDegrees(400), lng: 7}
	return a, b, c
}

func TestBuild_SeedLinkageIsNotTransitive(t *testing.T) {
	a, b, c := chain()

	res := Build([]testPoint{a, b, c}, 277.5, SeedLinkage)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []testPoint{a, b}, res.Clusters[0].Members)
	assert.Equal(t, []testPoint{c}, res.Individuals)
}

func TestBuild_SeedLinkageDependsOnOrder(t *testing.T) {
	a, b, c := chain()

	// With the middle point first it reaches both ends.
	res := Build([]testPoint{b, a, c}, 277.5, SeedLinkage)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, "cluster-b", res.Clusters[0].ID)
	assert.Equal(t, 3, res.Clusters[0].Count)
	assert.Empty(t, res.Individuals)
}

func TestBuild_TransitiveLinkageJoinsChains(t *testing.T) {
	a, b, c := chain()

	res := Build([]testPoint{a, b, c}, 277.5, TransitiveLinkage)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, []testPoint{a, b, c}, res.Clusters[0].Members)
	assert.Equal(t, "cluster-a", res.Clusters[0].ID)
	assert.Empty(t, res.Individuals)

	// Order no longer changes the grouping.
	res2 := Build([]testPoint{c, a, b}, 277.5, TransitiveLinkage)
	require.Len(t, res2.Clusters, 1)
	assert.Equal(t, 3, res2.Clusters[0].Count)
}

func TestBuild_SeparateGroups(t *testing.T) {
	pts := []testPoint{
		{id: "n1", lat: 40.0000, lng: -74.0},
		{id: "s1", lat: 39.9000, lng: -74.0},
		{id: "n2", lat: 40.0001, lng: -74.0},
		{id: "lone", lat: 39.95, lng: -74.0},
		{id: "s2", lat: 39.9001, lng: -74.0},
	}

	res := Build(pts, 100, SeedLinkage)

	require.Len(t, res.Clusters, 2)
	assert.Equal(t, "cluster-n1", res.Clusters[0].ID)
	assert.Equal(t, "cluster-s1", res.Clusters[1].ID)
	assert.Equal(t, []testPoint{pts[3]}, res.Individuals)
}

func TestBuild_PartitionProperty(t *testing.T) {
	center := geo.Coordinates{Latitude: 37.77, Longitude: -122.42}
	for _, linkage := range []Linkage{SeedLinkage, TransitiveLinkage} {
		for seed := uint64(1); seed <= 5; seed++ {
			pts := randomPoints(seed, 400, center, 0.05)

			res := Build(pts, 300, linkage)

			seen := memberIDs(res)
			assert.Len(t, seen, len(pts), "linkage=%s seed=%d", linkage, seed)
			for _, p := range pts {
				assert.Equal(t, 1, seen[p.id], "point %s placed %d times", p.id, seen[p.id])
			}
			assert.Equal(t, len(pts), res.Total())
		}
	}
}

func TestBuild_ClusterInvariants(t *testing.T) {
	pts := randomPoints(42, 500, geo.Coordinates{Latitude: -33.87, Longitude: 151.21}, 0.03)

	for _, linkage := range []Linkage{SeedLinkage, TransitiveLinkage} {
		res := Build(pts, 400, linkage)
		require.NotEmpty(t, res.Clusters)

		for _, c := range res.Clusters {
			assert.GreaterOrEqual(t, c.Count, 2)
			assert.Equal(t, len(c.Members), c.Count)

			var sumLat, sumLng float64
			for _, m := range c.Members {
				sumLat += m.lat
				sumLng += m.lng
			}
			assert.InDelta(t, sumLat/float64(c.Count), c.Latitude, 1e-9)
			assert.InDelta(t, sumLng/float64(c.Count), c.Longitude, 1e-9)
		}
	}
}

func TestBuild_SeedMembersWithinThresholdOfSeed(t *testing.T) {
	pts := randomPoints(7, 300, geo.Coordinates{Latitude: 51.5, Longitude: -0.12}, 0.02)
	const threshold = 250.0

	res := Build(pts, threshold, SeedLinkage)
	for _, c := range res.Clusters {
		seed := c.Members[0]
		assert.Equal(t, "cluster-"+seed.id, c.ID)
		for _, m := range c.Members[1:] {
			assert.LessOrEqual(t, geo.Equirectangular(seed.Coordinates(), m.Coordinates()), threshold)
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	pts := randomPoints(3, 250, geo.Coordinates{Latitude: 48.85, Longitude: 2.35}, 0.04)

	first := Build(pts, 350, SeedLinkage)
	second := Build(pts, 350, SeedLinkage)
	assert.Equal(t, first, second)
}

func TestParseLinkage(t *testing.T) {
	l, err := ParseLinkage("")
	require.NoError(t, err)
	assert.Equal(t, SeedLinkage, l)

	l, err = ParseLinkage(" Transitive ")
	require.NoError(t, err)
	assert.Equal(t, TransitiveLinkage, l)

	_, err = ParseLinkage("complete")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown linkage")
}

// ---------------------------------------------------------------------------
// disjointSet
// ---------------------------------------------------------------------------

func TestDisjointSet(t *testing.T) {
	ds := newDisjointSet(6)
	ds.union(0, 1)
	ds.union(2, 3)
	ds.union(1, 3)

	assert.Equal(t, ds.find(0), ds.find(2))
	assert.NotEqual(t, ds.find(0), ds.find(4))
	assert.NotEqual(t, ds.find(4), ds.find(5))

	ds.union(0, 3) // already joined
	assert.Equal(t, 4, ds.size[ds.find(0)])
}
