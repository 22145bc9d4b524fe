package cluster

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/pickupsports/mapcluster/internal/geo"
)

type testPoint struct {
	id       string
	lat, lng float64
}

func (p testPoint) PointID() string { return p.id }

func (p testPoint) Coordinates() geo.Coordinates {
	return geo.Coordinates{Latitude: p.lat, Longitude: p.lng}
}

// metersToLatDegrees converts a north-south offset to degrees using the
// same Earth radius as the distance estimators.
func metersToLatDegrees(m float64) float64 {
	return m / (geo.EarthRadiusMeters * math.Pi / 180)
}

// randomPoints scatters n points uniformly within spread degrees of center.
func randomPoints(seed uint64, n int, center geo.Coordinates, spread float64) []testPoint {
	rng := rand.New(rand.NewPCG(seed, seed*31+7))
	pts := make([]testPoint, n)
	for i := range pts {
		pts[i] = testPoint{
			id:  fmt.Sprintf("p%d", i),
			lat: center.Latitude + (rng.Float64()*2-1)*spread,
			lng: center.Longitude + (rng.Float64()*2-1)*spread,
		}
	}
	return pts
}

// memberIDs flattens a result into the set of point ids it contains,
// counting repeats.
func memberIDs(res Result[testPoint]) map[string]int {
	seen := make(map[string]int)
	for _, c := range res.Clusters {
		for _, m := range c.Members {
			seen[m.id]++
		}
	}
	for _, p := range res.Individuals {
		seen[p.id]++
	}
	return seen
}
