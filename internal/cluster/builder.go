package cluster

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// Linkage selects how a group grows.
type Linkage string

const (
	// SeedLinkage admits a candidate only when it is within the threshold
	// of the group's seed. Results depend on input order.
	SeedLinkage Linkage = "seed"
	// TransitiveLinkage merges every chain of points within the threshold
	// of one another into a single group (connected components).
	TransitiveLinkage Linkage = "transitive"
)

// ParseLinkage parses a linkage name. The empty string selects SeedLinkage.
func ParseLinkage(s string) (Linkage, error) {
	switch Linkage(strings.ToLower(strings.TrimSpace(s))) {
	case "", SeedLinkage:
		return SeedLinkage, nil
	case TransitiveLinkage:
		return TransitiveLinkage, nil
	default:
		return "", eris.Errorf("cluster: unknown linkage %q", s)
	}
}

// Build partitions points into clusters and individuals. Two points join
// when their approximate distance is at most thresholdMeters. A
// non-positive threshold disables clustering.
func Build[T Locatable](points []T, thresholdMeters float64, linkage Linkage) Result[T] {
	if thresholdMeters <= 0 || len(points) < 2 {
		return Result[T]{Individuals: append([]T(nil), points...)}
	}

	coords := make([]geo.Coordinates, len(points))
	for i, p := range points {
		coords[i] = p.Coordinates()
	}
	grid := NewGrid(coords, CellSize(thresholdMeters))

	var groups [][]int
	if linkage == TransitiveLinkage {
		groups = transitiveGroups(coords, grid, thresholdMeters)
	} else {
		groups = seedGroups(coords, grid, thresholdMeters)
	}
	return assemble(points, coords, groups)
}

// seedGroups walks points in input order. Each unprocessed point seeds a
// group and claims every unprocessed point of its 3x3 window that lies
// within the threshold of the seed. Later members do not extend the reach.
func seedGroups(coords []geo.Coordinates, grid *Grid, threshold float64) [][]int {
	processed := make([]bool, len(coords))
	var groups [][]int

	for i := range coords {
		if processed[i] {
			continue
		}
		processed[i] = true
		group := []int{i}

		grid.Neighbors(i, func(j int) {
			if processed[j] {
				return
			}
			if geo.Equirectangular(coords[i], coords[j]) <= threshold {
				group = append(group, j)
				processed[j] = true
			}
		})
		groups = append(groups, group)
	}
	return groups
}

// transitiveGroups unions every within-threshold pair found in the grid
// neighbourhood and returns the connected components ordered by their
// first member, members in input order.
func transitiveGroups(coords []geo.Coordinates, grid *Grid, threshold float64) [][]int {
	ds := newDisjointSet(len(coords))
	for i := range coords {
		grid.Neighbors(i, func(j int) {
			if j <= i {
				return
			}
			if geo.Equirectangular(coords[i], coords[j]) <= threshold {
				ds.union(i, j)
			}
		})
	}

	slot := make(map[int]int)
	var groups [][]int
	for i := range coords {
		root := ds.find(i)
		idx, ok := slot[root]
		if !ok {
			idx = len(groups)
			slot[root] = idx
			groups = append(groups, nil)
		}
		groups[idx] = append(groups[idx], i)
	}
	return groups
}

// assemble turns index groups into the public result. Singletons become
// individuals; larger groups get an arithmetic-mean centroid.
func assemble[T Locatable](points []T, coords []geo.Coordinates, groups [][]int) Result[T] {
	var res Result[T]
	for _, g := range groups {
		if len(g) == 1 {
			res.Individuals = append(res.Individuals, points[g[0]])
			continue
		}

		members := make([]T, len(g))
		var sumLat, sumLng float64
		for k, idx := range g {
			members[k] = points[idx]
			sumLat += coords[idx].Latitude
			sumLng += coords[idx].Longitude
		}
		n := float64(len(g))
		res.Clusters = append(res.Clusters, Cluster[T]{
			ID:        clusterID(points[g[0]]),
			Members:   members,
			Latitude:  sumLat / n,
			Longitude: sumLng / n,
			Count:     len(g),
		})
	}
	return res
}
