// Package cluster groups nearby map markers into aggregate badges.
//
// Clustering is recomputed from scratch for every viewport: points are
// bucketed on a coarse grid sized from the current zoom, and each unvisited
// point seeds a group that absorbs unvisited neighbours from its 3x3 grid
// window. Groups of one are returned as individual markers.
package cluster

import "github.com/pickupsports/mapcluster/internal/geo"

// Locatable is the minimal shape a record needs to be clustered. The rest
// of the record is carried through untouched.
type Locatable interface {
	PointID() string
	Coordinates() geo.Coordinates
}

// Cluster is a group of two or more nearby points rendered as one marker.
type Cluster[T Locatable] struct {
	ID        string  `json:"id"`
	Members   []T     `json:"members"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int     `json:"count"`
}

// Center returns the cluster centroid.
func (c Cluster[T]) Center() geo.Coordinates {
	return geo.Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Result partitions the clustered input into aggregate clusters and
// individual points.
type Result[T Locatable] struct {
	Clusters    []Cluster[T] `json:"clusters"`
	Individuals []T          `json:"individuals"`

	// Truncated counts input points dropped by the MaxPoints ceiling.
	Truncated int `json:"truncated,omitempty"`
}

// Total returns the number of points placed in the result.
func (r Result[T]) Total() int {
	n := len(r.Individuals)
	for _, c := range r.Clusters {
		n += c.Count
	}
	return n
}

// clusterID derives a cluster identifier from its seed member. IDs are only
// stable while the seed stays the same.
func clusterID(seed Locatable) string {
	return "cluster-" + seed.PointID()
}
