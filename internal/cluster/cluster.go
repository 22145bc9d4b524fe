package cluster

import (
	"github.com/pickupsports/mapcluster/internal/geo"
)

const (
	// DefaultFactor is the share of the visible latitude span, in meters,
	// used as the clustering distance.
	DefaultFactor = 0.05
	// DefaultMinSpan is the latitude span below which every point is shown
	// on its own.
	DefaultMinSpan = 0.001
)

// Options tunes one clustering pass.
type Options struct {
	// MaxPoints caps the candidate count; extra points are silently
	// dropped, keeping input order. Zero means no cap.
	MaxPoints int `yaml:"max_points" mapstructure:"max_points" json:"max_points"`

	// FilterVisible drops points outside the region widened by
	// VisibilityBuffer before clustering.
	FilterVisible    bool    `yaml:"filter_visible" mapstructure:"filter_visible" json:"filter_visible"`
	VisibilityBuffer float64 `yaml:"visibility_buffer" mapstructure:"visibility_buffer" json:"visibility_buffer"`

	Linkage Linkage `yaml:"linkage" mapstructure:"linkage" json:"linkage"`

	// Factor defaults to DefaultFactor, MinSpan to DefaultMinSpan.
	Factor  float64 `yaml:"factor" mapstructure:"factor" json:"factor"`
	MinSpan float64 `yaml:"min_span" mapstructure:"min_span" json:"min_span"`
}

func (o Options) withDefaults() Options {
	if o.Factor <= 0 {
		o.Factor = DefaultFactor
	}
	if o.MinSpan <= 0 {
		o.MinSpan = DefaultMinSpan
	}
	if o.Linkage == "" {
		o.Linkage = SeedLinkage
	}
	return o
}

// Threshold returns the clustering distance in meters for a region: a
// fixed share of the visible latitude span.
func Threshold(region geo.Region, factor float64) float64 {
	return region.LatitudeDelta * geo.MetersPerDegree * factor
}

// ClusterPoints runs the full pipeline for one viewport: optional
// visibility pre-filter, the MaxPoints ceiling, the close-zoom bypass and
// finally Build. It holds no state between calls.
func ClusterPoints[T Locatable](points []T, region geo.Region, opts Options) Result[T] {
	opts = opts.withDefaults()

	candidates := points
	if opts.FilterVisible {
		candidates = make([]T, 0, len(points))
		for _, p := range points {
			if geo.InRegion(p.Coordinates(), region, opts.VisibilityBuffer) {
				candidates = append(candidates, p)
			}
		}
	}

	var truncated int
	if opts.MaxPoints > 0 && len(candidates) > opts.MaxPoints {
		truncated = len(candidates) - opts.MaxPoints
		candidates = candidates[:opts.MaxPoints]
	}

	var res Result[T]
	if region.LatitudeDelta < opts.MinSpan {
		res = Result[T]{Individuals: append([]T(nil), candidates...)}
	} else {
		res = Build(candidates, Threshold(region, opts.Factor), opts.Linkage)
	}
	res.Truncated = truncated
	return res
}
