package mapview

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/pickupsports/mapcluster/internal/cluster"
)

// Output formats for the clusters endpoint.
const (
	FormatJSON    = "json"
	FormatGeoJSON = "geojson"
)

// ClusterView is the wire form of a cluster. Members are referenced by id.
type ClusterView struct {
	ID        string   `json:"id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Count     int      `json:"count"`
	Members   []string `json:"members"`
}

// ClustersResponse is the JSON body of the clusters endpoint.
type ClustersResponse[T cluster.Locatable] struct {
	Clusters    []ClusterView `json:"clusters"`
	Individuals []T           `json:"individuals"`
	Truncated   bool          `json:"truncated"`
	Total       int           `json:"total"`
}

func newClustersResponse[T cluster.Locatable](res cluster.Result[T]) ClustersResponse[T] {
	out := ClustersResponse[T]{
		Clusters:    make([]ClusterView, 0, len(res.Clusters)),
		Individuals: res.Individuals,
		Truncated:   res.Truncated > 0,
		Total:       res.Total(),
	}
	if out.Individuals == nil {
		out.Individuals = []T{}
	}
	for _, c := range res.Clusters {
		out.Clusters = append(out.Clusters, ClusterView{
			ID:        c.ID,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Count:     c.Count,
			Members:   memberIDs(c.Members),
		})
	}
	return out
}

func memberIDs[T cluster.Locatable](members []T) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.PointID()
	}
	return ids
}

// EncodeResult renders a clustering result as FormatJSON or FormatGeoJSON.
func EncodeResult[T cluster.Locatable](res cluster.Result[T], format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.Marshal(newClustersResponse(res))
		return b, eris.Wrap(err, "mapview: encode json")
	case FormatGeoJSON:
		b, err := json.Marshal(featureCollection(res))
		return b, eris.Wrap(err, "mapview: encode geojson")
	default:
		return nil, eris.Errorf("mapview: unknown format %q", format)
	}
}

// featureCollection renders clusters and individuals as point features.
// Cluster features carry cluster=true and point_count; individual features
// carry the full record.
func featureCollection[T cluster.Locatable](res cluster.Result[T]) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(res.Clusters)+len(res.Individuals)),
	}
	for _, c := range res.Clusters {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       c.ID,
			Geometry: point(c.Longitude, c.Latitude),
			Properties: map[string]any{
				"cluster":     true,
				"point_count": c.Count,
				"members":     memberIDs(c.Members),
			},
		})
	}
	for _, p := range res.Individuals {
		c := p.Coordinates()
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       p.PointID(),
			Geometry: point(c.Longitude, c.Latitude),
			Properties: map[string]any{
				"cluster": false,
				"record":  p,
			},
		})
	}
	return fc
}

func point(lng, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
}
