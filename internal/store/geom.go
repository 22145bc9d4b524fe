package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// SRID of every stored geometry.
const SRID = 4326

// envelopeEWKB encodes bbox as an EWKB polygon in SRID 4326.
func envelopeEWKB(b geo.BBox) ([]byte, error) {
	ring := []float64{
		b.MinLng, b.MinLat,
		b.MaxLng, b.MinLat,
		b.MaxLng, b.MaxLat,
		b.MinLng, b.MaxLat,
		b.MinLng, b.MinLat,
	}
	poly := geom.NewPolygonFlat(geom.XY, ring, []int{len(ring)}).SetSRID(SRID)
	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode envelope")
	}
	return data, nil
}

// pointEWKB encodes c as an EWKB point in SRID 4326.
func pointEWKB(c geo.Coordinates) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{c.Longitude, c.Latitude}).SetSRID(SRID)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

// decodePoint reads an EWKB point as returned by ST_AsEWKB.
func decodePoint(data []byte) (geo.Coordinates, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return geo.Coordinates{}, eris.Wrap(err, "store: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return geo.Coordinates{}, eris.Errorf("store: expected point geometry, got %T", g)
	}
	return geo.Coordinates{Latitude: pt.Y(), Longitude: pt.X()}, nil
}
