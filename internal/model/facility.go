// Package model defines the records placed on the map.
package model

import (
	"time"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// Facility is a venue where games can be played (court, pitch, gym).
type Facility struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	State     string    `json:"state,omitempty"`
	ZipCode   string    `json:"zip_code,omitempty"`
	Sports    []string  `json:"sports,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Source    string    `json:"source,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointID implements cluster.Locatable.
func (f Facility) PointID() string { return f.ID }

// Coordinates implements cluster.Locatable.
func (f Facility) Coordinates() geo.Coordinates {
	return geo.Coordinates{Latitude: f.Latitude, Longitude: f.Longitude}
}
