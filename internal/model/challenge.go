package model

import (
	"time"

	"github.com/pickupsports/mapcluster/internal/geo"
)

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeStatusOpen      ChallengeStatus = "open"
	ChallengeStatusFull      ChallengeStatus = "full"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// Location is where a challenge takes place.
type Location struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Challenge is a user-created pickup match.
type Challenge struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Sport           string          `json:"sport"`
	TeamID          string          `json:"team_id,omitempty"`
	CreatorID       string          `json:"creator_id,omitempty"`
	StartsAt        time.Time       `json:"starts_at"`
	Location        Location        `json:"location"`
	Participants    int             `json:"participants"`
	MaxParticipants int             `json:"max_participants,omitempty"`
	Status          ChallengeStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PointID implements cluster.Locatable.
func (c Challenge) PointID() string { return c.ID }

// Coordinates implements cluster.Locatable.
func (c Challenge) Coordinates() geo.Coordinates {
	return geo.Coordinates{Latitude: c.Location.Latitude, Longitude: c.Location.Longitude}
}

// Joinable reports whether the challenge still accepts participants.
func (c Challenge) Joinable() bool {
	if c.Status != ChallengeStatusOpen {
		return false
	}
	return c.MaxParticipants == 0 || c.Participants < c.MaxParticipants
}
