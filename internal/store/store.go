// Package store persists facilities and challenges and answers the
// bounding-box reads that feed the map.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pickupsports/mapcluster/internal/config"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
	"github.com/pickupsports/mapcluster/internal/resilience"
)

// Store is the persistence interface for map records. BBox reads return
// rows ordered by id; a limit <= 0 means no limit.
type Store interface {
	// Facilities
	UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error)
	FacilitiesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Facility, error)
	CountFacilities(ctx context.Context) (int, error)

	// Challenges
	UpsertChallenges(ctx context.Context, challenges []model.Challenge) (int64, error)
	ChallengesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Challenge, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// NewFromConfig opens the configured backend, retrying transient connect
// failures.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.ConnectAttempts
	retry.OnRetry = resilience.RetryLogger("store", "connect")

	switch cfg.Driver {
	case "postgres":
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (Store, error) {
			return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
		})
	case "sqlite":
		st, err := NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		zap.L().Debug("store: opened sqlite", zap.String("path", cfg.SQLitePath))
		return st, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// assignFacilityIDs gives records without an id a fresh UUID.
func assignFacilityIDs(facilities []model.Facility) {
	for i := range facilities {
		if facilities[i].ID == "" {
			facilities[i].ID = uuid.New().String()
		}
	}
}

func assignChallengeIDs(challenges []model.Challenge) {
	for i := range challenges {
		if challenges[i].ID == "" {
			challenges[i].ID = uuid.New().String()
		}
	}
}

// validCoordinates reports whether a record can be placed on the map.
func validCoordinates(c geo.Coordinates) bool {
	return geo.IsFinite(c) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}
