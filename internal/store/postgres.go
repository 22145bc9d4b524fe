package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pickupsports/mapcluster/internal/db"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
)

// PostgresStore implements Store on PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS facilities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	city       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	zip_code   TEXT NOT NULL DEFAULT '',
	sports     TEXT[] NOT NULL DEFAULT '{}',
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	geom       geometry(Point, 4326) GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)) STORED,
	source     TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_facilities_geom ON facilities USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_facilities_source ON facilities(source, source_id);

CREATE TABLE IF NOT EXISTS challenges (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT '',
	team_id          TEXT NOT NULL DEFAULT '',
	creator_id       TEXT NOT NULL DEFAULT '',
	starts_at        TIMESTAMPTZ,
	location_name    TEXT NOT NULL DEFAULT '',
	geom             geometry(Point, 4326) NOT NULL,
	participants     INTEGER NOT NULL DEFAULT 0,
	max_participants INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'open',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_challenges_geom ON challenges USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status);
`

// Migrate creates the PostGIS extension, tables and indexes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool if this store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ----- Facilities -----

var facilityUpsert = db.UpsertConfig{
	Table: "facilities",
	Columns: []string{
		"id", "name", "address", "city", "state", "zip_code", "sports",
		"latitude", "longitude", "source", "source_id",
	},
	ConflictKeys: []string{"id"},
	Touch:        []string{"updated_at"},
}

// UpsertFacilities writes facilities in one staged COPY. Records without
// valid coordinates are rejected.
func (s *PostgresStore) UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error) {
	assignFacilityIDs(facilities)

	rows := make([][]any, 0, len(facilities))
	for _, f := range facilities {
		if !validCoordinates(f.Coordinates()) {
			return 0, eris.Errorf("postgres: facility %s has invalid coordinates", f.ID)
		}
		sports := f.Sports
		if sports == nil {
			sports = []string{}
		}
		rows = append(rows, []any{
			f.ID, f.Name, f.Address, f.City, f.State, f.ZipCode, sports,
			f.Latitude, f.Longitude, f.Source, f.SourceID,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, facilityUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert facilities")
	}
	return n, nil
}

const facilitySelect = `SELECT id, name, address, city, state, zip_code, sports, ST_AsEWKB(geom), source, source_id, created_at, updated_at
FROM facilities
WHERE geom && ST_GeomFromEWKB($1)
ORDER BY id`

// FacilitiesInBBox returns facilities whose point falls inside bbox.
func (s *PostgresStore) FacilitiesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Facility, error) {
	env, err := envelopeEWKB(bbox)
	if err != nil {
		return nil, err
	}

	query, args := withLimit(facilitySelect, []any{env}, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: facilities in bbox")
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		var (
			f  model.Facility
			pt []byte
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Address, &f.City, &f.State, &f.ZipCode, &f.Sports,
			&pt, &f.Source, &f.SourceID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan facility")
		}
		c, err := decodePoint(pt)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: facility %s", f.ID)
		}
		f.Latitude, f.Longitude = c.Latitude, c.Longitude
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facilities")
}

// CountFacilities returns the number of stored facilities.
func (s *PostgresStore) CountFacilities(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM facilities`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count facilities")
	}
	return n, nil
}

// ----- Challenges -----

const challengeUpsert = `INSERT INTO challenges
	(id, title, sport, team_id, creator_id, starts_at, location_name, geom, participants, max_participants, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, ST_GeomFromEWKB($8), $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	sport = EXCLUDED.sport,
	team_id = EXCLUDED.team_id,
	creator_id = EXCLUDED.creator_id,
	starts_at = EXCLUDED.starts_at,
	location_name = EXCLUDED.location_name,
	geom = EXCLUDED.geom,
	participants = EXCLUDED.participants,
	max_participants = EXCLUDED.max_participants,
	status = EXCLUDED.status,
	updated_at = now()`

// UpsertChallenges writes challenges row by row in one transaction.
func (s *PostgresStore) UpsertChallenges(ctx context.Context, challenges []model.Challenge) (int64, error) {
	if len(challenges) == 0 {
		return 0, nil
	}
	assignChallengeIDs(challenges)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin challenge upsert")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var total int64
	for _, c := range challenges {
		if !validCoordinates(c.Coordinates()) {
			return 0, eris.Errorf("postgres: challenge %s has invalid coordinates", c.ID)
		}
		pt, err := pointEWKB(c.Coordinates())
		if err != nil {
			return 0, err
		}
		status := c.Status
		if status == "" {
			status = model.ChallengeStatusOpen
		}
		tag, err := tx.Exec(ctx, challengeUpsert,
			c.ID, c.Title, c.Sport, c.TeamID, c.CreatorID, nullTime(c.StartsAt), c.Location.Name,
			pt, c.Participants, c.MaxParticipants, string(status))
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert challenge %s", c.ID)
		}
		total += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit challenge upsert")
	}
	return total, nil
}

const challengeSelect = `SELECT id, title, sport, team_id, creator_id, starts_at, location_name, ST_AsEWKB(geom),
	participants, max_participants, status, created_at, updated_at
FROM challenges
WHERE geom && ST_GeomFromEWKB($1)
ORDER BY id`

// ChallengesInBBox returns challenges located inside bbox.
func (s *PostgresStore) ChallengesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Challenge, error) {
	env, err := envelopeEWKB(bbox)
	if err != nil {
		return nil, err
	}

	query, args := withLimit(challengeSelect, []any{env}, limit)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: challenges in bbox")
	}
	defer rows.Close()

	var out []model.Challenge
	for rows.Next() {
		var (
			c        model.Challenge
			startsAt *time.Time
			pt       []byte
			status   string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Sport, &c.TeamID, &c.CreatorID, &startsAt, &c.Location.Name,
			&pt, &c.Participants, &c.MaxParticipants, &status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan challenge")
		}
		loc, err := decodePoint(pt)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: challenge %s", c.ID)
		}
		c.Location.Latitude, c.Location.Longitude = loc.Latitude, loc.Longitude
		if startsAt != nil {
			c.StartsAt = *startsAt
		}
		c.Status = model.ChallengeStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate challenges")
}

// withLimit appends a LIMIT placeholder when limit is positive.
func withLimit(query string, args []any, limit int) (string, []any) {
	if limit <= 0 {
		return query, args
	}
	return fmt.Sprintf("%s LIMIT $%d", query, len(args)+1), append(args, limit)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
