package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. BBox reads use
// plain latitude/longitude range predicates.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facilities (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	address    TEXT NOT NULL DEFAULT '',
	city       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	zip_code   TEXT NOT NULL DEFAULT '',
	sports     TEXT NOT NULL DEFAULT '[]',
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facilities_lat_lon ON facilities(latitude, longitude);

CREATE TABLE IF NOT EXISTS challenges (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	sport            TEXT NOT NULL DEFAULT '',
	team_id          TEXT NOT NULL DEFAULT '',
	creator_id       TEXT NOT NULL DEFAULT '',
	starts_at        DATETIME,
	location_name    TEXT NOT NULL DEFAULT '',
	latitude         REAL NOT NULL,
	longitude        REAL NOT NULL,
	participants     INTEGER NOT NULL DEFAULT 0,
	max_participants INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'open',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_challenges_lat_lon ON challenges(latitude, longitude);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ----- Facilities -----

const sqliteFacilityUpsert = `INSERT INTO facilities
	(id, name, address, city, state, zip_code, sports, latitude, longitude, source, source_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	address = excluded.address,
	city = excluded.city,
	state = excluded.state,
	zip_code = excluded.zip_code,
	sports = excluded.sports,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	source = excluded.source,
	source_id = excluded.source_id,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error) {
	if len(facilities) == 0 {
		return 0, nil
	}
	assignFacilityIDs(facilities)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin facility upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteFacilityUpsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare facility upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, f := range facilities {
		if !validCoordinates(f.Coordinates()) {
			return 0, eris.Errorf("sqlite: facility %s has invalid coordinates", f.ID)
		}
		sports, err := marshalSports(f.Sports)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx,
			f.ID, f.Name, f.Address, f.City, f.State, f.ZipCode, sports,
			f.Latitude, f.Longitude, f.Source, f.SourceID, now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert facility %s", f.ID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit facility upsert")
	}
	return total, nil
}

func (s *SQLiteStore) FacilitiesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Facility, error) {
	query := `SELECT id, name, address, city, state, zip_code, sports, latitude, longitude, source, source_id, created_at, updated_at
FROM facilities
WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
ORDER BY id`
	args := []any{bbox.MinLat, bbox.MaxLat, bbox.MinLng, bbox.MaxLng}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: facilities in bbox")
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		var (
			f      model.Facility
			sports string
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Address, &f.City, &f.State, &f.ZipCode, &sports,
			&f.Latitude, &f.Longitude, &f.Source, &f.SourceID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan facility")
		}
		if err := json.Unmarshal([]byte(sports), &f.Sports); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode sports for %s", f.ID)
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facilities")
}

func (s *SQLiteStore) CountFacilities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM facilities`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count facilities")
	}
	return n, nil
}

// ----- Challenges -----

const sqliteChallengeUpsert = `INSERT INTO challenges
	(id, title, sport, team_id, creator_id, starts_at, location_name, latitude, longitude,
	 participants, max_participants, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	sport = excluded.sport,
	team_id = excluded.team_id,
	creator_id = excluded.creator_id,
	starts_at = excluded.starts_at,
	location_name = excluded.location_name,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	participants = excluded.participants,
	max_participants = excluded.max_participants,
	status = excluded.status,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertChallenges(ctx context.Context, challenges []model.Challenge) (int64, error) {
	if len(challenges) == 0 {
		return 0, nil
	}
	assignChallengeIDs(challenges)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin challenge upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var total int64
	for _, c := range challenges {
		if !validCoordinates(c.Coordinates()) {
			return 0, eris.Errorf("sqlite: challenge %s has invalid coordinates", c.ID)
		}
		status := c.Status
		if status == "" {
			status = model.ChallengeStatusOpen
		}
		startsAt := sql.NullTime{Time: c.StartsAt.UTC(), Valid: !c.StartsAt.IsZero()}
		res, err := tx.ExecContext(ctx, sqliteChallengeUpsert,
			c.ID, c.Title, c.Sport, c.TeamID, c.CreatorID, startsAt, c.Location.Name,
			c.Location.Latitude, c.Location.Longitude, c.Participants, c.MaxParticipants,
			string(status), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert challenge %s", c.ID)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit challenge upsert")
	}
	return total, nil
}

func (s *SQLiteStore) ChallengesInBBox(ctx context.Context, bbox geo.BBox, limit int) ([]model.Challenge, error) {
	query := `SELECT id, title, sport, team_id, creator_id, starts_at, location_name, latitude, longitude,
	participants, max_participants, status, created_at, updated_at
FROM challenges
WHERE latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
ORDER BY id`
	args := []any{bbox.MinLat, bbox.MaxLat, bbox.MinLng, bbox.MaxLng}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: challenges in bbox")
	}
	defer rows.Close()

	var out []model.Challenge
	for rows.Next() {
		var (
			c        model.Challenge
			startsAt sql.NullTime
			status   string
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.Sport, &c.TeamID, &c.CreatorID, &startsAt, &c.Location.Name,
			&c.Location.Latitude, &c.Location.Longitude, &c.Participants, &c.MaxParticipants,
			&status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan challenge")
		}
		if startsAt.Valid {
			c.StartsAt = startsAt.Time
		}
		c.Status = model.ChallengeStatus(status)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate challenges")
}

func marshalSports(sports []string) (string, error) {
	if sports == nil {
		sports = []string{}
	}
	data, err := json.Marshal(sports)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal sports")
	}
	return string(data), nil
}
