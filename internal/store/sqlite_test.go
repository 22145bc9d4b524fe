package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// austin covers central Austin, TX.
var austin = geo.BBox{MinLng: -97.80, MinLat: 30.20, MaxLng: -97.65, MaxLat: 30.35}

// ----- Facilities -----

func TestSQLite_Facilities_UpsertAndQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	in := []model.Facility{
		{ID: "f2", Name: "Mueller Rec Center", Latitude: 30.2986, Longitude: -97.7045, Sports: []string{"basketball"}},
		{ID: "f1", Name: "Zilker Park Courts", Address: "2100 Barton Springs Rd", Latitude: 30.2669, Longitude: -97.7729, Sports: []string{"tennis", "pickleball"}, Source: "osm", SourceID: "node/1"},
		{ID: "f3", Name: "Round Rock Sports Center", Latitude: 30.5083, Longitude: -97.6789},
	}
	n, err := st.UpsertFacilities(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.FacilitiesInBBox(ctx, austin, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f1", got[0].ID)
	assert.Equal(t, "f2", got[1].ID)
	assert.Equal(t, "2100 Barton Springs Rd", got[0].Address)
	assert.Equal(t, []string{"tennis", "pickleball"}, got[0].Sports)
	assert.Equal(t, "osm", got[0].Source)
	assert.Equal(t, "node/1", got[0].SourceID)
	assert.InDelta(t, 30.2669, got[0].Latitude, 1e-9)
	assert.False(t, got[0].CreatedAt.IsZero())

	count, err := st.CountFacilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLite_Facilities_Limit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var in []model.Facility
	for i := 0; i < 10; i++ {
		in = append(in, model.Facility{
			ID:        string(rune('a' + i)),
			Name:      "Court",
			Latitude:  30.25 + float64(i)*0.001,
			Longitude: -97.75,
		})
	}
	_, err := st.UpsertFacilities(ctx, in)
	require.NoError(t, err)

	got, err := st.FacilitiesInBBox(ctx, austin, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "d", got[3].ID)
}

func TestSQLite_Facilities_UpsertUpdates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	f := model.Facility{ID: "f1", Name: "Zilker", Latitude: 30.2669, Longitude: -97.7729}
	_, err := st.UpsertFacilities(ctx, []model.Facility{f})
	require.NoError(t, err)

	f.Name = "Zilker Park Courts"
	f.Sports = []string{"tennis"}
	_, err = st.UpsertFacilities(ctx, []model.Facility{f})
	require.NoError(t, err)

	got, err := st.FacilitiesInBBox(ctx, austin, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Zilker Park Courts", got[0].Name)
	assert.Equal(t, []string{"tennis"}, got[0].Sports)
}

func TestSQLite_Facilities_AssignsIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	in := []model.Facility{{Name: "No ID Park", Latitude: 30.3, Longitude: -97.7}}
	_, err := st.UpsertFacilities(ctx, in)
	require.NoError(t, err)
	assert.Len(t, in[0].ID, 36)

	got, err := st.FacilitiesInBBox(ctx, austin, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, in[0].ID, got[0].ID)
}

func TestSQLite_Facilities_RejectsInvalidCoordinates(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.UpsertFacilities(context.Background(), []model.Facility{
		{ID: "ok", Name: "a", Latitude: 30, Longitude: -97},
		{ID: "bad", Name: "b", Latitude: math.NaN(), Longitude: -97},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	count, err := st.CountFacilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count, "transaction rolled back")
}

func TestSQLite_Facilities_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	n, err := st.UpsertFacilities(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := st.FacilitiesInBBox(context.Background(), austin, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// ----- Challenges -----

func TestSQLite_Challenges_UpsertAndQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	starts := time.Date(2025, 7, 4, 18, 0, 0, 0, time.UTC)
	in := []model.Challenge{
		{
			ID: "c1", Title: "Sunday 5v5", Sport: "basketball", TeamID: "t1", CreatorID: "u1",
			StartsAt: starts, Location: model.Location{Name: "Mueller", Latitude: 30.2986, Longitude: -97.7045},
			Participants: 6, MaxParticipants: 10,
		},
		{ID: "c2", Title: "Pickup soccer", Location: model.Location{Latitude: 30.27, Longitude: -97.74}, Status: model.ChallengeStatusFull},
		{ID: "c3", Title: "Far away", Location: model.Location{Latitude: 40.7, Longitude: -74.0}},
	}
	n, err := st.UpsertChallenges(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := st.ChallengesInBBox(ctx, austin, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	c1 := got[0]
	assert.Equal(t, "c1", c1.ID)
	assert.Equal(t, "basketball", c1.Sport)
	assert.True(t, starts.Equal(c1.StartsAt))
	assert.Equal(t, "Mueller", c1.Location.Name)
	assert.InDelta(t, 30.2986, c1.Location.Latitude, 1e-9)
	assert.Equal(t, 6, c1.Participants)
	assert.Equal(t, 10, c1.MaxParticipants)
	assert.Equal(t, model.ChallengeStatusOpen, c1.Status)

	c2 := got[1]
	assert.True(t, c2.StartsAt.IsZero())
	assert.Equal(t, model.ChallengeStatusFull, c2.Status)
}

// ----- Lifecycle -----

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Ping(context.Background()))
}
