package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmorozov/weather-insights/internal/store"
	"github.com/pmorozov/weather-insights/internal/weather"
)

func insertLocation(t *testing.T, st *store.MemoryStore, name, country string) weather.Location {
	t.Helper()
	loc, err := st.InsertLocation(context.Background(), weather.Location{
		Name:        name,
		Country:     country,
		Latitude:    1,
		Longitude:   2,
		DisplayName: name,
	})
	require.NoError(t, err)
	return loc
}

func TestMemoryStore_SoftDeleteAndRevive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	loc := insertLocation(t, st, "Paris", "FR")

	require.NoError(t, st.SoftDeleteLocation(ctx, loc.ID))

	// Gone from reads keyed on active rows.
	_, err := st.GetLocation(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)
	locs, err := st.ListLocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, locs)

	// Still findable by identity, so tracking the same place revives it.
	found, err := st.FindLocation(ctx, "paris", "fr")
	require.NoError(t, err)
	assert.True(t, found.Deleted)

	revived, err := st.ReviveLocation(ctx, loc.ID, 48.85, 2.35, "Paris, France")
	require.NoError(t, err)
	assert.False(t, revived.Deleted)
	assert.Equal(t, 48.85, revived.Latitude)
	assert.Equal(t, "Paris, France", revived.DisplayName)

	active, err := st.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, loc.ID, active.ID)
}

func TestMemoryStore_SoftDeleteTwice(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	loc := insertLocation(t, st, "Paris", "FR")

	require.NoError(t, st.SoftDeleteLocation(ctx, loc.ID))
	assert.ErrorIs(t, st.SoftDeleteLocation(ctx, loc.ID), weather.ErrNotFound)
}

func TestMemoryStore_ListLocationsFavoritesFirst(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	insertLocation(t, st, "Amsterdam", "NL")
	berlin := insertLocation(t, st, "Berlin", "DE")
	insertLocation(t, st, "Zagreb", "HR")

	berlin.Favorite = true
	require.NoError(t, st.UpdateLocation(ctx, berlin))

	locs, err := st.ListLocations(ctx)
	require.NoError(t, err)
	require.Len(t, locs, 3)
	assert.Equal(t, "Berlin", locs[0].Name)
	assert.Equal(t, "Amsterdam", locs[1].Name)
	assert.Equal(t, "Zagreb", locs[2].Name)
}

func TestMemoryStore_SnapshotOrdering(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	loc := insertLocation(t, st, "Paris", "FR")

	_, err := st.LatestSnapshot(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)
	_, err = st.PreviousSnapshot(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)

	base := time.Now().UTC()
	for i, temp := range []float64{10, 12, 14} {
		require.NoError(t, st.InsertSnapshot(ctx, loc.ID, weather.Snapshot{
			Temperature: temp,
			Main:        "Clouds",
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
		}))
	}

	latest, err := st.LatestSnapshot(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 14.0, latest.Temperature)

	previous, err := st.PreviousSnapshot(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 12.0, previous.Temperature)

	since, err := st.SnapshotsSince(ctx, loc.ID, base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 2)
	// Newest first.
	assert.Equal(t, 14.0, since[0].Temperature)
	assert.Equal(t, 12.0, since[1].Temperature)
}

func TestMemoryStore_ReplaceForecast(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	loc := insertLocation(t, st, "Paris", "FR")

	require.NoError(t, st.ReplaceForecast(ctx, loc.ID, []weather.ForecastItem{
		{ForecastTime: 100, Pop: 0.1},
		{ForecastTime: 200, Pop: 0.2},
	}))
	// Out-of-order input comes back sorted by target time.
	require.NoError(t, st.ReplaceForecast(ctx, loc.ID, []weather.ForecastItem{
		{ForecastTime: 400, Pop: 0.5},
		{ForecastTime: 300, Pop: 0.4},
	}))

	items, err := st.GetForecast(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(300), items[0].ForecastTime)
	assert.Equal(t, int64(400), items[1].ForecastTime)
}

func TestMemoryStore_SyncRecords(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	loc := insertLocation(t, st, "Paris", "FR")

	_, err := st.LastSuccessfulSync(ctx, loc.ID)
	assert.ErrorIs(t, err, weather.ErrNotFound)

	now := time.Now().UTC()
	appendRecord := func(status string, at time.Time) {
		require.NoError(t, st.AppendSyncRecord(ctx, weather.SyncRecord{
			ID:         uuid.NewString(),
			LocationID: loc.ID,
			SyncType:   "all",
			Status:     status,
			SyncedAt:   at,
		}))
	}
	appendRecord(weather.SyncStatusFailed, now.Add(-30*time.Hour))
	appendRecord(weather.SyncStatusSuccess, now.Add(-3*time.Hour))
	appendRecord(weather.SyncStatusFailed, now.Add(-2*time.Hour))
	appendRecord(weather.SyncStatusSuccess, now.Add(-1*time.Hour))

	last, err := st.LastSuccessfulSync(ctx, loc.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(-1*time.Hour), last.SyncedAt, time.Second)

	records, err := st.SyncRecords(ctx, loc.ID, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Most recent first.
	assert.Equal(t, weather.SyncStatusSuccess, records[0].Status)
	assert.Equal(t, weather.SyncStatusFailed, records[1].Status)

	failed, err := st.CountFailedSyncsSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	newest, err := st.LastSuccessfulSyncAny(ctx)
	require.NoError(t, err)
	assert.Equal(t, last.ID, newest.ID)
}

func TestMemoryStore_Preferences(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	units, err := st.GetPreference(ctx, "units")
	require.NoError(t, err)
	assert.Equal(t, "metric", units)

	_, err = st.GetPreference(ctx, "theme")
	assert.ErrorIs(t, err, weather.ErrNotFound)

	require.NoError(t, st.SetPreference(ctx, "units", "imperial"))
	units, err = st.GetPreference(ctx, "units")
	require.NoError(t, err)
	assert.Equal(t, "imperial", units)

	prefs, err := st.ListPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "refresh_interval", prefs[0].Key)
	assert.Equal(t, "units", prefs[1].Key)
}
