package weather

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Store lookups when no matching row exists.
var ErrNotFound = errors.New("no data for location")

// ErrLocationNotFound is returned when a location does not exist or has been
// soft-deleted.
var ErrLocationNotFound = errors.New("location not found")

// ProviderError wraps a failure from the external weather provider
// (network, HTTP status, or payload parse).
type ProviderError struct {
	Message    string
	StatusCode int // 0 when the failure happened before a response arrived
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// DataSource abstracts the external weather provider (OpenWeatherMap).
type DataSource interface {
	FetchCurrent(ctx context.Context, lat, lon float64, units string) (Snapshot, error)
	FetchForecast(ctx context.Context, lat, lon float64, units string) ([]ForecastItem, error)
	FetchHistory(ctx context.Context, lat, lon float64, days int, units string) ([]Snapshot, error)
	Geocode(ctx context.Context, query, country string) ([]SearchResult, error)
}

// Store is the persistence contract for locations, snapshots, forecasts,
// sync records, and preferences. Implementations: in-memory and Postgres.
type Store interface {
	// Locations.
	GetLocation(ctx context.Context, id int64) (Location, error)
	FindLocation(ctx context.Context, name, country string) (Location, error) // includes soft-deleted rows
	ListLocations(ctx context.Context) ([]Location, error)                    // active only, favorites first then name
	InsertLocation(ctx context.Context, loc Location) (Location, error)
	UpdateLocation(ctx context.Context, loc Location) error
	ReviveLocation(ctx context.Context, id int64, lat, lon float64, displayName string) (Location, error)
	SoftDeleteLocation(ctx context.Context, id int64) error

	// Snapshots (append-only).
	InsertSnapshot(ctx context.Context, locationID int64, snap Snapshot) error
	LatestSnapshot(ctx context.Context, locationID int64) (Snapshot, error)
	PreviousSnapshot(ctx context.Context, locationID int64) (Snapshot, error) // second-latest
	SnapshotsSince(ctx context.Context, locationID int64, since time.Time) ([]Snapshot, error)

	// Forecast: a fetch replaces all stored items for the location.
	ReplaceForecast(ctx context.Context, locationID int64, items []ForecastItem) error
	GetForecast(ctx context.Context, locationID int64) ([]ForecastItem, error)

	// Sync audit log (append-only).
	AppendSyncRecord(ctx context.Context, rec SyncRecord) error
	LastSuccessfulSync(ctx context.Context, locationID int64) (SyncRecord, error)
	SyncRecords(ctx context.Context, locationID int64, limit int) ([]SyncRecord, error)
	CountFailedSyncsSince(ctx context.Context, since time.Time) (int, error)
	LastSuccessfulSyncAny(ctx context.Context) (SyncRecord, error)

	// Preferences.
	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
	ListPreferences(ctx context.Context) ([]Preference, error)
}
