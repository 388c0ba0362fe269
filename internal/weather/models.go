package weather

import (
	"time"
)

// Location is a logical place for which we track weather.
// Locations are soft-deleted: the row survives with Deleted set so that a
// later add of the same (Name, Country) revives it instead of duplicating.
type Location struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Country     string    `json:"country"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	DisplayName string    `json:"display_name"`
	Favorite    bool      `json:"is_favorite"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot is a point-in-time weather observation. Immutable once stored;
// per-location history is append-only.
type Snapshot struct {
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	TempMin     float64   `json:"temp_min"`
	TempMax     float64   `json:"temp_max"`
	Pressure    int       `json:"pressure"`
	Humidity    int       `json:"humidity"`
	Main        string    `json:"weather_main"`
	Description string    `json:"weather_description"`
	Icon        string    `json:"weather_icon"`
	WindSpeed   float64   `json:"wind_speed"`
	WindDeg     *int      `json:"wind_deg,omitempty"`
	Clouds      int       `json:"clouds"`
	Visibility  *int      `json:"visibility,omitempty"`
	APITime     int64     `json:"api_timestamp"`
	Timestamp   time.Time `json:"timestamp"` // local capture time, UTC
}

// ForecastItem is a single future time-bucket prediction. OpenWeatherMap's
// 5-day forecast returns these at 3-hour granularity, 40 items.
type ForecastItem struct {
	ForecastTime int64   `json:"forecast_timestamp"`
	Temperature  float64 `json:"temperature"`
	FeelsLike    float64 `json:"feels_like"`
	TempMin      float64 `json:"temp_min"`
	TempMax      float64 `json:"temp_max"`
	Pressure     int     `json:"pressure"`
	Humidity     int     `json:"humidity"`
	Main         string  `json:"weather_main"`
	Description  string  `json:"weather_description"`
	Icon         string  `json:"weather_icon"`
	WindSpeed    float64 `json:"wind_speed"`
	WindDeg      *int    `json:"wind_deg,omitempty"`
	Clouds       int     `json:"clouds"`
	Pop          float64 `json:"pop"` // probability of precipitation, 0..1
}

// Sync record statuses.
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncRecord is one entry of the append-only sync audit log.
type SyncRecord struct {
	ID         string    `json:"id"`
	LocationID int64     `json:"location_id"`
	SyncType   string    `json:"sync_type"`
	Status     string    `json:"status"`
	Message    string    `json:"message,omitempty"`
	SyncedAt   time.Time `json:"synced_at"`
}

// Preference is a flat key/value user setting, e.g. units or refresh_interval.
type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SearchResult is a geocoding hit offered to the user before a location is
// actually tracked.
type SearchResult struct {
	Name        string  `json:"name"`
	Country     string  `json:"country"`
	State       string  `json:"state,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"display_name"`
}

// Overview pairs a location with its latest stored snapshot for list views.
type Overview struct {
	Location   Location   `json:"location"`
	Current    *Snapshot  `json:"current,omitempty"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
}

// SystemStatus summarizes sync health across all tracked locations.
type SystemStatus struct {
	TotalLocations      int        `json:"total_locations"`
	SyncedLocations     int        `json:"synced_locations"`
	FailedSyncLast24h   int        `json:"failed_sync_last_24h"`
	LastSuccessSync     *time.Time `json:"last_success_sync,omitempty"`
	SyncIntervalSeconds int        `json:"sync_interval_seconds"`
	APIConfigured       bool       `json:"api_configured"`
}
