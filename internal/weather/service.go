package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pmorozov/weather-insights/internal/metrics"
)

// Notes attached to sync results.
const (
	NoteCached   = "Used cached weather data to reduce API calls."
	NoteConflict = "Significant data shift detected; latest API response applied as source of truth."
)

const (
	defaultUnits           = "metric"
	defaultRefreshInterval = 600 * time.Second
	minRefreshInterval     = 60 * time.Second
	syncTypeAll            = "all"
)

// EventPublisher receives successful sync results for fan-out.
type EventPublisher interface {
	PublishSync(ctx context.Context, locationID int64, current Snapshot, note string)
}

// FallbackGeocoder is consulted when the primary provider's geocoding
// endpoint returns no results.
type FallbackGeocoder interface {
	Enabled() bool
	Geocode(ctx context.Context, query, country string) ([]SearchResult, error)
}

// ServiceConfig bundles the collaborators of a Service.
type ServiceConfig struct {
	Store         Store
	Source        DataSource
	Publisher     EventPublisher   // optional
	Geocoder      FallbackGeocoder // optional
	Logger        zerolog.Logger
	SyncInterval  time.Duration
	APIConfigured bool
}

// Service orchestrates location management, weather syncs, and history reads.
// At most one sync runs per location at a time; syncs for different
// locations proceed independently.
type Service struct {
	store         Store
	source        DataSource
	publisher     EventPublisher
	geocoder      FallbackGeocoder
	log           zerolog.Logger
	syncInterval  time.Duration
	apiConfigured bool

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	now func() time.Time
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:         cfg.Store,
		source:        cfg.Source,
		publisher:     cfg.Publisher,
		geocoder:      cfg.Geocoder,
		log:           cfg.Logger,
		syncInterval:  cfg.SyncInterval,
		apiConfigured: cfg.APIConfigured,
		locks:         make(map[int64]*sync.Mutex),
		now:           time.Now,
	}
}

// lockFor returns the per-location mutex, creating it on first use.
func (s *Service) lockFor(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// AddLocation geocodes the query and tracks the best match. A soft-deleted
// location with the same name and country is revived in place instead of
// creating a duplicate row.
func (s *Service) AddLocation(ctx context.Context, name, country string) (Location, error) {
	hits, err := s.geocode(ctx, name, country)
	if err != nil {
		return Location{}, err
	}
	if len(hits) == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrLocationNotFound, name)
	}

	best := hits[0]

	existing, err := s.store.FindLocation(ctx, best.Name, best.Country)
	switch {
	case err == nil:
		return s.store.ReviveLocation(ctx, existing.ID, best.Latitude, best.Longitude, best.Name)
	case errors.Is(err, ErrNotFound):
		return s.store.InsertLocation(ctx, Location{
			Name:        best.Name,
			Country:     best.Country,
			Latitude:    best.Latitude,
			Longitude:   best.Longitude,
			DisplayName: best.Name,
		})
	default:
		return Location{}, err
	}
}

// SearchLocations returns geocoding candidates without tracking anything.
func (s *Service) SearchLocations(ctx context.Context, query, country string) ([]SearchResult, error) {
	return s.geocode(ctx, query, country)
}

func (s *Service) geocode(ctx context.Context, query, country string) ([]SearchResult, error) {
	hits, err := s.source.Geocode(ctx, query, country)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 && s.geocoder != nil && s.geocoder.Enabled() {
		s.log.Debug().Str("query", query).Msg("primary geocoding empty, trying fallback geocoder")
		return s.geocoder.Geocode(ctx, query, country)
	}
	return hits, nil
}

// GetLocation resolves an active location or ErrLocationNotFound.
func (s *Service) GetLocation(ctx context.Context, id int64) (Location, error) {
	loc, err := s.store.GetLocation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Location{}, ErrLocationNotFound
	}
	return loc, err
}

// ListLocations returns active locations, favorites first.
func (s *Service) ListLocations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx)
}

// UpdateLocation patches display name and/or favorite flag.
func (s *Service) UpdateLocation(ctx context.Context, id int64, displayName *string, favorite *bool) (Location, error) {
	loc, err := s.GetLocation(ctx, id)
	if err != nil {
		return Location{}, err
	}
	if displayName == nil && favorite == nil {
		return loc, nil
	}
	if displayName != nil {
		loc.DisplayName = *displayName
	}
	if favorite != nil {
		loc.Favorite = *favorite
	}
	if err := s.store.UpdateLocation(ctx, loc); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Location{}, ErrLocationNotFound
		}
		return Location{}, err
	}
	return s.GetLocation(ctx, id)
}

// DeleteLocation soft-deletes a location and clears its favorite flag.
func (s *Service) DeleteLocation(ctx context.Context, id int64) error {
	err := s.store.SoftDeleteLocation(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrLocationNotFound
	}
	return err
}

// Sync refreshes weather data for a location. With force unset, stored data
// newer than the refresh-interval TTL is returned without touching the
// provider. Any fetch or persistence failure is recorded in the sync audit
// log before being returned.
func (s *Service) Sync(ctx context.Context, id int64, force bool) (Snapshot, []ForecastItem, string, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	timer := prometheus.NewTimer(metrics.SyncDuration)
	defer timer.ObserveDuration()

	loc, err := s.GetLocation(ctx, id)
	if err != nil {
		return Snapshot{}, nil, "", err
	}

	units := s.preference(ctx, "units", defaultUnits)
	ttl := s.RefreshInterval(ctx)

	if !force {
		if current, forecast, ok := s.cachedData(ctx, id, ttl); ok {
			metrics.SyncsCached.Inc()
			s.log.Debug().Int64("location_id", id).Msg("serving cached weather data")
			return current, forecast, NoteCached, nil
		}
	}

	// Read the previous latest snapshot before it is superseded. A missing
	// snapshot means this is the first sync; any other store error must not
	// silently disable conflict detection.
	var previous *Snapshot
	prev, err := s.store.LatestSnapshot(ctx, id)
	switch {
	case err == nil:
		previous = &prev
	case errors.Is(err, ErrNotFound):
	default:
		return Snapshot{}, nil, "", s.failSync(ctx, id, err)
	}

	var current Snapshot
	var forecast []ForecastItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.source.FetchCurrent(gctx, loc.Latitude, loc.Longitude, units)
		if err != nil {
			return err
		}
		current = c
		return nil
	})
	g.Go(func() error {
		f, err := s.source.FetchForecast(gctx, loc.Latitude, loc.Longitude, units)
		if err != nil {
			return err
		}
		forecast = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, nil, "", s.failSync(ctx, id, err)
	}

	note := detectConflict(previous, current)

	if err := s.store.InsertSnapshot(ctx, id, current); err != nil {
		return Snapshot{}, nil, "", s.failSync(ctx, id, err)
	}
	if err := s.store.ReplaceForecast(ctx, id, forecast); err != nil {
		return Snapshot{}, nil, "", s.failSync(ctx, id, err)
	}
	if err := s.store.AppendSyncRecord(ctx, SyncRecord{
		ID:         uuid.NewString(),
		LocationID: id,
		SyncType:   syncTypeAll,
		Status:     SyncStatusSuccess,
		Message:    note,
		SyncedAt:   s.now().UTC(),
	}); err != nil {
		return Snapshot{}, nil, "", s.failSync(ctx, id, err)
	}

	metrics.SyncsTotal.WithLabelValues(SyncStatusSuccess).Inc()
	if s.publisher != nil {
		s.publisher.PublishSync(ctx, id, current, note)
	}
	s.log.Info().Int64("location_id", id).Bool("force", force).Str("note", note).Msg("weather sync completed")

	return current, forecast, note, nil
}

// cachedData reports whether stored data is complete and fresh enough to
// serve without a provider call.
func (s *Service) cachedData(ctx context.Context, id int64, ttl time.Duration) (Snapshot, []ForecastItem, bool) {
	last, err := s.store.LastSuccessfulSync(ctx, id)
	if err != nil || s.now().Sub(last.SyncedAt) >= ttl {
		return Snapshot{}, nil, false
	}
	current, err := s.store.LatestSnapshot(ctx, id)
	if err != nil {
		return Snapshot{}, nil, false
	}
	forecast, err := s.store.GetForecast(ctx, id)
	if err != nil || len(forecast) == 0 {
		return Snapshot{}, nil, false
	}
	return current, forecast, true
}

// failSync appends a failed audit record and returns the original error.
func (s *Service) failSync(ctx context.Context, id int64, cause error) error {
	metrics.SyncsTotal.WithLabelValues(SyncStatusFailed).Inc()
	if err := s.store.AppendSyncRecord(ctx, SyncRecord{
		ID:         uuid.NewString(),
		LocationID: id,
		SyncType:   syncTypeAll,
		Status:     SyncStatusFailed,
		Message:    cause.Error(),
		SyncedAt:   s.now().UTC(),
	}); err != nil {
		s.log.Error().Err(err).Int64("location_id", id).Msg("failed to record sync failure")
	}
	return cause
}

// detectConflict compares consecutive snapshots and returns the conflict
// note when readings shifted implausibly between syncs.
func detectConflict(previous *Snapshot, next Snapshot) string {
	if previous == nil {
		return ""
	}
	if math.Abs(next.Temperature-previous.Temperature) >= 10 ||
		math.Abs(next.WindSpeed-previous.WindSpeed) >= 10 ||
		!strings.EqualFold(next.Main, previous.Main) {
		return NoteConflict
	}
	return ""
}

// History returns past snapshots for a location, preferring the provider's
// archive and falling back to locally stored snapshots on any provider
// failure. The second return value names the source actually used.
func (s *Service) History(ctx context.Context, id int64, days int, preferAPI bool) ([]Snapshot, string, error) {
	loc, err := s.GetLocation(ctx, id)
	if err != nil {
		return nil, "", err
	}

	units := s.preference(ctx, "units", defaultUnits)

	if preferAPI {
		rows, err := s.source.FetchHistory(ctx, loc.Latitude, loc.Longitude, days, units)
		if err == nil {
			return rows, "api", nil
		}
		s.log.Warn().Err(err).Int64("location_id", id).Msg("provider history failed, falling back to local store")
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	rows, err := s.store.SnapshotsSince(ctx, id, since)
	if err != nil {
		return nil, "", err
	}
	return rows, "local", nil
}

// LatestSnapshot returns the newest stored snapshot, or nil when none exists.
func (s *Service) LatestSnapshot(ctx context.Context, id int64) (*Snapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// PreviousSnapshot returns the second-latest stored snapshot, or nil. Used
// by the insight engine's change detection.
func (s *Service) PreviousSnapshot(ctx context.Context, id int64) (*Snapshot, error) {
	snap, err := s.store.PreviousSnapshot(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// StoredForecast returns the stored forecast ordered by target time.
func (s *Service) StoredForecast(ctx context.Context, id int64) ([]ForecastItem, error) {
	return s.store.GetForecast(ctx, id)
}

// LastSyncTime returns when the location last synced successfully, or nil.
func (s *Service) LastSyncTime(ctx context.Context, id int64) (*time.Time, error) {
	rec, err := s.store.LastSuccessfulSync(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := rec.SyncedAt
	return &t, nil
}

// LastSyncNote returns the note attached to the most recent successful sync.
func (s *Service) LastSyncNote(ctx context.Context, id int64) string {
	rec, err := s.store.LastSuccessfulSync(ctx, id)
	if err != nil {
		return ""
	}
	return rec.Message
}

// Overview lists all active locations with their latest snapshot and last
// successful sync time.
func (s *Service) Overview(ctx context.Context) ([]Overview, error) {
	locs, err := s.store.ListLocations(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]Overview, 0, len(locs))
	for _, loc := range locs {
		current, err := s.LatestSnapshot(ctx, loc.ID)
		if err != nil {
			return nil, err
		}
		lastSynced, err := s.LastSyncTime(ctx, loc.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Overview{Location: loc, Current: current, LastSynced: lastSynced})
	}
	return rows, nil
}

// Status summarizes sync health across all tracked locations.
func (s *Service) Status(ctx context.Context) (SystemStatus, error) {
	locs, err := s.store.ListLocations(ctx)
	if err != nil {
		return SystemStatus{}, err
	}

	synced := 0
	for _, loc := range locs {
		if _, err := s.store.LastSuccessfulSync(ctx, loc.ID); err == nil {
			synced++
		}
	}

	failed, err := s.store.CountFailedSyncsSince(ctx, s.now().UTC().Add(-24*time.Hour))
	if err != nil {
		return SystemStatus{}, err
	}

	status := SystemStatus{
		TotalLocations:      len(locs),
		SyncedLocations:     synced,
		FailedSyncLast24h:   failed,
		SyncIntervalSeconds: int(s.syncInterval.Seconds()),
		APIConfigured:       s.apiConfigured,
	}
	if rec, err := s.store.LastSuccessfulSyncAny(ctx); err == nil {
		t := rec.SyncedAt
		status.LastSuccessSync = &t
	}
	return status, nil
}

// ExportPayload is the full local dataset for one location.
type ExportPayload struct {
	Location    Location       `json:"location"`
	Current     *Snapshot      `json:"current,omitempty"`
	Forecast    []ForecastItem `json:"forecast"`
	History     []Snapshot     `json:"history"`
	SyncRecords []SyncRecord   `json:"sync_records"`
}

// Export gathers everything stored about a location for download.
func (s *Service) Export(ctx context.Context, id int64, historyDays int) (ExportPayload, error) {
	loc, err := s.GetLocation(ctx, id)
	if err != nil {
		return ExportPayload{}, err
	}

	current, err := s.LatestSnapshot(ctx, id)
	if err != nil {
		return ExportPayload{}, err
	}
	forecast, err := s.store.GetForecast(ctx, id)
	if err != nil {
		return ExportPayload{}, err
	}
	history, err := s.store.SnapshotsSince(ctx, id, s.now().UTC().AddDate(0, 0, -historyDays))
	if err != nil {
		return ExportPayload{}, err
	}
	records, err := s.store.SyncRecords(ctx, id, 50)
	if err != nil {
		return ExportPayload{}, err
	}

	return ExportPayload{
		Location:    loc,
		Current:     current,
		Forecast:    forecast,
		History:     history,
		SyncRecords: records,
	}, nil
}

// ListPreferences returns all stored preferences.
func (s *Service) ListPreferences(ctx context.Context) ([]Preference, error) {
	return s.store.ListPreferences(ctx)
}

// UpdatePreference stores a preference value.
func (s *Service) UpdatePreference(ctx context.Context, key, value string) error {
	return s.store.SetPreference(ctx, key, value)
}

// RefreshInterval resolves the refresh_interval preference as the cache TTL.
// Missing or unparsable values fall back to 600s; valid values are floored
// at 60s.
func (s *Service) RefreshInterval(ctx context.Context) time.Duration {
	raw, err := s.store.GetPreference(ctx, "refresh_interval")
	if err != nil {
		return defaultRefreshInterval
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return defaultRefreshInterval
	}
	interval := time.Duration(seconds) * time.Second
	if interval < minRefreshInterval {
		return minRefreshInterval
	}
	return interval
}

func (s *Service) preference(ctx context.Context, key, fallback string) string {
	value, err := s.store.GetPreference(ctx, key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
