package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of
// weather.Store. Used in tests and when no DATABASE_URL is configured.
type MemoryStore struct {
	mu sync.RWMutex

	nextID      int64
	locations   map[int64]weather.Location
	snapshots   map[int64][]weather.Snapshot
	forecasts   map[int64][]weather.ForecastItem
	syncRecords map[int64][]weather.SyncRecord
	prefs       map[string]string
}

// NewMemoryStore creates an empty store with default preferences seeded.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locations:   make(map[int64]weather.Location),
		snapshots:   make(map[int64][]weather.Snapshot),
		forecasts:   make(map[int64][]weather.ForecastItem),
		syncRecords: make(map[int64][]weather.SyncRecord),
		prefs: map[string]string{
			"units":            "metric",
			"refresh_interval": "600",
		},
	}
}

func (s *MemoryStore) GetLocation(_ context.Context, id int64) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.locations[id]
	if !ok || loc.Deleted {
		return weather.Location{}, weather.ErrNotFound
	}
	return loc, nil
}

func (s *MemoryStore) FindLocation(_ context.Context, name, country string) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if strings.EqualFold(loc.Name, name) && strings.EqualFold(loc.Country, country) {
			return loc, nil
		}
	}
	return weather.Location{}, weather.ErrNotFound
}

func (s *MemoryStore) ListLocations(_ context.Context) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var locs []weather.Location
	for _, loc := range s.locations {
		if !loc.Deleted {
			locs = append(locs, loc)
		}
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Favorite != locs[j].Favorite {
			return locs[i].Favorite
		}
		return locs[i].Name < locs[j].Name
	})
	return locs, nil
}

func (s *MemoryStore) InsertLocation(_ context.Context, loc weather.Location) (weather.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	loc.ID = s.nextID
	now := time.Now().UTC()
	loc.CreatedAt = now
	loc.UpdatedAt = now
	s.locations[loc.ID] = loc
	return loc, nil
}

func (s *MemoryStore) UpdateLocation(_ context.Context, loc weather.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locations[loc.ID]
	if !ok || existing.Deleted {
		return weather.ErrNotFound
	}
	loc.CreatedAt = existing.CreatedAt
	loc.UpdatedAt = time.Now().UTC()
	s.locations[loc.ID] = loc
	return nil
}

func (s *MemoryStore) ReviveLocation(_ context.Context, id int64, lat, lon float64, displayName string) (weather.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[id]
	if !ok {
		return weather.Location{}, weather.ErrNotFound
	}
	loc.Deleted = false
	loc.Latitude = lat
	loc.Longitude = lon
	loc.DisplayName = displayName
	loc.UpdatedAt = time.Now().UTC()
	s.locations[id] = loc
	return loc, nil
}

func (s *MemoryStore) SoftDeleteLocation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.locations[id]
	if !ok || loc.Deleted {
		return weather.ErrNotFound
	}
	loc.Deleted = true
	loc.Favorite = false
	loc.UpdatedAt = time.Now().UTC()
	s.locations[id] = loc
	return nil
}

func (s *MemoryStore) InsertSnapshot(_ context.Context, locationID int64, snap weather.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	s.snapshots[locationID] = append(s.snapshots[locationID], snap)
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, locationID int64) (weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.snapshots[locationID]
	if len(history) == 0 {
		return weather.Snapshot{}, weather.ErrNotFound
	}
	return history[len(history)-1], nil
}

func (s *MemoryStore) PreviousSnapshot(_ context.Context, locationID int64) (weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.snapshots[locationID]
	if len(history) < 2 {
		return weather.Snapshot{}, weather.ErrNotFound
	}
	return history[len(history)-2], nil
}

func (s *MemoryStore) SnapshotsSince(_ context.Context, locationID int64, since time.Time) ([]weather.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.Snapshot
	for _, snap := range s.snapshots[locationID] {
		if !snap.Timestamp.Before(since) {
			result = append(result, snap)
		}
	}
	// Newest first, matching the history endpoint's presentation order.
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) ReplaceForecast(_ context.Context, locationID int64, items []weather.ForecastItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]weather.ForecastItem, len(items))
	copy(replaced, items)
	sort.Slice(replaced, func(i, j int) bool {
		return replaced[i].ForecastTime < replaced[j].ForecastTime
	})
	s.forecasts[locationID] = replaced
	return nil
}

func (s *MemoryStore) GetForecast(_ context.Context, locationID int64) ([]weather.ForecastItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.forecasts[locationID]
	result := make([]weather.ForecastItem, len(items))
	copy(result, items)
	return result, nil
}

func (s *MemoryStore) AppendSyncRecord(_ context.Context, rec weather.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.SyncedAt.IsZero() {
		rec.SyncedAt = time.Now().UTC()
	}
	s.syncRecords[rec.LocationID] = append(s.syncRecords[rec.LocationID], rec)
	return nil
}

func (s *MemoryStore) LastSuccessfulSync(_ context.Context, locationID int64) (weather.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.syncRecords[locationID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Status == weather.SyncStatusSuccess {
			return records[i], nil
		}
	}
	return weather.SyncRecord{}, weather.ErrNotFound
}

func (s *MemoryStore) SyncRecords(_ context.Context, locationID int64, limit int) ([]weather.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.syncRecords[locationID]
	var result []weather.SyncRecord
	for i := len(records) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		result = append(result, records[i])
	}
	return result, nil
}

func (s *MemoryStore) CountFailedSyncsSince(_ context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, records := range s.syncRecords {
		for _, rec := range records {
			if rec.Status == weather.SyncStatusFailed && !rec.SyncedAt.Before(since) {
				count++
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) LastSuccessfulSyncAny(_ context.Context) (weather.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best weather.SyncRecord
	found := false
	for _, records := range s.syncRecords {
		for _, rec := range records {
			if rec.Status == weather.SyncStatusSuccess && (!found || rec.SyncedAt.After(best.SyncedAt)) {
				best = rec
				found = true
			}
		}
	}
	if !found {
		return weather.SyncRecord{}, weather.ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) GetPreference(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.prefs[key]
	if !ok {
		return "", weather.ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) SetPreference(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[key] = value
	return nil
}

func (s *MemoryStore) ListPreferences(_ context.Context) ([]weather.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := make([]weather.Preference, 0, len(s.prefs))
	for key, value := range s.prefs {
		prefs = append(prefs, weather.Preference{Key: key, Value: value})
	}
	sort.Slice(prefs, func(i, j int) bool { return prefs[i].Key < prefs[j].Key })
	return prefs, nil
}
