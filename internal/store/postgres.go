package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// Querier abstracts the subset of pgxpool.Pool used by PostgresStore.
// Allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is the pgx-backed implementation of weather.Store.
type PostgresStore struct {
	q Querier
}

// NewPostgresStore constructs a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{q: pool}
}

// NewPostgresStoreWithQuerier constructs a store with a custom Querier (for tests).
func NewPostgresStoreWithQuerier(q Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

// Connect opens a pgxpool connection and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pgxpool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes all .sql files in migrationsDir in lexicographic
// order, each in its own transaction.
func RunMigrations(ctx context.Context, q Querier, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("reading migrations dir %s: %w", migrationsDir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(migrationsDir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", f, err)
		}

		tx, err := q.Begin(ctx)
		if err != nil {
			return fmt.Errorf("beginning migration tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("executing migration %s: %w", f, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("committing migration %s: %w", f, err)
		}
	}

	return nil
}

const locationColumns = `id, name, country, latitude, longitude, display_name, is_favorite, is_deleted, created_at, updated_at`

func scanLocation(row pgx.Row) (weather.Location, error) {
	var loc weather.Location
	err := row.Scan(
		&loc.ID, &loc.Name, &loc.Country, &loc.Latitude, &loc.Longitude,
		&loc.DisplayName, &loc.Favorite, &loc.Deleted, &loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return weather.Location{}, weather.ErrNotFound
		}
		return weather.Location{}, fmt.Errorf("scanning location: %w", err)
	}
	return loc, nil
}

func (s *PostgresStore) GetLocation(ctx context.Context, id int64) (weather.Location, error) {
	q := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1 AND NOT is_deleted`
	return scanLocation(s.q.QueryRow(ctx, q, id))
}

func (s *PostgresStore) FindLocation(ctx context.Context, name, country string) (weather.Location, error) {
	q := `SELECT ` + locationColumns + ` FROM locations WHERE lower(name) = lower($1) AND lower(country) = lower($2) LIMIT 1`
	return scanLocation(s.q.QueryRow(ctx, q, name, country))
}

func (s *PostgresStore) ListLocations(ctx context.Context) ([]weather.Location, error) {
	q := `SELECT ` + locationColumns + ` FROM locations WHERE NOT is_deleted ORDER BY is_favorite DESC, name ASC`
	rows, err := s.q.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locs []weather.Location
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, rows.Err()
}

func (s *PostgresStore) InsertLocation(ctx context.Context, loc weather.Location) (weather.Location, error) {
	q := `
		INSERT INTO locations (name, country, latitude, longitude, display_name, is_favorite)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + locationColumns
	return scanLocation(s.q.QueryRow(ctx, q,
		loc.Name, loc.Country, loc.Latitude, loc.Longitude, loc.DisplayName, loc.Favorite))
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, loc weather.Location) error {
	q := `
		UPDATE locations
		SET display_name = $2, is_favorite = $3, updated_at = now()
		WHERE id = $1 AND NOT is_deleted`
	tag, err := s.q.Exec(ctx, q, loc.ID, loc.DisplayName, loc.Favorite)
	if err != nil {
		return fmt.Errorf("updating location %d: %w", loc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return weather.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ReviveLocation(ctx context.Context, id int64, lat, lon float64, displayName string) (weather.Location, error) {
	q := `
		UPDATE locations
		SET latitude = $2, longitude = $3, display_name = $4, is_deleted = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING ` + locationColumns
	return scanLocation(s.q.QueryRow(ctx, q, id, lat, lon, displayName))
}

func (s *PostgresStore) SoftDeleteLocation(ctx context.Context, id int64) error {
	q := `
		UPDATE locations
		SET is_deleted = TRUE, is_favorite = FALSE, updated_at = now()
		WHERE id = $1 AND NOT is_deleted`
	tag, err := s.q.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("deleting location %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return weather.ErrNotFound
	}
	return nil
}

const snapshotColumns = `temperature, feels_like, temp_min, temp_max, pressure, humidity,
	weather_main, weather_description, weather_icon, wind_speed, wind_deg, clouds,
	visibility, api_timestamp, captured_at`

func scanSnapshot(row pgx.Row) (weather.Snapshot, error) {
	var snap weather.Snapshot
	err := row.Scan(
		&snap.Temperature, &snap.FeelsLike, &snap.TempMin, &snap.TempMax,
		&snap.Pressure, &snap.Humidity, &snap.Main, &snap.Description, &snap.Icon,
		&snap.WindSpeed, &snap.WindDeg, &snap.Clouds, &snap.Visibility,
		&snap.APITime, &snap.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return weather.Snapshot{}, weather.ErrNotFound
		}
		return weather.Snapshot{}, fmt.Errorf("scanning snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) InsertSnapshot(ctx context.Context, locationID int64, snap weather.Snapshot) error {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	q := `
		INSERT INTO weather_snapshots (
			location_id, temperature, feels_like, temp_min, temp_max, pressure, humidity,
			weather_main, weather_description, weather_icon, wind_speed, wind_deg, clouds,
			visibility, api_timestamp, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := s.q.Exec(ctx, q,
		locationID, snap.Temperature, snap.FeelsLike, snap.TempMin, snap.TempMax,
		snap.Pressure, snap.Humidity, snap.Main, snap.Description, snap.Icon,
		snap.WindSpeed, snap.WindDeg, snap.Clouds, snap.Visibility, snap.APITime, snap.Timestamp)
	if err != nil {
		return fmt.Errorf("inserting snapshot for location %d: %w", locationID, err)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, locationID int64) (weather.Snapshot, error) {
	q := `SELECT ` + snapshotColumns + ` FROM weather_snapshots WHERE location_id = $1 ORDER BY captured_at DESC LIMIT 1`
	return scanSnapshot(s.q.QueryRow(ctx, q, locationID))
}

func (s *PostgresStore) PreviousSnapshot(ctx context.Context, locationID int64) (weather.Snapshot, error) {
	q := `SELECT ` + snapshotColumns + ` FROM weather_snapshots WHERE location_id = $1 ORDER BY captured_at DESC LIMIT 1 OFFSET 1`
	return scanSnapshot(s.q.QueryRow(ctx, q, locationID))
}

func (s *PostgresStore) SnapshotsSince(ctx context.Context, locationID int64, since time.Time) ([]weather.Snapshot, error) {
	q := `SELECT ` + snapshotColumns + ` FROM weather_snapshots WHERE location_id = $1 AND captured_at >= $2 ORDER BY captured_at DESC`
	rows, err := s.q.Query(ctx, q, locationID, since)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots for location %d: %w", locationID, err)
	}
	defer rows.Close()

	var snaps []weather.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// ReplaceForecast deletes and re-inserts all forecast rows for the location
// within one transaction, so readers never observe a partial forecast.
func (s *PostgresStore) ReplaceForecast(ctx context.Context, locationID int64, items []weather.ForecastItem) error {
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning forecast replace for location %d: %w", locationID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM forecasts WHERE location_id = $1`, locationID); err != nil {
		return fmt.Errorf("clearing forecasts for location %d: %w", locationID, err)
	}

	q := `
		INSERT INTO forecasts (
			location_id, forecast_timestamp, temperature, feels_like, temp_min, temp_max,
			pressure, humidity, weather_main, weather_description, weather_icon,
			wind_speed, wind_deg, clouds, pop
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	for _, item := range items {
		if _, err := tx.Exec(ctx, q,
			locationID, item.ForecastTime, item.Temperature, item.FeelsLike,
			item.TempMin, item.TempMax, item.Pressure, item.Humidity,
			item.Main, item.Description, item.Icon,
			item.WindSpeed, item.WindDeg, item.Clouds, item.Pop); err != nil {
			return fmt.Errorf("inserting forecast row for location %d: %w", locationID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) GetForecast(ctx context.Context, locationID int64) ([]weather.ForecastItem, error) {
	q := `
		SELECT forecast_timestamp, temperature, feels_like, temp_min, temp_max,
			pressure, humidity, weather_main, weather_description, weather_icon,
			wind_speed, wind_deg, clouds, pop
		FROM forecasts WHERE location_id = $1 ORDER BY forecast_timestamp ASC`
	rows, err := s.q.Query(ctx, q, locationID)
	if err != nil {
		return nil, fmt.Errorf("querying forecast for location %d: %w", locationID, err)
	}
	defer rows.Close()

	var items []weather.ForecastItem
	for rows.Next() {
		var item weather.ForecastItem
		if err := rows.Scan(
			&item.ForecastTime, &item.Temperature, &item.FeelsLike, &item.TempMin,
			&item.TempMax, &item.Pressure, &item.Humidity, &item.Main,
			&item.Description, &item.Icon, &item.WindSpeed, &item.WindDeg,
			&item.Clouds, &item.Pop); err != nil {
			return nil, fmt.Errorf("scanning forecast row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) AppendSyncRecord(ctx context.Context, rec weather.SyncRecord) error {
	if rec.SyncedAt.IsZero() {
		rec.SyncedAt = time.Now().UTC()
	}
	q := `
		INSERT INTO sync_history (id, location_id, sync_type, status, message, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.q.Exec(ctx, q, rec.ID, rec.LocationID, rec.SyncType, rec.Status, rec.Message, rec.SyncedAt)
	if err != nil {
		return fmt.Errorf("appending sync record for location %d: %w", rec.LocationID, err)
	}
	return nil
}

func scanSyncRecord(row pgx.Row) (weather.SyncRecord, error) {
	var rec weather.SyncRecord
	err := row.Scan(&rec.ID, &rec.LocationID, &rec.SyncType, &rec.Status, &rec.Message, &rec.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return weather.SyncRecord{}, weather.ErrNotFound
		}
		return weather.SyncRecord{}, fmt.Errorf("scanning sync record: %w", err)
	}
	return rec, nil
}

const syncColumns = `id, location_id, sync_type, status, message, synced_at`

func (s *PostgresStore) LastSuccessfulSync(ctx context.Context, locationID int64) (weather.SyncRecord, error) {
	q := `SELECT ` + syncColumns + ` FROM sync_history WHERE location_id = $1 AND status = 'success' ORDER BY synced_at DESC LIMIT 1`
	return scanSyncRecord(s.q.QueryRow(ctx, q, locationID))
}

func (s *PostgresStore) SyncRecords(ctx context.Context, locationID int64, limit int) ([]weather.SyncRecord, error) {
	q := `SELECT ` + syncColumns + ` FROM sync_history WHERE location_id = $1 ORDER BY synced_at DESC LIMIT $2`
	rows, err := s.q.Query(ctx, q, locationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync records for location %d: %w", locationID, err)
	}
	defer rows.Close()

	var records []weather.SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) CountFailedSyncsSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := s.q.QueryRow(ctx,
		`SELECT count(*) FROM sync_history WHERE status = 'failed' AND synced_at >= $1`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting failed syncs: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) LastSuccessfulSyncAny(ctx context.Context) (weather.SyncRecord, error) {
	q := `SELECT ` + syncColumns + ` FROM sync_history WHERE status = 'success' ORDER BY synced_at DESC LIMIT 1`
	return scanSyncRecord(s.q.QueryRow(ctx, q))
}

func (s *PostgresStore) GetPreference(ctx context.Context, key string) (string, error) {
	var value string
	err := s.q.QueryRow(ctx, `SELECT value FROM user_preferences WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", weather.ErrNotFound
		}
		return "", fmt.Errorf("reading preference %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) SetPreference(ctx context.Context, key, value string) error {
	q := `
		INSERT INTO user_preferences (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := s.q.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) ListPreferences(ctx context.Context) ([]weather.Preference, error) {
	rows, err := s.q.Query(ctx, `SELECT key, value FROM user_preferences ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing preferences: %w", err)
	}
	defer rows.Close()

	var prefs []weather.Preference
	for rows.Next() {
		var p weather.Preference
		if err := rows.Scan(&p.Key, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}
