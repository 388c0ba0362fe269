package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, "weather_syncs", cfg.RedisStream)
	assert.Equal(t, 10*time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", "key123")
	t.Setenv("DATABASE_URL", "postgres://localhost/weather")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SYNC_INTERVAL", "5m")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "key123", cfg.OpenWeatherAPIKey)
	assert.Equal(t, "postgres://localhost/weather", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "9000", cfg.Port)
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetenvInt_Unparsable(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")

	assert.Equal(t, 0, getenvInt("REDIS_DB", 0))
}
