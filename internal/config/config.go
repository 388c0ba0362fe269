package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	OpenWeatherAPIKey string
	GeocoderAPIKey    string

	// DatabaseURL selects the Postgres store; empty means in-memory.
	DatabaseURL   string
	MigrationsDir string

	// Redis sync-event stream; empty RedisAddr disables publishing.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string

	// SyncInterval controls how often the background loop refreshes all
	// tracked locations.
	SyncInterval time.Duration

	// HTTPTimeout bounds outbound provider calls.
	HTTPTimeout time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.MigrationsDir = getenvDefault("MIGRATIONS_DIR", "migrations")

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvInt("REDIS_DB", 0)
	cfg.RedisStream = getenvDefault("REDIS_STREAM", "weather_syncs")

	intervalStr := getenvDefault("SYNC_INTERVAL", "10m")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	cfg.SyncInterval = interval

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "30s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}
