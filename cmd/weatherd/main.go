package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpapi "github.com/pmorozov/weather-insights/internal/api/http"
	"github.com/pmorozov/weather-insights/internal/config"
	"github.com/pmorozov/weather-insights/internal/events"
	"github.com/pmorozov/weather-insights/internal/scheduler"
	"github.com/pmorozov/weather-insights/internal/store"
	"github.com/pmorozov/weather-insights/internal/weather"
	"github.com/pmorozov/weather-insights/internal/weather/providers"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.OpenWeatherAPIKey == "" {
		log.Warn().Msg("OPENWEATHER_API_KEY not set; syncs will fail until configured")
	}

	ctx := context.Background()

	// Store: Postgres when DATABASE_URL is set, in-memory otherwise.
	var st weather.Store
	if cfg.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := store.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations applied")
		st = store.NewPostgresStore(pool)
	} else {
		log.Info().Msg("DATABASE_URL not set; using in-memory store")
		st = store.NewMemoryStore()
	}

	// Optional Redis stream for sync events.
	var publisher weather.EventPublisher
	if cfg.RedisAddr != "" {
		redisClient, err := events.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func() { _ = redisClient.Close() }()
		publisher = events.NewPublisher(redisClient, cfg.RedisStream, log)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	source := providers.NewOpenWeatherClient(httpClient, cfg.OpenWeatherAPIKey)
	geocoder := providers.NewGoogleGeocoder(cfg.GeocoderAPIKey)

	service := weather.NewService(weather.ServiceConfig{
		Store:         st,
		Source:        source,
		Publisher:     publisher,
		Geocoder:      geocoder,
		Logger:        log,
		SyncInterval:  cfg.SyncInterval,
		APIConfigured: cfg.OpenWeatherAPIKey != "",
	})

	// Background refresh loop.
	sched := scheduler.New(service, cfg.SyncInterval, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "weather-insights",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-insights",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()
	log.Info().Str("port", cfg.Port).Msg("server started")

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
