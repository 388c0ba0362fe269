package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pmorozov/weather-insights/internal/insight"
	"github.com/pmorozov/weather-insights/internal/weather"
)

var validate = validator.New()

// WeatherData is the combined response for sync and weather reads.
type WeatherData struct {
	Location   weather.Location       `json:"location"`
	Current    *weather.Snapshot      `json:"current,omitempty"`
	Forecast   []weather.ForecastItem `json:"forecast"`
	LastSynced *time.Time             `json:"last_synced,omitempty"`
	Insights   *insight.Insights      `json:"insights,omitempty"`
	SyncNote   *string                `json:"sync_note,omitempty"`
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Post("/locations", func(c *fiber.Ctx) error {
		var req createLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := service.AddLocation(c.Context(), req.Name, req.Country)
		if err != nil {
			return mapServiceError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(loc)
	})

	v1.Get("/locations", func(c *fiber.Ctx) error {
		locs, err := service.ListLocations(c.Context())
		if err != nil {
			return mapServiceError(err)
		}
		if locs == nil {
			locs = []weather.Location{}
		}
		return c.JSON(locs)
	})

	v1.Get("/locations/overview", func(c *fiber.Ctx) error {
		rows, err := service.Overview(c.Context())
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(rows)
	})

	v1.Get("/locations/search", func(c *fiber.Ctx) error {
		req := searchRequest{
			Query:   c.Query("q"),
			Country: c.Query("country"),
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		results, err := service.SearchLocations(c.Context(), req.Query, req.Country)
		if err != nil {
			return mapServiceError(err)
		}
		if results == nil {
			results = []weather.SearchResult{}
		}
		return c.JSON(results)
	})

	v1.Get("/locations/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		loc, err := service.GetLocation(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(loc)
	})

	v1.Patch("/locations/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var req updateLocationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := service.UpdateLocation(c.Context(), id, req.DisplayName, req.Favorite)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(loc)
	})

	v1.Delete("/locations/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		if err := service.DeleteLocation(c.Context(), id); err != nil {
			return mapServiceError(err)
		}
		return c.JSON(fiber.Map{"status": "deleted"})
	})

	v1.Post("/locations/:id/sync", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}
		force := c.QueryBool("force", true)

		current, forecast, note, err := service.Sync(c.Context(), id, force)
		if err != nil {
			return mapServiceError(err)
		}

		loc, err := service.GetLocation(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		lastSynced, err := service.LastSyncTime(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}

		previous, err := service.PreviousSnapshot(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}

		data := WeatherData{
			Location:   loc,
			Current:    &current,
			Forecast:   forecast,
			LastSynced: lastSynced,
			Insights:   insight.Build(previous, &current, forecast),
		}
		if note != "" {
			data.SyncNote = &note
		}
		return c.JSON(data)
	})

	v1.Get("/locations/:id/weather", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		loc, err := service.GetLocation(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}

		current, err := service.LatestSnapshot(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		forecast, err := service.StoredForecast(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		lastSynced, err := service.LastSyncTime(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		previous, err := service.PreviousSnapshot(c.Context(), id)
		if err != nil {
			return mapServiceError(err)
		}

		data := WeatherData{
			Location:   loc,
			Current:    current,
			Forecast:   forecast,
			LastSynced: lastSynced,
			Insights:   insight.Build(previous, current, forecast),
		}
		if note := service.LastSyncNote(c.Context(), id); note != "" {
			data.SyncNote = &note
		}
		return c.JSON(data)
	})

	v1.Get("/locations/:id/history", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		req := historyRequest{
			Days:   c.QueryInt("days", 5),
			Source: c.Query("source", "auto"),
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		preferAPI := req.Source != "local"
		rows, usedSource, err := service.History(c.Context(), id, req.Days, preferAPI)
		if err != nil {
			return mapServiceError(err)
		}
		if rows == nil {
			rows = []weather.Snapshot{}
		}

		c.Set("X-History-Source", usedSource)
		return c.JSON(rows)
	})

	v1.Get("/locations/:id/export", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		req := exportRequest{Days: c.QueryInt("history_days", 30)}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		payload, err := service.Export(c.Context(), id, req.Days)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(exportResponse{
			ExportedAt:    time.Now().UTC(),
			HistoryDays:   req.Days,
			ExportPayload: payload,
		})
	})

	v1.Get("/preferences", func(c *fiber.Ctx) error {
		prefs, err := service.ListPreferences(c.Context())
		if err != nil {
			return mapServiceError(err)
		}
		if prefs == nil {
			prefs = []weather.Preference{}
		}
		return c.JSON(prefs)
	})

	v1.Patch("/preferences/:key", func(c *fiber.Ctx) error {
		key := c.Params("key")

		var req updatePreferenceRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := service.UpdatePreference(c.Context(), key, req.Value); err != nil {
			return mapServiceError(err)
		}
		return c.JSON(fiber.Map{"status": "updated", "key": key, "value": req.Value})
	})

	v1.Get("/system/status", func(c *fiber.Ctx) error {
		status, err := service.Status(c.Context())
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(status)
	})
}

// createLocationRequest is the body for tracking a new location.
type createLocationRequest struct {
	Name    string `json:"name" validate:"required,min=2"`
	Country string `json:"country"`
}

// updateLocationRequest patches display name and/or favorite flag.
type updateLocationRequest struct {
	DisplayName *string `json:"display_name"`
	Favorite    *bool   `json:"is_favorite"`
}

type searchRequest struct {
	Query   string `validate:"required,min=2"`
	Country string
}

type historyRequest struct {
	Days   int    `validate:"min=1,max=30"`
	Source string `validate:"oneof=auto api local"`
}

type exportRequest struct {
	Days int `validate:"min=1,max=365"`
}

// exportResponse spreads the export payload at the top level next to the
// export metadata.
type exportResponse struct {
	ExportedAt  time.Time `json:"exported_at"`
	HistoryDays int       `json:"history_days"`
	weather.ExportPayload
}

type updatePreferenceRequest struct {
	Value string `json:"value" validate:"required"`
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid location id")
	}
	return id, nil
}

// mapServiceError translates service errors into HTTP statuses.
func mapServiceError(err error) error {
	var provErr *weather.ProviderError
	switch {
	case errors.Is(err, weather.ErrLocationNotFound):
		return fiber.NewError(fiber.StatusNotFound, "location not found")
	case errors.As(err, &provErr):
		return fiber.NewError(fiber.StatusBadGateway, provErr.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
