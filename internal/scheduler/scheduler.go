package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// maxConcurrentSyncs bounds the fan-out of one refresh cycle.
const maxConcurrentSyncs = 4

// Scheduler periodically force-syncs weather data for all tracked locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *weather.Service
	interval  time.Duration
	log       zerolog.Logger
}

// New creates a new Scheduler.
func New(service *weather.Service, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		interval:  interval,
		log:       log,
	}
}

// Start schedules the periodic refresh job and starts the underlying
// scheduler.
func (s *Scheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 600
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// runOnce refreshes every active location. One location's failure is logged
// and must not abort the others.
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	locations, err := s.service.ListLocations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: listing locations failed")
		return
	}
	if len(locations) == 0 {
		return
	}

	s.log.Info().Int("locations", len(locations)).Msg("scheduler: running weather refresh")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSyncs)
	for _, loc := range locations {
		loc := loc
		g.Go(func() error {
			if _, _, _, err := s.service.Sync(gctx, loc.ID, true); err != nil {
				s.log.Warn().Err(err).Int64("location_id", loc.ID).Str("name", loc.Name).
					Msg("scheduler: sync failed")
			}
			// Failures are isolated per location; never returned.
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Msg("scheduler: weather refresh completed")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
