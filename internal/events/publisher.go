// Package events fans successful sync results out to a Redis stream so
// downstream consumers (dashboards, alerting) can react without polling.
package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// Publisher writes sync events to a Redis stream. A nil Publisher is valid
// and publishes nothing.
type Publisher struct {
	client *redis.Client
	stream string
	log    zerolog.Logger
}

// Connect creates a Redis client and verifies connectivity with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// NewPublisher wraps an existing Redis client.
func NewPublisher(client *redis.Client, stream string, log zerolog.Logger) *Publisher {
	return &Publisher{client: client, stream: stream, log: log}
}

// PublishSync appends a compact sync event to the stream. Failures are
// logged, never propagated: publishing must not fail a sync.
func (p *Publisher) PublishSync(ctx context.Context, locationID int64, current weather.Snapshot, note string) {
	if p == nil || p.client == nil {
		return
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"location_id": strconv.FormatInt(locationID, 10),
			"temperature": strconv.FormatFloat(current.Temperature, 'f', 1, 64),
			"condition":   current.Main,
			"wind_speed":  strconv.FormatFloat(current.WindSpeed, 'f', 1, 64),
			"note":        note,
			"synced_at":   time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		p.log.Warn().Err(err).Int64("location_id", locationID).Msg("failed to publish sync event")
	}
}
