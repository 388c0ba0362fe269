package events_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmorozov/weather-insights/internal/events"
	"github.com/pmorozov/weather-insights/internal/weather"
)

func TestConnect(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := events.Connect(context.Background(), srv.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := events.Connect(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestPublishSync(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	defer client.Close()

	pub := events.NewPublisher(client, "weather:syncs", zerolog.Nop())
	pub.PublishSync(context.Background(), 7, weather.Snapshot{
		Temperature: 18.2,
		Main:        "Thunderstorm",
		WindSpeed:   9.5,
	}, weather.NoteConflict)

	entries, err := client.XRange(context.Background(), "weather:syncs", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, "7", values["location_id"])
	assert.Equal(t, "18.2", values["temperature"])
	assert.Equal(t, "Thunderstorm", values["condition"])
	assert.Equal(t, "9.5", values["wind_speed"])
	assert.Equal(t, weather.NoteConflict, values["note"])
	assert.NotEmpty(t, values["synced_at"])
}

func TestPublishSync_NilPublisher(t *testing.T) {
	var pub *events.Publisher
	// Must not panic.
	pub.PublishSync(context.Background(), 1, weather.Snapshot{}, "")
}
