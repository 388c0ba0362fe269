package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncsTotal tracks sync attempts by outcome.
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_syncs_total",
			Help: "Total number of weather sync attempts",
		},
		[]string{"status"},
	)

	// SyncsCached counts syncs served from stored data without a provider call.
	SyncsCached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weather_syncs_cached_total",
			Help: "Total number of syncs served from cached data",
		},
	)

	// ProviderRequests tracks outbound weather provider requests.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_provider_requests_total",
			Help: "Total number of requests to the weather provider",
		},
		[]string{"endpoint", "status"},
	)

	// SyncDuration tracks how long a full sync takes.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weather_sync_duration_seconds",
			Help:    "Duration of weather sync operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
