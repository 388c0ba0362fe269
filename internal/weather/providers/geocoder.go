package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// GoogleGeocoder resolves city names through the Google Geocoding API.
// Used as a fallback when the weather provider's own geocoding endpoint
// returns no results for a query.
type GoogleGeocoder struct {
	configured bool
}

// NewGoogleGeocoder wires the kelvins/geocoder package. An empty apiKey
// leaves the fallback disabled.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	if apiKey != "" {
		geocoder.ApiKey = apiKey
	}
	return &GoogleGeocoder{configured: apiKey != ""}
}

// Enabled reports whether an API key was provided.
func (g *GoogleGeocoder) Enabled() bool {
	return g.configured
}

// Geocode resolves a single best match for the query. The kelvins client is
// synchronous and has no context support; ctx is checked before the call.
func (g *GoogleGeocoder) Geocode(ctx context.Context, query, country string) ([]weather.SearchResult, error) {
	if !g.configured {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	address := geocoder.Address{
		City:    query,
		Country: country,
	}

	loc, err := geocoder.Geocoding(address)
	if err != nil {
		return nil, &weather.ProviderError{Message: fmt.Sprintf("google geocoding failed: %v", err), Err: err}
	}

	name := strings.TrimSpace(query)
	display := name
	if country != "" {
		display = fmt.Sprintf("%s, %s", name, country)
	}

	return []weather.SearchResult{{
		Name:        name,
		Country:     country,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		DisplayName: display,
	}}, nil
}
