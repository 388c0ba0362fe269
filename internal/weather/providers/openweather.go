package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pmorozov/weather-insights/internal/metrics"
	"github.com/pmorozov/weather-insights/internal/weather"
)

// OpenWeatherClient implements weather.DataSource against OpenWeatherMap.
type OpenWeatherClient struct {
	apiKey      string
	baseURL     string
	oneCallURL  string
	geoURL      string
	httpCfg     HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
	now         func() time.Time
}

func NewOpenWeatherClient(client *http.Client, apiKey string) *OpenWeatherClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &OpenWeatherClient{
		apiKey:     apiKey,
		baseURL:    "https://api.openweathermap.org/data/2.5",
		oneCallURL: "https://api.openweathermap.org/data/3.0",
		geoURL:     "https://api.openweathermap.org/geo/1.0",
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: cb,
		now:     time.Now,
	}
}

// SetBaseURLs overrides the provider endpoints, for tests.
func (c *OpenWeatherClient) SetBaseURLs(base, oneCall, geo string) {
	c.baseURL = base
	c.oneCallURL = oneCall
	c.geoURL = geo
}

// conditionPayload is the nested weather descriptor shared by all endpoints.
type conditionPayload struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// currentPayload is the /weather response schema.
type currentPayload struct {
	Dt   int64 `json:"dt"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []conditionPayload `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Deg   *int    `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All int `json:"all"`
	} `json:"clouds"`
	Visibility *int `json:"visibility"`
}

// forecastPayload is the /forecast response schema.
type forecastPayload struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			TempMin   float64 `json:"temp_min"`
			TempMax   float64 `json:"temp_max"`
			Pressure  int     `json:"pressure"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []conditionPayload `json:"weather"`
		Wind    struct {
			Speed float64 `json:"speed"`
			Deg   *int    `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All int `json:"all"`
		} `json:"clouds"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

// timemachinePayload is the /onecall/timemachine response schema. Explicit
// optional fields replace the loosely-typed property-bag access of older
// clients.
type timemachinePayload struct {
	Data    []historyPoint `json:"data"`
	Current *historyPoint  `json:"current"`
}

type historyPoint struct {
	Dt         int64              `json:"dt"`
	Temp       float64            `json:"temp"`
	FeelsLike  *float64           `json:"feels_like"`
	Pressure   int                `json:"pressure"`
	Humidity   int                `json:"humidity"`
	WindSpeed  float64            `json:"wind_speed"`
	WindDeg    *int               `json:"wind_deg"`
	Clouds     int                `json:"clouds"`
	Visibility *int               `json:"visibility"`
	Weather    []conditionPayload `json:"weather"`
}

// geoPayload is the /geo/1.0/direct response schema.
type geoPayload []struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (c *OpenWeatherClient) getJSON(ctx context.Context, endpoint, rawURL string, values url.Values, out any) error {
	if c.apiKey == "" {
		return &weather.ProviderError{Message: "openweather api key is not configured"}
	}
	values.Set("appid", c.apiKey)

	buildRequest := func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", rawURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return &weather.ProviderError{
			Message:    fmt.Sprintf("weather api request failed: %v", err),
			StatusCode: httpStatusOf(err),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.ProviderRequests.WithLabelValues(endpoint, "error").Inc()
		return &weather.ProviderError{Message: fmt.Sprintf("weather api response decode failed: %v", err), Err: err}
	}
	metrics.ProviderRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

func (c *OpenWeatherClient) FetchCurrent(ctx context.Context, lat, lon float64, units string) (weather.Snapshot, error) {
	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%f", lat))
	values.Set("lon", fmt.Sprintf("%f", lon))
	values.Set("units", units)

	var payload currentPayload
	if err := c.getJSON(ctx, "current", c.baseURL+"/weather", values, &payload); err != nil {
		return weather.Snapshot{}, err
	}

	var cond conditionPayload
	if len(payload.Weather) > 0 {
		cond = payload.Weather[0]
	}

	return weather.Snapshot{
		Temperature: payload.Main.Temp,
		FeelsLike:   payload.Main.FeelsLike,
		TempMin:     payload.Main.TempMin,
		TempMax:     payload.Main.TempMax,
		Pressure:    payload.Main.Pressure,
		Humidity:    payload.Main.Humidity,
		Main:        cond.Main,
		Description: cond.Description,
		Icon:        cond.Icon,
		WindSpeed:   payload.Wind.Speed,
		WindDeg:     payload.Wind.Deg,
		Clouds:      payload.Clouds.All,
		Visibility:  payload.Visibility,
		APITime:     payload.Dt,
		Timestamp:   c.now().UTC(),
	}, nil
}

func (c *OpenWeatherClient) FetchForecast(ctx context.Context, lat, lon float64, units string) ([]weather.ForecastItem, error) {
	values := url.Values{}
	values.Set("lat", fmt.Sprintf("%f", lat))
	values.Set("lon", fmt.Sprintf("%f", lon))
	values.Set("units", units)

	var payload forecastPayload
	if err := c.getJSON(ctx, "forecast", c.baseURL+"/forecast", values, &payload); err != nil {
		return nil, err
	}

	items := make([]weather.ForecastItem, 0, len(payload.List))
	for _, entry := range payload.List {
		var cond conditionPayload
		if len(entry.Weather) > 0 {
			cond = entry.Weather[0]
		}
		items = append(items, weather.ForecastItem{
			ForecastTime: entry.Dt,
			Temperature:  entry.Main.Temp,
			FeelsLike:    entry.Main.FeelsLike,
			TempMin:      entry.Main.TempMin,
			TempMax:      entry.Main.TempMax,
			Pressure:     entry.Main.Pressure,
			Humidity:     entry.Main.Humidity,
			Main:         cond.Main,
			Description:  cond.Description,
			Icon:         cond.Icon,
			WindSpeed:    entry.Wind.Speed,
			WindDeg:      entry.Wind.Deg,
			Clouds:       entry.Clouds.All,
			Pop:          entry.Pop,
		})
	}
	return items, nil
}

// FetchHistory pulls one point-in-time snapshot per previous day, targeting
// 12:00 UTC and keeping the record nearest that mark.
func (c *OpenWeatherClient) FetchHistory(ctx context.Context, lat, lon float64, days int, units string) ([]weather.Snapshot, error) {
	nowUTC := c.now().UTC()
	rows := make([]weather.Snapshot, 0, days)

	for offset := 1; offset <= days; offset++ {
		day := nowUTC.AddDate(0, 0, -offset)
		target := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC).Unix()

		values := url.Values{}
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))
		values.Set("dt", fmt.Sprintf("%d", target))
		values.Set("units", units)

		var payload timemachinePayload
		if err := c.getJSON(ctx, "history", c.oneCallURL+"/onecall/timemachine", values, &payload); err != nil {
			return nil, err
		}

		point := nearestPoint(payload, target)
		if point == nil {
			continue
		}

		rows = append(rows, point.toSnapshot(target))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].APITime > rows[j].APITime })
	return rows, nil
}

// nearestPoint picks the record closest to the target unix time from the
// response's data list, falling back to the current object.
func nearestPoint(payload timemachinePayload, target int64) *historyPoint {
	if len(payload.Data) > 0 {
		best := &payload.Data[0]
		for i := 1; i < len(payload.Data); i++ {
			if absInt64(payload.Data[i].Dt-target) < absInt64(best.Dt-target) {
				best = &payload.Data[i]
			}
		}
		return best
	}
	return payload.Current
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func (p *historyPoint) toSnapshot(fallbackDt int64) weather.Snapshot {
	var cond conditionPayload
	if len(p.Weather) > 0 {
		cond = p.Weather[0]
	}
	if cond.Main == "" {
		cond.Main = "Unknown"
	}
	if cond.Description == "" {
		cond.Description = "unknown"
	}
	if cond.Icon == "" {
		cond.Icon = "01d"
	}

	dt := p.Dt
	if dt == 0 {
		dt = fallbackDt
	}

	feelsLike := p.Temp
	if p.FeelsLike != nil {
		feelsLike = *p.FeelsLike
	}

	return weather.Snapshot{
		Temperature: p.Temp,
		FeelsLike:   feelsLike,
		TempMin:     p.Temp,
		TempMax:     p.Temp,
		Pressure:    p.Pressure,
		Humidity:    p.Humidity,
		Main:        cond.Main,
		Description: cond.Description,
		Icon:        cond.Icon,
		WindSpeed:   p.WindSpeed,
		WindDeg:     p.WindDeg,
		Clouds:      p.Clouds,
		Visibility:  p.Visibility,
		APITime:     dt,
		Timestamp:   time.Unix(dt, 0).UTC(),
	}
}

func (c *OpenWeatherClient) Geocode(ctx context.Context, query, country string) ([]weather.SearchResult, error) {
	q := query
	if country != "" {
		q = fmt.Sprintf("%s,%s", query, country)
	}

	values := url.Values{}
	values.Set("q", q)
	values.Set("limit", "5")

	var payload geoPayload
	if err := c.getJSON(ctx, "geocode", c.geoURL+"/direct", values, &payload); err != nil {
		return nil, err
	}

	results := make([]weather.SearchResult, 0, len(payload))
	for _, hit := range payload {
		display := fmt.Sprintf("%s, %s", hit.Name, hit.Country)
		if hit.State != "" {
			display = fmt.Sprintf("%s, %s, %s", hit.Name, hit.State, hit.Country)
		}
		results = append(results, weather.SearchResult{
			Name:        hit.Name,
			Country:     hit.Country,
			State:       hit.State,
			Latitude:    hit.Lat,
			Longitude:   hit.Lon,
			DisplayName: display,
		})
	}
	return results, nil
}
