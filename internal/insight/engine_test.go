package insight

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmorozov/weather-insights/internal/weather"
)

func snapshot(temp, wind float64, main string) *weather.Snapshot {
	return &weather.Snapshot{
		Temperature: temp,
		FeelsLike:   temp - 1,
		Main:        main,
		Description: "test conditions",
		WindSpeed:   wind,
	}
}

func forecastItem(ts int64, pop, wind float64, main string) weather.ForecastItem {
	return weather.ForecastItem{
		ForecastTime: ts,
		Temperature:  16.0,
		Main:         main,
		Description:  main + " expected",
		WindSpeed:    wind,
		Pop:          pop,
	}
}

func calmForecast(n int) []weather.ForecastItem {
	items := make([]weather.ForecastItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, forecastItem(int64(1710000000+i*10800), 0.1, 3.0, "Clouds"))
	}
	return items
}

func TestBuild_NilWhenNoData(t *testing.T) {
	assert.Nil(t, Build(nil, nil, nil))
}

func TestBuild_ForecastOnly(t *testing.T) {
	got := Build(nil, nil, calmForecast(8))
	require.NotNil(t, got)
	assert.Equal(t, "Sync weather to generate a personalized briefing.", got.Briefing)
	assert.Nil(t, got.ChangeSummary)
}

func TestBuild_EmptyForecastSerializesEmptyLists(t *testing.T) {
	got := Build(nil, snapshot(15, 3, "Clouds"), nil)
	require.NotNil(t, got)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"confidence":[]`)
	assert.Contains(t, string(raw), `"timeline":[]`)
	assert.Contains(t, string(raw), `"alerts":[]`)
}

func TestConfidence_SamplesOnePerDay(t *testing.T) {
	got := Build(nil, snapshot(15, 3, "Clouds"), calmForecast(40))
	require.NotNil(t, got)
	assert.Len(t, got.Confidence, 5)

	// Short forecasts sample fewer days.
	got = Build(nil, snapshot(15, 3, "Clouds"), calmForecast(9))
	require.NotNil(t, got)
	assert.Len(t, got.Confidence, 2)
}

func TestConfidence_ScoreBounds(t *testing.T) {
	worst := []weather.ForecastItem{forecastItem(1710000000, 1.0, 30, "Thunderstorm")}
	got := Build(nil, nil, worst)
	require.NotEmpty(t, got.Confidence)
	// 82-18-14-18 = 32, clamped to the floor.
	assert.Equal(t, 35, got.Confidence[0].Score)
	assert.Equal(t, "Low", got.Confidence[0].Label)

	best := []weather.ForecastItem{forecastItem(1710000000, 0.0, 1, "Clear")}
	got = Build(nil, nil, best)
	assert.Equal(t, 82, got.Confidence[0].Score)
	assert.Equal(t, "High", got.Confidence[0].Label)
	assert.Equal(t, "stable signals", got.Confidence[0].Reason)
}

func TestConfidence_LabelThresholdsExact(t *testing.T) {
	// pop 0.3 subtracts 9: 82-9 = 73 -> Medium.
	got := Build(nil, nil, []weather.ForecastItem{forecastItem(0, 0.3, 1, "Clouds")})
	assert.Equal(t, 73, got.Confidence[0].Score)
	assert.Equal(t, "Medium", got.Confidence[0].Label)

	// wind 8 subtracts 7: 82-7 = 75 -> still Medium, one below the High cut.
	got = Build(nil, nil, []weather.ForecastItem{forecastItem(0, 0.0, 8, "Clouds")})
	assert.Equal(t, 75, got.Confidence[0].Score)
	assert.Equal(t, "Medium", got.Confidence[0].Label)

	// pop 0.1: 82-0 = 82; wind 7.9 no penalty -> High at 76+.
	got = Build(nil, nil, []weather.ForecastItem{forecastItem(0, 0.1, 7.9, "Clouds")})
	assert.Equal(t, 82, got.Confidence[0].Score)
	assert.Equal(t, "High", got.Confidence[0].Label)
}

func TestConfidence_ReasonPrecedence(t *testing.T) {
	// Severe condition wins over wind, which wins over rain.
	item := forecastItem(0, 0.9, 13, "Thunderstorm")
	got := Build(nil, nil, []weather.ForecastItem{item})
	assert.Equal(t, "convective conditions expected", got.Confidence[0].Reason)

	item = forecastItem(0, 0.9, 13, "Rain")
	got = Build(nil, nil, []weather.ForecastItem{item})
	assert.Equal(t, "wind variability is high", got.Confidence[0].Reason)

	item = forecastItem(0, 0.9, 5, "Rain")
	got = Build(nil, nil, []weather.ForecastItem{item})
	assert.Equal(t, "rain risk is high", got.Confidence[0].Reason)
}

func TestImpactScores_ClampedUnderExtremes(t *testing.T) {
	extreme := make([]weather.ForecastItem, 8)
	for i := range extreme {
		extreme[i] = forecastItem(int64(i), 1.0, 100, "Thunderstorm")
	}

	got := Build(nil, snapshot(-100, 100, "Thunderstorm"), extreme)
	require.NotNil(t, got)
	for _, score := range []int{
		got.ImpactScores.Commute,
		got.ImpactScores.Outdoor,
		got.ImpactScores.Laundry,
		got.ImpactScores.Running,
	} {
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}

	got = Build(nil, snapshot(100, 0, "Clear"), nil)
	require.NotNil(t, got)
	// No forecast: all pop/wind terms vanish, only the heat adjustment bites.
	assert.Equal(t, 100, got.ImpactScores.Commute)
	assert.Equal(t, 88, got.ImpactScores.Outdoor)
	assert.Equal(t, 100, got.ImpactScores.Laundry)
	assert.Equal(t, 82, got.ImpactScores.Running)
}

func TestImpactScores_AvgTempPrecedence(t *testing.T) {
	// Current snapshot temperature wins over the forecast average.
	cold := make([]weather.ForecastItem, 8)
	for i := range cold {
		cold[i] = forecastItem(int64(i), 0, 0, "Clear")
		cold[i].Temperature = -20
	}

	got := Build(nil, snapshot(20, 0, "Clear"), cold)
	assert.Equal(t, 100, got.ImpactScores.Running) // no cold penalty

	got = Build(nil, nil, cold)
	assert.Equal(t, 78, got.ImpactScores.Running) // forecast average applies
}

func TestTimeline_BoundedAndSorted(t *testing.T) {
	// Every item fires all three event types; 12 scanned, 36 candidates.
	items := make([]weather.ForecastItem, 12)
	for i := range items {
		// Descending timestamps to exercise the sort.
		items[i] = forecastItem(int64(1710000000-(i*10800)), 0.9, 17, "Thunderstorm")
	}

	got := Build(nil, nil, items)
	require.NotNil(t, got)
	assert.Len(t, got.Timeline, 6)
	for i := 1; i < len(got.Timeline); i++ {
		assert.LessOrEqual(t, got.Timeline[i-1].Timestamp, got.Timeline[i].Timestamp)
	}
}

func TestTimeline_EventDetails(t *testing.T) {
	items := []weather.ForecastItem{
		forecastItem(100, 0.65, 3, "Rain"),
		forecastItem(200, 0.85, 3, "Rain"),
		forecastItem(300, 0.0, 12.5, "Clouds"),
		forecastItem(400, 0.0, 16.0, "Clouds"),
	}

	got := Build(nil, nil, items)
	require.Len(t, got.Timeline, 4)

	assert.Equal(t, "Rain window", got.Timeline[0].Title)
	assert.Equal(t, "medium", got.Timeline[0].Severity)
	assert.Equal(t, "65% precip chance", got.Timeline[0].Detail)

	assert.Equal(t, "high", got.Timeline[1].Severity)

	assert.Equal(t, "Wind surge", got.Timeline[2].Title)
	assert.Equal(t, "medium", got.Timeline[2].Severity)
	assert.Equal(t, "12.5 m/s gust potential", got.Timeline[2].Detail)

	assert.Equal(t, "high", got.Timeline[3].Severity)
}

func TestTimeline_SevereConvection(t *testing.T) {
	item := forecastItem(100, 0.0, 3, "Squall")
	item.Description = "violent squall line"

	got := Build(nil, nil, []weather.ForecastItem{item})
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, "Severe convection", got.Timeline[0].Title)
	assert.Equal(t, "high", got.Timeline[0].Severity)
	assert.Equal(t, "violent squall line", got.Timeline[0].Detail)
}

func TestAlerts_OrderAndCap(t *testing.T) {
	visibility := 2000
	current := snapshot(10, 15, "Clouds")
	current.Visibility = &visibility

	items := make([]weather.ForecastItem, 12)
	for i := range items {
		items[i] = forecastItem(int64(i), 0.9, 3, "Thunderstorm")
	}

	got := Build(nil, current, items)
	require.NotNil(t, got)
	require.Len(t, got.Alerts, 4)
	assert.Equal(t, "Reduced visibility now. Drive with caution.", got.Alerts[0])
	assert.Equal(t, "Strong winds in effect. Secure loose outdoor items.", got.Alerts[1])
	assert.Equal(t, "Heavy rain risk in the next 24 hours.", got.Alerts[2])
	assert.Equal(t, "Potential severe storm cells detected in forecast window.", got.Alerts[3])
}

func TestAlerts_SevereOnlyBeyond24h(t *testing.T) {
	// Severe cell at index 10 is inside the 12-item window but outside the
	// 8-item rain window.
	items := calmForecast(12)
	items[10].Main = "Tornado"

	got := Build(nil, nil, items)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, "Potential severe storm cells detected in forecast window.", got.Alerts[0])
}

func TestChangeSummary_NoPreviousYieldsZeroDeltas(t *testing.T) {
	got := Build(nil, snapshot(15, 5, "Clouds"), nil)
	require.NotNil(t, got)
	require.NotNil(t, got.ChangeSummary)
	assert.Equal(t, 0.0, got.ChangeSummary.TemperatureDelta)
	assert.Equal(t, 0.0, got.ChangeSummary.WindDelta)
	assert.Equal(t, 0.0, got.ChangeSummary.RainDelta)
	assert.Equal(t, "No major change since last sync.", got.ChangeSummary.Headline)
}

func TestChangeSummary_Deltas(t *testing.T) {
	previous := snapshot(5, 2, "Rain")
	current := snapshot(12.5, 8, "Clear")
	forecast := []weather.ForecastItem{forecastItem(0, 0.9, 3, "Rain")}

	got := Build(previous, current, forecast)
	require.NotNil(t, got.ChangeSummary)
	assert.Equal(t, 7.5, got.ChangeSummary.TemperatureDelta)
	assert.Equal(t, 6.0, got.ChangeSummary.WindDelta)
	// Previous rainy baseline 0.4, next rain 0.9 -> +50%.
	assert.Equal(t, 50.0, got.ChangeSummary.RainDelta)
	assert.Equal(t, "Temp up 7.5 deg, rain risk up 50%, wind up 6.0 m/s", got.ChangeSummary.Headline)
}

func TestChangeSummary_DownDirections(t *testing.T) {
	previous := snapshot(20, 10, "Clear")
	current := snapshot(17, 4, "Clear")

	got := Build(previous, current, nil)
	require.NotNil(t, got.ChangeSummary)
	assert.Equal(t, "Temp down 3.0 deg, wind down 6.0 m/s", got.ChangeSummary.Headline)
}

func TestChangeSummary_BelowThresholdsIgnored(t *testing.T) {
	previous := snapshot(15.0, 5.0, "Clear")
	current := snapshot(15.5, 5.5, "Clear")
	forecast := []weather.ForecastItem{forecastItem(0, 0.05, 3, "Clouds")}

	got := Build(previous, current, forecast)
	require.NotNil(t, got.ChangeSummary)
	assert.Equal(t, "No major change since last sync.", got.ChangeSummary.Headline)
}

func TestBriefing_Template(t *testing.T) {
	current := snapshot(15.0, 3, "Clouds")
	current.Description = "broken clouds"

	// A single item keeps the pop average free of float accumulation error:
	// pop 0.2 and wind 17.3 put the outdoor score at exactly 70.
	forecast := []weather.ForecastItem{forecastItem(0, 0.2, 17.3, "Clouds")}

	got := Build(nil, current, forecast)
	require.NotNil(t, got)
	assert.Equal(t, 70, got.ImpactScores.Outdoor)
	assert.Equal(t,
		"Now 15.0 deg with broken clouds. Peak rain chance next 24h is 20%. Outdoor score 70/100.",
		got.Briefing)
}

func TestBriefing_FallsBackToMainAndAppendsAlert(t *testing.T) {
	current := snapshot(8.0, 15, "Mist")
	current.Description = ""

	got := Build(nil, current, nil)
	require.NotNil(t, got)
	require.NotEmpty(t, got.Alerts)
	assert.Contains(t, got.Briefing, "with Mist.")
	assert.Contains(t, got.Briefing, "Priority alert: Strong winds in effect. Secure loose outdoor items.")
}
