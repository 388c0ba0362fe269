// Package insight derives human-readable weather insights from stored data.
// Everything here is a pure transformation over immutable inputs; no I/O.
package insight

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pmorozov/weather-insights/internal/weather"
)

// Confidence grades one daily forecast sample.
type Confidence struct {
	Label  string `json:"label"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// ImpactScores are 0-100 activity suitability scores for the next ~24 hours.
type ImpactScores struct {
	Commute int `json:"commute"`
	Outdoor int `json:"outdoor"`
	Laundry int `json:"laundry"`
	Running int `json:"running"`
}

// TimelineEvent marks a notable upcoming weather window.
type TimelineEvent struct {
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Detail    string `json:"detail"`
}

// ChangeSummary compares the current snapshot against the previous one.
type ChangeSummary struct {
	Headline         string  `json:"headline"`
	TemperatureDelta float64 `json:"temperature_delta"`
	RainDelta        float64 `json:"rain_delta"`
	WindDelta        float64 `json:"wind_delta"`
}

// Insights is the full derived view returned to the caller. Never persisted;
// recomputed on every request.
type Insights struct {
	Briefing      string          `json:"briefing"`
	Confidence    []Confidence    `json:"confidence"`
	ImpactScores  ImpactScores    `json:"impact_scores"`
	Timeline      []TimelineEvent `json:"timeline"`
	Alerts        []string        `json:"alerts"`
	ChangeSummary *ChangeSummary  `json:"change_summary,omitempty"`
}

const emptyBriefing = "Sync weather to generate a personalized briefing."

// dailyStride samples one forecast item per day for 3-hour-interval data.
const (
	dailyStride    = 8
	dailySampleCap = 40
	impactWindow   = 8  // ~24h
	timelineWindow = 12 // ~36h
	maxTimeline    = 6
	maxAlerts      = 4
)

// Build derives insights from the previous snapshot, the current snapshot,
// and the forecast sequence. Returns nil when there is nothing to derive
// (no current snapshot and an empty forecast).
func Build(previous, current *weather.Snapshot, forecast []weather.ForecastItem) *Insights {
	if current == nil && len(forecast) == 0 {
		return nil
	}

	// Lists serialize as [] rather than null when there is nothing to report.
	confidence := make([]Confidence, 0, dailySampleCap/dailyStride)
	for i := 0; i < len(forecast) && i < dailySampleCap; i += dailyStride {
		confidence = append(confidence, confidenceFor(forecast[i]))
	}

	impacts := impactScores(current, forecast)
	timeline := timelineEvents(forecast)
	alerts := buildAlerts(current, forecast)

	return &Insights{
		Briefing:      briefing(current, forecast, alerts, impacts),
		Confidence:    confidence,
		ImpactScores:  impacts,
		Timeline:      timeline,
		Alerts:        alerts,
		ChangeSummary: changeSummary(previous, current, forecast),
	}
}

// severeCondition reports whether the condition category implies convective
// or otherwise violent weather.
func severeCondition(main string) bool {
	switch strings.ToLower(main) {
	case "thunderstorm", "squall", "tornado":
		return true
	}
	return false
}

// rainyCondition reports whether the condition category implies active
// precipitation, used for the previous-rain baseline.
func rainyCondition(main string) bool {
	switch strings.ToLower(main) {
	case "rain", "drizzle", "thunderstorm":
		return true
	}
	return false
}

func confidenceFor(item weather.ForecastItem) Confidence {
	score := 82
	if item.Pop >= 0.6 {
		score -= 18
	} else if item.Pop >= 0.3 {
		score -= 9
	}

	if item.WindSpeed >= 12 {
		score -= 14
	} else if item.WindSpeed >= 8 {
		score -= 7
	}

	if severeCondition(item.Main) {
		score -= 18
	}

	if score < 35 {
		score = 35
	}
	if score > 95 {
		score = 95
	}

	label := "Low"
	switch {
	case score >= 76:
		label = "High"
	case score >= 58:
		label = "Medium"
	}

	// Later checks win: severe beats wind beats rain.
	reason := "stable signals"
	if item.Pop >= 0.6 {
		reason = "rain risk is high"
	}
	if item.WindSpeed >= 12 {
		reason = "wind variability is high"
	}
	if severeCondition(item.Main) {
		reason = "convective conditions expected"
	}

	return Confidence{Label: label, Score: score, Reason: reason}
}

func impactScores(current *weather.Snapshot, forecast []weather.ForecastItem) ImpactScores {
	window := forecast
	if len(window) > impactWindow {
		window = window[:impactWindow]
	}

	var avgPop, avgWind float64
	if len(window) > 0 {
		var sumPop, sumWind float64
		for _, item := range window {
			sumPop += item.Pop
			sumWind += item.WindSpeed
		}
		avgPop = sumPop / float64(len(window))
		avgWind = sumWind / float64(len(window))
	}

	// Fallback order is intentional: the forecast average only applies when
	// there is no current snapshot at all.
	var avgTemp float64
	switch {
	case current != nil:
		avgTemp = current.Temperature
	case len(window) > 0:
		var sumTemp float64
		for _, item := range window {
			sumTemp += item.Temperature
		}
		avgTemp = sumTemp / float64(len(window))
	default:
		avgTemp = 20.0
	}

	commute := 100 - int(avgPop*45) - int(math.Min(avgWind, 20)*1.2)
	outdoor := 100 - int(avgPop*55) - int(math.Min(avgWind, 18)*1.1)
	laundry := 100 - int(avgPop*70)
	if avgTemp < 6 {
		laundry -= 20
	}
	running := 100 - int(avgPop*40) - int(math.Min(avgWind, 15)*1.4)

	if avgTemp > 32 {
		running -= 18
		outdoor -= 12
	} else if avgTemp < 0 {
		running -= 22
		commute -= 10
	}

	return ImpactScores{
		Commute: clampScore(commute),
		Outdoor: clampScore(outdoor),
		Laundry: clampScore(laundry),
		Running: clampScore(running),
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func timelineEvents(forecast []weather.ForecastItem) []TimelineEvent {
	scan := forecast
	if len(scan) > timelineWindow {
		scan = scan[:timelineWindow]
	}

	events := []TimelineEvent{}
	for _, item := range scan {
		if item.Pop >= 0.6 {
			severity := "medium"
			if item.Pop >= 0.8 {
				severity = "high"
			}
			events = append(events, TimelineEvent{
				Timestamp: item.ForecastTime,
				Title:     "Rain window",
				Severity:  severity,
				Detail:    fmt.Sprintf("%d%% precip chance", int(math.Round(item.Pop*100))),
			})
		}
		if item.WindSpeed >= 12 {
			severity := "medium"
			if item.WindSpeed >= 16 {
				severity = "high"
			}
			events = append(events, TimelineEvent{
				Timestamp: item.ForecastTime,
				Title:     "Wind surge",
				Severity:  severity,
				Detail:    fmt.Sprintf("%.1f m/s gust potential", item.WindSpeed),
			})
		}
		if severeCondition(item.Main) {
			events = append(events, TimelineEvent{
				Timestamp: item.ForecastTime,
				Title:     "Severe convection",
				Severity:  "high",
				Detail:    item.Description,
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})
	if len(events) > maxTimeline {
		events = events[:maxTimeline]
	}
	return events
}

func buildAlerts(current *weather.Snapshot, forecast []weather.ForecastItem) []string {
	alerts := []string{}
	if current != nil && current.Visibility != nil && *current.Visibility < 2500 {
		alerts = append(alerts, "Reduced visibility now. Drive with caution.")
	}
	if current != nil && current.WindSpeed >= 14 {
		alerts = append(alerts, "Strong winds in effect. Secure loose outdoor items.")
	}

	for i := 0; i < len(forecast) && i < impactWindow; i++ {
		if forecast[i].Pop >= 0.7 {
			alerts = append(alerts, "Heavy rain risk in the next 24 hours.")
			break
		}
	}

	for i := 0; i < len(forecast) && i < timelineWindow; i++ {
		if severeCondition(forecast[i].Main) {
			alerts = append(alerts, "Potential severe storm cells detected in forecast window.")
			break
		}
	}

	if len(alerts) > maxAlerts {
		alerts = alerts[:maxAlerts]
	}
	return alerts
}

// peakPop is the maximum precipitation probability over the next-24h window.
func peakPop(forecast []weather.ForecastItem) float64 {
	var peak float64
	for i := 0; i < len(forecast) && i < impactWindow; i++ {
		if forecast[i].Pop > peak {
			peak = forecast[i].Pop
		}
	}
	return peak
}

func changeSummary(previous, current *weather.Snapshot, forecast []weather.ForecastItem) *ChangeSummary {
	if current == nil {
		return nil
	}

	// Without a previous snapshot the baselines collapse to the current
	// values, yielding zero deltas.
	prevTemp := current.Temperature
	prevWind := current.WindSpeed
	prevRain := 0.0
	if previous != nil {
		prevTemp = previous.Temperature
		prevWind = previous.WindSpeed
		if rainyCondition(previous.Main) {
			prevRain = 0.4
		}
	}

	nextRain := peakPop(forecast)
	tempDelta := round1(current.Temperature - prevTemp)
	rainDelta := round1((nextRain - prevRain) * 100)
	windDelta := round1(current.WindSpeed - prevWind)

	var parts []string
	if math.Abs(tempDelta) >= 1 {
		parts = append(parts, fmt.Sprintf("Temp %s %.1f deg", upDown(tempDelta), math.Abs(tempDelta)))
	}
	if math.Abs(rainDelta) >= 10 {
		parts = append(parts, fmt.Sprintf("rain risk %s %.0f%%", upDown(rainDelta), math.Abs(rainDelta)))
	}
	if math.Abs(windDelta) >= 1 {
		parts = append(parts, fmt.Sprintf("wind %s %.1f m/s", upDown(windDelta), math.Abs(windDelta)))
	}

	headline := "No major change since last sync."
	if len(parts) > 0 {
		headline = strings.Join(parts, ", ")
	}

	return &ChangeSummary{
		Headline:         headline,
		TemperatureDelta: tempDelta,
		RainDelta:        rainDelta,
		WindDelta:        windDelta,
	}
}

func upDown(delta float64) string {
	if delta > 0 {
		return "up"
	}
	return "down"
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func briefing(current *weather.Snapshot, forecast []weather.ForecastItem, alerts []string, impacts ImpactScores) string {
	if current == nil {
		return emptyBriefing
	}

	condition := current.Description
	if condition == "" {
		condition = current.Main
	}

	summary := fmt.Sprintf(
		"Now %.1f deg with %s. Peak rain chance next 24h is %d%%. Outdoor score %d/100.",
		current.Temperature, condition, int(math.Round(peakPop(forecast)*100)), impacts.Outdoor,
	)
	if len(alerts) > 0 {
		summary += " Priority alert: " + alerts[0]
	}
	return summary
}
