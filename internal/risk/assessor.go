// Package risk derives health impacts and alerts from environmental readings.
// Assessment is a pure function of the reading and the configured thresholds;
// it performs no I/O and never mutates its input.
package risk

import (
	"fmt"

	"github.com/vitalsentry/vitalsentry/internal/conditions"
)

// Thresholds holds the tier boundaries for each category. A value at or past
// the high boundary is high risk; at or past the moderate boundary, moderate.
type Thresholds struct {
	// Temperature in Celsius. Heat counts upward, cold downward.
	HeatHigh     float64
	HeatModerate float64
	ColdHigh     float64
	ColdModerate float64

	// Humidity percentage.
	HumidityHigh     float64
	HumidityModerate float64

	// Wind speed in m/s.
	WindHigh     float64
	WindModerate float64

	// UV index.
	UVHigh     float64
	UVModerate float64

	// US EPA AQI.
	AQIHigh     int
	AQIModerate int
}

// DefaultThresholds returns the standard tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeatHigh:         35,
		HeatModerate:     30,
		ColdHigh:         -10,
		ColdModerate:     0,
		HumidityHigh:     90,
		HumidityModerate: 75,
		WindHigh:         20,
		WindModerate:     10,
		UVHigh:           8,
		UVModerate:       6,
		AQIHigh:          150,
		AQIModerate:      100,
	}
}

// Assessor evaluates readings against a fixed set of thresholds.
type Assessor struct {
	thresholds Thresholds
}

// NewAssessor creates an assessor with the given thresholds.
func NewAssessor(t Thresholds) *Assessor {
	return &Assessor{thresholds: t}
}

// Assess evaluates a reading. Impacts always come back in the same order:
// temperature, humidity, wind, uv, air_quality. Alerts carry the reading's
// fetch time so identical inputs produce identical output.
func (a *Assessor) Assess(r *conditions.Reading) Assessment {
	impacts := []Impact{
		a.assessTemperature(r.Weather),
		a.assessHumidity(r.Weather),
		a.assessWind(r.Weather),
		a.assessUV(r.Weather),
		a.assessAirQuality(r.AirQuality),
	}

	alerts := make([]Alert, 0, len(impacts))
	for _, impact := range impacts {
		if impact.Risk == LevelLow {
			continue
		}
		alerts = append(alerts, Alert{
			Category: impact.Category,
			Severity: impact.Risk,
			Message:  a.message(impact, r),
			IssuedAt: r.FetchedAt,
		})
	}

	return Assessment{Impacts: impacts, Alerts: alerts}
}

func (a *Assessor) assessTemperature(w conditions.WeatherSnapshot) Impact {
	t := a.thresholds
	level := LevelLow
	switch {
	case w.Temperature >= t.HeatHigh || w.Temperature <= t.ColdHigh:
		level = LevelHigh
	case w.Temperature >= t.HeatModerate || w.Temperature <= t.ColdModerate:
		level = LevelModerate
	}
	return Impact{Category: CategoryTemperature, Risk: level, Value: w.Temperature}
}

func (a *Assessor) assessHumidity(w conditions.WeatherSnapshot) Impact {
	t := a.thresholds
	level := LevelLow
	switch {
	case w.Humidity >= t.HumidityHigh:
		level = LevelHigh
	case w.Humidity >= t.HumidityModerate:
		level = LevelModerate
	}
	return Impact{Category: CategoryHumidity, Risk: level, Value: w.Humidity}
}

func (a *Assessor) assessWind(w conditions.WeatherSnapshot) Impact {
	t := a.thresholds
	level := LevelLow
	switch {
	case w.WindSpeed >= t.WindHigh:
		level = LevelHigh
	case w.WindSpeed >= t.WindModerate:
		level = LevelModerate
	}
	return Impact{Category: CategoryWind, Risk: level, Value: w.WindSpeed}
}

func (a *Assessor) assessUV(w conditions.WeatherSnapshot) Impact {
	t := a.thresholds
	level := LevelLow
	switch {
	case w.UVIndex >= t.UVHigh:
		level = LevelHigh
	case w.UVIndex >= t.UVModerate:
		level = LevelModerate
	}
	return Impact{Category: CategoryUV, Risk: level, Value: w.UVIndex}
}

func (a *Assessor) assessAirQuality(aq conditions.AirQualitySnapshot) Impact {
	t := a.thresholds
	level := LevelLow
	switch {
	case aq.AQI >= t.AQIHigh:
		level = LevelHigh
	case aq.AQI >= t.AQIModerate:
		level = LevelModerate
	}
	return Impact{Category: CategoryAirQuality, Risk: level, Value: float64(aq.AQI)}
}

// message builds the alert text for a non-low impact.
func (a *Assessor) message(impact Impact, r *conditions.Reading) string {
	switch impact.Category {
	case CategoryTemperature:
		if impact.Value >= a.thresholds.HeatModerate {
			if impact.Risk == LevelHigh {
				return fmt.Sprintf("extreme heat: %.1f°C (feels like %.1f°C)", impact.Value, r.Weather.FeelsLike)
			}
			return fmt.Sprintf("high heat: %.1f°C", impact.Value)
		}
		if impact.Risk == LevelHigh {
			return fmt.Sprintf("severe cold: %.1f°C (feels like %.1f°C)", impact.Value, r.Weather.FeelsLike)
		}
		return fmt.Sprintf("cold conditions: %.1f°C", impact.Value)
	case CategoryHumidity:
		return fmt.Sprintf("high humidity: %.0f%%", impact.Value)
	case CategoryWind:
		if impact.Risk == LevelHigh {
			return fmt.Sprintf("dangerous wind: %.1f m/s", impact.Value)
		}
		return fmt.Sprintf("strong wind: %.1f m/s", impact.Value)
	case CategoryUV:
		if impact.Risk == LevelHigh {
			return fmt.Sprintf("very high UV index: %.0f", impact.Value)
		}
		return fmt.Sprintf("high UV index: %.0f", impact.Value)
	case CategoryAirQuality:
		if impact.Risk == LevelHigh {
			return fmt.Sprintf("unhealthy air quality: AQI %.0f (%s)", impact.Value, r.AirQuality.MainPollutant)
		}
		return fmt.Sprintf("degraded air quality: AQI %.0f (%s)", impact.Value, r.AirQuality.MainPollutant)
	default:
		return fmt.Sprintf("%s risk %s", impact.Category, impact.Risk)
	}
}
