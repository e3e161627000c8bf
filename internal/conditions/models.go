package conditions

import (
	"errors"
	"time"
)

// Conditions errors.
var (
	ErrFetchFailed        = errors.New("environmental data fetch failed")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinates are within range.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// WeatherSnapshot represents current weather at a specific point and time.
type WeatherSnapshot struct {
	// Temperature in Celsius
	Temperature float64
	FeelsLike   float64

	// Humidity percentage (0-100)
	Humidity float64

	// Atmospheric pressure in hPa
	Pressure float64

	// Wind data
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees (0-360, 0=N, 90=E, 180=S, 270=W)

	// Cloud cover percentage (0-100)
	CloudCover float64

	// Visibility in meters
	Visibility float64

	// UV index (0-11+)
	UVIndex float64

	// Weather condition
	Condition   Condition
	Description string

	Sunrise time.Time
	Sunset  time.Time

	ObservedAt time.Time
}

// Condition represents the general weather condition.
type Condition string

const (
	ConditionClear        Condition = "CLEAR"
	ConditionClouds       Condition = "CLOUDS"
	ConditionRain         Condition = "RAIN"
	ConditionDrizzle      Condition = "DRIZZLE"
	ConditionThunderstorm Condition = "THUNDERSTORM"
	ConditionSnow         Condition = "SNOW"
	ConditionMist         Condition = "MIST"
	ConditionFog          Condition = "FOG"
	ConditionHaze         Condition = "HAZE"
	ConditionUnknown      Condition = "UNKNOWN"
)

// AirQualitySnapshot represents air quality at a specific point and time.
type AirQualitySnapshot struct {
	// AQI is the US EPA air quality index (0-500).
	AQI int

	// MainPollutant is the dominant pollutant code (e.g. "p2" for PM2.5).
	MainPollutant string

	// AQICN is the China MEP index, kept for cross-checking.
	AQICN int

	MeasuredAt time.Time
}

// Reading is a complete environmental snapshot for a point: weather and air
// quality fetched together. Readings are immutable once returned; consumers
// replace them wholesale and never mutate fields in place.
type Reading struct {
	Coordinates Coordinates
	Weather     WeatherSnapshot
	AirQuality  AirQualitySnapshot
	FetchedAt   time.Time
}
