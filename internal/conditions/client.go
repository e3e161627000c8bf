// Package conditions fetches environmental data from external providers and
// normalizes it into a single Reading at the process boundary.
package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// WeatherProvider fetches current weather for a point.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*WeatherSnapshot, error)

	// Name returns the provider name for logging.
	Name() string
}

// AirQualityProvider fetches current air quality for a point.
type AirQualityProvider interface {
	CurrentAirQuality(ctx context.Context, lat, lon float64) (*AirQualitySnapshot, error)

	// Name returns the provider name for logging.
	Name() string
}

// ClientConfig holds configuration for the composite client.
type ClientConfig struct {
	// Weather is the weather data provider (required).
	Weather WeatherProvider

	// AirQuality is the air quality data provider (required).
	AirQuality AirQualityProvider

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches weather and air quality together. A Reading is produced only
// when both providers succeed; a partial result is never returned.
type Client struct {
	weather    WeatherProvider
	airQuality AirQualityProvider
	logger     zerolog.Logger
}

// NewClient creates a new composite conditions client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		weather:    cfg.Weather,
		airQuality: cfg.AirQuality,
		logger:     cfg.Logger,
	}
}

// Fetch retrieves a complete environmental reading for a point. Both provider
// calls run concurrently; coordinates are validated before any request is
// issued.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*Reading, error) {
	coords := Coordinates{Lat: lat, Lon: lon}
	if !coords.Valid() {
		return nil, fmt.Errorf("%w: lat=%f lon=%f", ErrInvalidCoordinates, lat, lon)
	}

	var (
		wg         sync.WaitGroup
		weather    *WeatherSnapshot
		airQuality *AirQualitySnapshot
		weatherErr error
		airErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		weather, weatherErr = c.weather.CurrentWeather(ctx, lat, lon)
	}()
	go func() {
		defer wg.Done()
		airQuality, airErr = c.airQuality.CurrentAirQuality(ctx, lat, lon)
	}()
	wg.Wait()

	if weatherErr != nil {
		c.logger.Error().Err(weatherErr).
			Float64("lat", lat).
			Float64("lon", lon).
			Str("provider", c.weather.Name()).
			Msg("weather fetch failed")
		return nil, fmt.Errorf("weather from %s: %w", c.weather.Name(), ErrFetchFailed)
	}
	if airErr != nil {
		c.logger.Error().Err(airErr).
			Float64("lat", lat).
			Float64("lon", lon).
			Str("provider", c.airQuality.Name()).
			Msg("air quality fetch failed")
		return nil, fmt.Errorf("air quality from %s: %w", c.airQuality.Name(), ErrFetchFailed)
	}

	return &Reading{
		Coordinates: coords,
		Weather:     *weather,
		AirQuality:  *airQuality,
		FetchedAt:   time.Now().UTC(),
	}, nil
}
