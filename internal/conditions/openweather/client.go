// Package openweather provides a client for the OpenWeather One Call API.
package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/conditions"
	"github.com/vitalsentry/vitalsentry/internal/provider/resilience"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweather"

	// DefaultBaseURL is the One Call API 3.0 base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/3.0/onecall"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenWeather client.
type ClientConfig struct {
	// APIKey is the OpenWeather API key (required).
	APIKey string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeather One Call API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeather client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// CurrentWeather fetches current weather for a location.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64) (*conditions.WeatherSnapshot, error) {
	url := fmt.Sprintf("%s?lat=%.6f&lon=%.6f&appid=%s&units=metric&exclude=minutely,hourly,daily,alerts",
		c.baseURL, lat, lon, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var owResp oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&owResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return c.toSnapshot(&owResp), nil
}

// toSnapshot converts the One Call response to the domain model.
func (c *Client) toSnapshot(resp *oneCallResponse) *conditions.WeatherSnapshot {
	cur := resp.Current

	snap := &conditions.WeatherSnapshot{
		Temperature:   cur.Temp,
		FeelsLike:     cur.FeelsLike,
		Humidity:      cur.Humidity,
		Pressure:      cur.Pressure,
		WindSpeed:     cur.WindSpeed,
		WindDirection: cur.WindDeg,
		CloudCover:    cur.Clouds,
		Visibility:    float64(cur.Visibility),
		UVIndex:       cur.UVI,
		Sunrise:       time.Unix(cur.Sunrise, 0),
		Sunset:        time.Unix(cur.Sunset, 0),
		ObservedAt:    time.Unix(cur.Dt, 0),
	}

	if len(cur.Weather) > 0 {
		snap.Condition = mapCondition(cur.Weather[0].Main)
		snap.Description = cur.Weather[0].Description
	} else {
		snap.Condition = conditions.ConditionUnknown
	}

	return snap
}

// mapCondition maps an OpenWeather condition group to a domain condition.
func mapCondition(owCondition string) conditions.Condition {
	switch owCondition {
	case "Clear":
		return conditions.ConditionClear
	case "Clouds":
		return conditions.ConditionClouds
	case "Rain":
		return conditions.ConditionRain
	case "Drizzle":
		return conditions.ConditionDrizzle
	case "Thunderstorm":
		return conditions.ConditionThunderstorm
	case "Snow":
		return conditions.ConditionSnow
	case "Mist":
		return conditions.ConditionMist
	case "Fog":
		return conditions.ConditionFog
	case "Haze", "Dust", "Sand", "Ash", "Squall", "Tornado":
		return conditions.ConditionHaze
	default:
		return conditions.ConditionUnknown
	}
}

// OpenWeather API response structures.

type oneCallResponse struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Current struct {
		Dt         int64   `json:"dt"`
		Sunrise    int64   `json:"sunrise"`
		Sunset     int64   `json:"sunset"`
		Temp       float64 `json:"temp"`
		FeelsLike  float64 `json:"feels_like"`
		Pressure   float64 `json:"pressure"`
		Humidity   float64 `json:"humidity"`
		UVI        float64 `json:"uvi"`
		Clouds     float64 `json:"clouds"`
		Visibility int     `json:"visibility"`
		WindSpeed  float64 `json:"wind_speed"`
		WindDeg    float64 `json:"wind_deg"`
		Weather    []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"current"`
}
