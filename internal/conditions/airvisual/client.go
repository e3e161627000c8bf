// Package airvisual provides a client for the IQAir AirVisual API.
package airvisual

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
	// ProviderName identifies this air quality provider.
	ProviderName = "airvisual"

	// DefaultBaseURL is the AirVisual API base URL.
	DefaultBaseURL = "https://api.airvisual.com/v2"
)

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the AirVisual client.
type ClientConfig struct {
	// APIKey is the AirVisual API key (required).
	APIKey string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use.
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an AirVisual API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new AirVisual client.
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

// CurrentAirQuality fetches air quality from the station nearest to a location.
func (c *Client) CurrentAirQuality(ctx context.Context, lat, lon float64) (*conditions.AirQualitySnapshot, error) {
	url := fmt.Sprintf("%s/nearest_city?lat=%.6f&lon=%.6f&key=%s",
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

	var avResp nearestCityResponse
	if err := json.NewDecoder(resp.Body).Decode(&avResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if avResp.Status != "success" {
		return nil, fmt.Errorf("api status %q", avResp.Status)
	}

	return c.toSnapshot(&avResp), nil
}

// toSnapshot converts the nearest_city response to the domain model.
// The pollution block is nested two levels deep in the vendor payload.
func (c *Client) toSnapshot(resp *nearestCityResponse) *conditions.AirQualitySnapshot {
	pollution := resp.Data.Current.Pollution

	measuredAt, err := time.Parse(time.RFC3339, pollution.Ts)
	if err != nil {
		c.logger.Debug().
			Str("ts", pollution.Ts).
			Msg("unparseable measurement timestamp, using fetch time")
		measuredAt = time.Now()
	}

	return &conditions.AirQualitySnapshot{
		AQI:           pollution.AQIUS,
		MainPollutant: pollution.MainUS,
		AQICN:         pollution.AQICN,
		MeasuredAt:    measuredAt,
	}
}

// AirVisual API response structures.

type nearestCityResponse struct {
	Status string `json:"status"`
	Data   struct {
		City    string `json:"city"`
		State   string `json:"state"`
		Country string `json:"country"`
		Current struct {
			Pollution struct {
				Ts     string `json:"ts"`
				AQIUS  int    `json:"aqius"`
				MainUS string `json:"mainus"`
				AQICN  int    `json:"aqicn"`
				MainCN string `json:"maincn"`
			} `json:"pollution"`
		} `json:"current"`
	} `json:"data"`
}
