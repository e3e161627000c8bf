// Package config loads application configuration from the environment.
// A .env file in the working directory is honored when present, which keeps
// local development out of the shell profile.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/database"
	"github.com/vitalsentry/vitalsentry/internal/device"
	"github.com/vitalsentry/vitalsentry/internal/monitor"
	"github.com/vitalsentry/vitalsentry/internal/risk"
)

// Config is the complete application configuration.
type Config struct {
	App        AppConfig
	Ops        OpsConfig
	Weather    WeatherConfig
	AirQuality AirQualityConfig
	Provider   ProviderConfig
	Monitor    MonitorConfig
	Sync       SyncConfig
	Thresholds ThresholdsConfig
	PubSub     PubSubConfig
	Database   DatabaseConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// IsProduction reports whether the app runs in production mode.
func (c AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// OpsConfig holds settings for the operational HTTP endpoint.
type OpsConfig struct {
	Addr         string        `envconfig:"OPS_ADDR" default:":8090"`
	RequestLimit int           `envconfig:"OPS_RATE_LIMIT" default:"60"`
	RateWindow   time.Duration `envconfig:"OPS_RATE_WINDOW" default:"1m"`
	ReadTimeout  time.Duration `envconfig:"OPS_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"OPS_WRITE_TIMEOUT" default:"20s"`
}

// WeatherConfig holds the weather provider credentials. An empty BaseURL
// means the provider's default endpoint.
type WeatherConfig struct {
	APIKey  string `envconfig:"OPENWEATHER_API_KEY"`
	BaseURL string `envconfig:"OPENWEATHER_BASE_URL"`
}

// AirQualityConfig holds the air quality provider credentials.
type AirQualityConfig struct {
	APIKey  string `envconfig:"AIRVISUAL_API_KEY"`
	BaseURL string `envconfig:"AIRVISUAL_BASE_URL"`
}

// ProviderConfig tunes the resilient HTTP client used for provider calls.
type ProviderConfig struct {
	Timeout    time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	MaxRetries uint64        `envconfig:"PROVIDER_MAX_RETRIES" default:"3"`
}

// MonitorConfig tunes the location monitor.
//
// Seed locations are read from SeedFile (a path) or SeedJSON (inline); the
// file wins when both are set. The payload is a JSON array of location specs:
//
//	[{"name": "Amsterdam", "coordinates": {"lat": 52.37, "lon": 4.89},
//	  "userIDs": ["u1"], "deviceIDs": ["d1"],
//	  "preferences": {"u1": {"weather": true, "airQuality": false}}}]
type MonitorConfig struct {
	PollInterval     time.Duration `envconfig:"MONITOR_POLL_INTERVAL" default:"60m"`
	FetchTimeout     time.Duration `envconfig:"MONITOR_FETCH_TIMEOUT" default:"15s"`
	SweepConcurrency int           `envconfig:"MONITOR_SWEEP_CONCURRENCY" default:"3"`
	SeedFile         string        `envconfig:"MONITOR_SEED_FILE"`
	SeedJSON         string        `envconfig:"MONITOR_SEED_JSON"`
}

// SeedLocations parses the configured seed locations, if any.
func (c MonitorConfig) SeedLocations() ([]monitor.LocationSpec, error) {
	raw := []byte(c.SeedJSON)
	if c.SeedFile != "" {
		b, err := os.ReadFile(c.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("reading seed file: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var specs []monitor.LocationSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parsing seed locations: %w", err)
	}
	return specs, nil
}

// SyncConfig tunes the device sync engine. An empty SinkEndpoint means
// payloads are logged instead of forwarded.
//
// Seed devices follow the same file-or-inline convention as seed locations:
//
//	[{"id": "d1", "userID": "u1", "type": "apple", "name": "Watch"}]
type SyncConfig struct {
	SweepInterval time.Duration `envconfig:"SYNC_SWEEP_INTERVAL" default:"15m"`
	SinkEndpoint  string        `envconfig:"SYNC_SINK_ENDPOINT"`
	SeedFile      string        `envconfig:"SYNC_SEED_FILE"`
	SeedJSON      string        `envconfig:"SYNC_SEED_JSON"`
}

// SeedDevice is one device to connect at startup.
type SeedDevice struct {
	ID     string      `json:"id"`
	UserID string      `json:"userID"`
	Type   device.Type `json:"type"`
	Name   string      `json:"name"`
}

// SeedDevices parses the configured seed devices, if any.
func (c SyncConfig) SeedDevices() ([]SeedDevice, error) {
	raw := []byte(c.SeedJSON)
	if c.SeedFile != "" {
		b, err := os.ReadFile(c.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("reading device seed file: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var seeds []SeedDevice
	if err := json.Unmarshal(raw, &seeds); err != nil {
		return nil, fmt.Errorf("parsing seed devices: %w", err)
	}
	return seeds, nil
}

// ThresholdsConfig overrides the risk tier boundaries.
type ThresholdsConfig struct {
	HeatHigh         float64 `envconfig:"THRESHOLD_HEAT_HIGH" default:"35"`
	HeatModerate     float64 `envconfig:"THRESHOLD_HEAT_MODERATE" default:"30"`
	ColdHigh         float64 `envconfig:"THRESHOLD_COLD_HIGH" default:"-10"`
	ColdModerate     float64 `envconfig:"THRESHOLD_COLD_MODERATE" default:"0"`
	HumidityHigh     float64 `envconfig:"THRESHOLD_HUMIDITY_HIGH" default:"90"`
	HumidityModerate float64 `envconfig:"THRESHOLD_HUMIDITY_MODERATE" default:"75"`
	WindHigh         float64 `envconfig:"THRESHOLD_WIND_HIGH" default:"20"`
	WindModerate     float64 `envconfig:"THRESHOLD_WIND_MODERATE" default:"10"`
	UVHigh           float64 `envconfig:"THRESHOLD_UV_HIGH" default:"8"`
	UVModerate       float64 `envconfig:"THRESHOLD_UV_MODERATE" default:"6"`
	AQIHigh          int     `envconfig:"THRESHOLD_AQI_HIGH" default:"150"`
	AQIModerate      int     `envconfig:"THRESHOLD_AQI_MODERATE" default:"100"`
}

// ToRisk converts the config section to assessor thresholds.
func (c ThresholdsConfig) ToRisk() risk.Thresholds {
	return risk.Thresholds{
		HeatHigh:         c.HeatHigh,
		HeatModerate:     c.HeatModerate,
		ColdHigh:         c.ColdHigh,
		ColdModerate:     c.ColdModerate,
		HumidityHigh:     c.HumidityHigh,
		HumidityModerate: c.HumidityModerate,
		WindHigh:         c.WindHigh,
		WindModerate:     c.WindModerate,
		UVHigh:           c.UVHigh,
		UVModerate:       c.UVModerate,
		AQIHigh:          c.AQIHigh,
		AQIModerate:      c.AQIModerate,
	}
}

// PubSubConfig holds Pub/Sub settings for alert publishing. An empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `envconfig:"PUBSUB_PROJECT_ID"`
	Topic     string `envconfig:"PUBSUB_TOPIC" default:"vitalsentry-alerts"`
}

// Enabled reports whether alert publishing is configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != ""
}

// DatabaseConfig holds PostgreSQL settings. When disabled, device state is
// kept in memory.
type DatabaseConfig struct {
	Enabled         bool          `envconfig:"DB_ENABLED" default:"false"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"vitalsentry"`
	Password        string        `envconfig:"DB_PASSWORD" default:"localdev"`
	Name            string        `envconfig:"DB_NAME" default:"vitalsentry"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// ToDatabase converts the config section to connection settings.
func (c DatabaseConfig) ToDatabase() database.Config {
	return database.Config{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		Database:        c.Name,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool          `envconfig:"OTEL_ENABLED" default:"false"`
	OTLPEndpoint   string        `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	SampleRatio    float64       `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
	MetricInterval time.Duration `envconfig:"OTEL_METRIC_INTERVAL" default:"15s"`
}

// Load reads configuration from the environment, applying defaults and
// validating the result.
func Load() (*Config, error) {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid APP_ENV %q", c.App.Environment)
	}

	if _, err := zerolog.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.App.LogLevel, err)
	}

	if c.App.IsProduction() {
		if c.Weather.APIKey == "" {
			return fmt.Errorf("OPENWEATHER_API_KEY is required in production")
		}
		if c.AirQuality.APIKey == "" {
			return fmt.Errorf("AIRVISUAL_API_KEY is required in production")
		}
	}

	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("MONITOR_POLL_INTERVAL must be positive")
	}
	if c.Monitor.FetchTimeout <= 0 {
		return fmt.Errorf("MONITOR_FETCH_TIMEOUT must be positive")
	}
	if c.Monitor.SweepConcurrency < 1 {
		return fmt.Errorf("MONITOR_SWEEP_CONCURRENCY must be at least 1")
	}
	if c.Sync.SweepInterval <= 0 {
		return fmt.Errorf("SYNC_SWEEP_INTERVAL must be positive")
	}

	return c.Thresholds.validate()
}

func (c ThresholdsConfig) validate() error {
	ordered := []struct {
		name              string
		moderate, high    float64
		moderateBelowHigh bool
	}{
		{"heat", c.HeatModerate, c.HeatHigh, true},
		{"cold", c.ColdModerate, c.ColdHigh, false},
		{"humidity", c.HumidityModerate, c.HumidityHigh, true},
		{"wind", c.WindModerate, c.WindHigh, true},
		{"uv", c.UVModerate, c.UVHigh, true},
		{"aqi", float64(c.AQIModerate), float64(c.AQIHigh), true},
	}

	for _, t := range ordered {
		if t.moderateBelowHigh && t.moderate >= t.high {
			return fmt.Errorf("%s thresholds out of order: moderate %.1f must be below high %.1f", t.name, t.moderate, t.high)
		}
		if !t.moderateBelowHigh && t.moderate <= t.high {
			return fmt.Errorf("%s thresholds out of order: moderate %.1f must be above high %.1f", t.name, t.moderate, t.high)
		}
	}

	return nil
}
