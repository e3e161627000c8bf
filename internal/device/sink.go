package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/provider/resilience"
)

// Sink receives synced biometric payloads for downstream processing.
type Sink interface {
	Process(ctx context.Context, payload *BiometricPayload) error
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSink forwards payloads to the platform's biometric ingest endpoint.
type HTTPSink struct {
	endpoint   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewHTTPSink creates a sink that POSTs payloads to endpoint.
// If httpClient is nil, a default resilient client is created.
func NewHTTPSink(endpoint string, httpClient HTTPDoer, logger zerolog.Logger) *HTTPSink {
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig("biometric-ingest"))
	}

	return &HTTPSink{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Process sends one payload to the ingest endpoint.
func (s *HTTPSink) Process(ctx context.Context, payload *BiometricPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	s.logger.Debug().
		Str("device_id", payload.DeviceID).
		Int("samples", len(payload.Samples)).
		Msg("payload forwarded to ingest")

	return nil
}

// LogSink records payloads in the log and drops them. Used when no ingest
// endpoint is configured.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that only logs.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Process logs the payload summary.
func (s *LogSink) Process(_ context.Context, payload *BiometricPayload) error {
	s.logger.Info().
		Str("device_id", payload.DeviceID).
		Str("type", string(payload.DeviceType)).
		Int("samples", len(payload.Samples)).
		Int("battery_level", payload.BatteryLevel).
		Msg("biometric payload processed")
	return nil
}

var (
	_ Sink = (*HTTPSink)(nil)
	_ Sink = (*LogSink)(nil)
)
