package conditions_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsentry/vitalsentry/internal/conditions"
)

type stubWeather struct {
	snapshot *conditions.WeatherSnapshot
	err      error
	calls    atomic.Int32
}

func (s *stubWeather) CurrentWeather(_ context.Context, _, _ float64) (*conditions.WeatherSnapshot, error) {
	s.calls.Add(1)
	return s.snapshot, s.err
}

func (s *stubWeather) Name() string { return "stub-weather" }

type stubAirQuality struct {
	snapshot *conditions.AirQualitySnapshot
	err      error
	calls    atomic.Int32
}

func (s *stubAirQuality) CurrentAirQuality(_ context.Context, _, _ float64) (*conditions.AirQualitySnapshot, error) {
	s.calls.Add(1)
	return s.snapshot, s.err
}

func (s *stubAirQuality) Name() string { return "stub-air" }

func newTestClient(w *stubWeather, aq *stubAirQuality) *conditions.Client {
	return conditions.NewClient(conditions.ClientConfig{
		Weather:    w,
		AirQuality: aq,
		Logger:     zerolog.Nop(),
	})
}

func TestClient_Fetch(t *testing.T) {
	weather := &stubWeather{snapshot: &conditions.WeatherSnapshot{Temperature: 21.5, Humidity: 60}}
	air := &stubAirQuality{snapshot: &conditions.AirQualitySnapshot{AQI: 42, MainPollutant: "p2"}}

	client := newTestClient(weather, air)

	reading, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.NoError(t, err)
	require.NotNil(t, reading)

	assert.Equal(t, 52.37, reading.Coordinates.Lat)
	assert.Equal(t, 4.89, reading.Coordinates.Lon)
	assert.Equal(t, 21.5, reading.Weather.Temperature)
	assert.Equal(t, 42, reading.AirQuality.AQI)
	assert.WithinDuration(t, time.Now(), reading.FetchedAt, time.Second)
	assert.Equal(t, time.UTC, reading.FetchedAt.Location())

	assert.Equal(t, int32(1), weather.calls.Load())
	assert.Equal(t, int32(1), air.calls.Load())
}

func TestClient_Fetch_WeatherFailure(t *testing.T) {
	weather := &stubWeather{err: errors.New("upstream down")}
	air := &stubAirQuality{snapshot: &conditions.AirQualitySnapshot{AQI: 42}}

	client := newTestClient(weather, air)

	reading, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.Nil(t, reading, "a partial reading must never be returned")
	assert.ErrorIs(t, err, conditions.ErrFetchFailed)
	assert.Contains(t, err.Error(), "stub-weather")
}

func TestClient_Fetch_AirQualityFailure(t *testing.T) {
	weather := &stubWeather{snapshot: &conditions.WeatherSnapshot{Temperature: 18}}
	air := &stubAirQuality{err: errors.New("quota exceeded")}

	client := newTestClient(weather, air)

	reading, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.Nil(t, reading)
	assert.ErrorIs(t, err, conditions.ErrFetchFailed)
	assert.Contains(t, err.Error(), "stub-air")
}

func TestClient_Fetch_BothFail(t *testing.T) {
	weather := &stubWeather{err: errors.New("down")}
	air := &stubAirQuality{err: errors.New("also down")}

	client := newTestClient(weather, air)

	_, err := client.Fetch(context.Background(), 52.37, 4.89)
	require.Error(t, err)
	assert.ErrorIs(t, err, conditions.ErrFetchFailed)
	// Weather is reported first so repeated failures read the same
	assert.Contains(t, err.Error(), "stub-weather")
}

func TestClient_Fetch_InvalidCoordinates(t *testing.T) {
	cases := []struct {
		name     string
		lat, lon float64
	}{
		{"lat too high", 91, 0},
		{"lat too low", -91, 0},
		{"lon too high", 0, 181},
		{"lon too low", 0, -181},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			weather := &stubWeather{snapshot: &conditions.WeatherSnapshot{}}
			air := &stubAirQuality{snapshot: &conditions.AirQualitySnapshot{}}

			client := newTestClient(weather, air)

			_, err := client.Fetch(context.Background(), tc.lat, tc.lon)
			require.Error(t, err)
			assert.ErrorIs(t, err, conditions.ErrInvalidCoordinates)

			// No provider call is issued for invalid input
			assert.Equal(t, int32(0), weather.calls.Load())
			assert.Equal(t, int32(0), air.calls.Load())
		})
	}
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, conditions.Coordinates{Lat: 0, Lon: 0}.Valid())
	assert.True(t, conditions.Coordinates{Lat: 90, Lon: 180}.Valid())
	assert.True(t, conditions.Coordinates{Lat: -90, Lon: -180}.Valid())
	assert.False(t, conditions.Coordinates{Lat: 90.0001, Lon: 0}.Valid())
	assert.False(t, conditions.Coordinates{Lat: 0, Lon: -180.0001}.Valid())
}
