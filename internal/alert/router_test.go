package alert_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/notify"
	"github.com/vitalsentry/vitalsentry/internal/risk"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []alert.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event alert.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *capturePublisher) captured() []alert.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]alert.Event(nil), p.events...)
}

type captureNotifier struct {
	mu       sync.Mutex
	devices  []string
	payloads []notify.Payload
	err      error
}

func (n *captureNotifier) Send(_ context.Context, deviceID string, payload notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.devices = append(n.devices, deviceID)
	n.payloads = append(n.payloads, payload)
	return n.err
}

func (n *captureNotifier) sent() ([]string, []notify.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.devices...), append([]notify.Payload(nil), n.payloads...)
}

func newRouter(pubs []alert.Publisher, notifier notify.Notifier) *alert.Router {
	return alert.NewRouter(alert.RouterConfig{
		Publishers: pubs,
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
	})
}

func testAlerts() []risk.Alert {
	issued := time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC)
	return []risk.Alert{
		{Category: risk.CategoryTemperature, Severity: risk.LevelHigh, Message: "extreme heat: 38.0°C (feels like 41.2°C)", IssuedAt: issued},
		{Category: risk.CategoryUV, Severity: risk.LevelModerate, Message: "high UV index: 7", IssuedAt: issued},
		{Category: risk.CategoryAirQuality, Severity: risk.LevelModerate, Message: "degraded air quality: AQI 120 (p2)", IssuedAt: issued},
	}
}

func TestRouter_Trigger(t *testing.T) {
	pub := &capturePublisher{}
	notifier := &captureNotifier{}
	router := newRouter([]alert.Publisher{pub}, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Home",
		UserIDs:      []string{"user-a", "user-b"},
		DeviceIDs:    []string{"dev-1"},
	}

	router.Trigger(context.Background(), target, testAlerts())

	events := pub.captured()
	require.Len(t, events, 2, "one event per user")

	assert.Equal(t, "user-a", events[0].UserID)
	assert.Equal(t, "user-b", events[1].UserID)
	assert.NotEqual(t, events[0].ID, events[1].ID)

	for _, event := range events {
		assert.Equal(t, "loc-1", event.LocationID)
		assert.Equal(t, "Home", event.LocationName)
		assert.Len(t, event.Alerts, 3)
		assert.WithinDuration(t, time.Now(), event.EmittedAt, time.Second)
	}
}

func TestRouter_Trigger_EmptyBatch(t *testing.T) {
	pub := &capturePublisher{}
	notifier := &captureNotifier{}
	router := newRouter([]alert.Publisher{pub}, notifier)

	target := alert.Target{
		LocationID: "loc-1",
		UserIDs:    []string{"user-a"},
		DeviceIDs:  []string{"dev-1"},
	}

	router.Trigger(context.Background(), target, nil)

	assert.Empty(t, pub.captured())
	devices, _ := notifier.sent()
	assert.Empty(t, devices)
}

func TestRouter_Trigger_PreferenceFiltering(t *testing.T) {
	pub := &capturePublisher{}
	notifier := &captureNotifier{}
	router := newRouter([]alert.Publisher{pub}, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Home",
		UserIDs:      []string{"weather-only", "air-only", "nothing", "unset"},
		Preferences: map[string]alert.Preferences{
			"weather-only": {Weather: true, AirQuality: false},
			"air-only":     {Weather: false, AirQuality: true},
			"nothing":      {},
		},
	}

	router.Trigger(context.Background(), target, testAlerts())

	events := pub.captured()
	require.Len(t, events, 3, "user with everything filtered emits no event")

	byUser := make(map[string]alert.Event, len(events))
	for _, event := range events {
		byUser[event.UserID] = event
	}

	weatherOnly, ok := byUser["weather-only"]
	require.True(t, ok)
	require.Len(t, weatherOnly.Alerts, 2)
	assert.Equal(t, risk.CategoryTemperature, weatherOnly.Alerts[0].Category)
	assert.Equal(t, risk.CategoryUV, weatherOnly.Alerts[1].Category)

	airOnly, ok := byUser["air-only"]
	require.True(t, ok)
	require.Len(t, airOnly.Alerts, 1)
	assert.Equal(t, risk.CategoryAirQuality, airOnly.Alerts[0].Category)

	// Users with no stored preferences receive everything
	unset, ok := byUser["unset"]
	require.True(t, ok)
	assert.Len(t, unset.Alerts, 3)

	_, ok = byUser["nothing"]
	assert.False(t, ok)
}

func TestRouter_Trigger_PublisherFailureIsolated(t *testing.T) {
	failing := &capturePublisher{err: errors.New("broker unavailable")}
	working := &capturePublisher{}
	notifier := &captureNotifier{}
	router := newRouter([]alert.Publisher{failing, working}, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Home",
		UserIDs:      []string{"user-a"},
		DeviceIDs:    []string{"dev-1"},
	}

	router.Trigger(context.Background(), target, testAlerts())

	assert.Len(t, failing.captured(), 1)
	assert.Len(t, working.captured(), 1, "second publisher still receives the event")

	devices, _ := notifier.sent()
	assert.Len(t, devices, 1, "device delivery proceeds despite publish failure")
}

func TestRouter_Trigger_DeviceFanOut(t *testing.T) {
	pub := &capturePublisher{}
	notifier := &captureNotifier{}
	router := newRouter([]alert.Publisher{pub}, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Office",
		UserIDs:      []string{"user-a", "user-b"},
		DeviceIDs:    []string{"dev-1", "dev-2", "dev-3"},
	}

	router.Trigger(context.Background(), target, testAlerts())

	devices, payloads := notifier.sent()
	assert.Len(t, devices, 6, "every device is notified on each user's pass")
	assert.ElementsMatch(t, []string{"dev-1", "dev-2", "dev-3", "dev-1", "dev-2", "dev-3"}, devices)

	for _, payload := range payloads {
		assert.Equal(t, notify.KindEnvironmentalAlert, payload.Kind)
		assert.Equal(t, "Health alert: Office", payload.Title)
		assert.Equal(t, "loc-1", payload.LocationID)
	}
}

func TestRouter_Trigger_NotifierFailureLogged(t *testing.T) {
	pub := &capturePublisher{}
	notifier := &captureNotifier{err: errors.New("device unreachable")}
	router := newRouter([]alert.Publisher{pub}, notifier)

	target := alert.Target{
		LocationID: "loc-1",
		UserIDs:    []string{"user-a"},
		DeviceIDs:  []string{"dev-1", "dev-2"},
	}

	// Must not panic or stop at the first failing device
	router.Trigger(context.Background(), target, testAlerts())

	devices, _ := notifier.sent()
	assert.Len(t, devices, 2)
}

func TestRouter_Trigger_SummaryPayload(t *testing.T) {
	notifier := &captureNotifier{}
	router := newRouter(nil, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Home",
		UserIDs:      []string{"user-a"},
		DeviceIDs:    []string{"dev-1"},
	}

	router.Trigger(context.Background(), target, testAlerts())

	_, payloads := notifier.sent()
	require.Len(t, payloads, 1)

	payload := payloads[0]
	assert.Equal(t, "extreme heat: 38.0°C (feels like 41.2°C) (+2 more)", payload.Body)
	assert.Equal(t, 3, payload.AlertCount)
	assert.Equal(t, string(risk.LevelHigh), payload.Severity)
	assert.WithinDuration(t, time.Now(), payload.SentAt, time.Second)
}

func TestRouter_Trigger_SingleAlertPayload(t *testing.T) {
	notifier := &captureNotifier{}
	router := newRouter(nil, notifier)

	target := alert.Target{
		LocationID:   "loc-1",
		LocationName: "Home",
		UserIDs:      []string{"user-a"},
		DeviceIDs:    []string{"dev-1"},
	}

	alerts := testAlerts()[:1]
	router.Trigger(context.Background(), target, alerts)

	_, payloads := notifier.sent()
	require.Len(t, payloads, 1)
	assert.Equal(t, alerts[0].Message, payloads[0].Body)
	assert.Equal(t, 1, payloads[0].AlertCount)
}

func TestPreferences_Allows(t *testing.T) {
	weather := alert.Preferences{Weather: true}
	assert.True(t, weather.Allows(risk.CategoryTemperature))
	assert.True(t, weather.Allows(risk.CategoryHumidity))
	assert.True(t, weather.Allows(risk.CategoryWind))
	assert.True(t, weather.Allows(risk.CategoryUV))
	assert.False(t, weather.Allows(risk.CategoryAirQuality))

	air := alert.Preferences{AirQuality: true}
	assert.False(t, air.Allows(risk.CategoryTemperature))
	assert.True(t, air.Allows(risk.CategoryAirQuality))

	assert.False(t, alert.Preferences{}.Allows(risk.CategoryTemperature))

	defaults := alert.DefaultPreferences()
	assert.True(t, defaults.Allows(risk.CategoryTemperature))
	assert.True(t, defaults.Allows(risk.CategoryAirQuality))
}
