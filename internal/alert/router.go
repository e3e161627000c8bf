// Package alert routes health alerts to users and their devices according to
// per-user preferences.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/notify"
	"github.com/vitalsentry/vitalsentry/internal/risk"
)

// RouterConfig holds the router's dependencies.
type RouterConfig struct {
	// Publishers receive one event per (user, non-empty filtered alert set).
	Publishers []Publisher

	// Notifier delivers summarized payloads to the location's devices.
	Notifier notify.Notifier

	// Logger for router operations.
	Logger zerolog.Logger
}

// Router filters alerts per user and fans out events and device
// notifications. Publish and delivery failures are logged, never returned;
// one user's failure must not block another's delivery.
type Router struct {
	publishers []Publisher
	notifier   notify.Notifier
	logger     zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		publishers: cfg.Publishers,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
	}
}

// Trigger routes a batch of alerts for one location update. For each user the
// batch is filtered by that user's preferences; users whose filtered set is
// empty are skipped entirely. An empty batch is a no-op.
func (r *Router) Trigger(ctx context.Context, target Target, alerts []risk.Alert) {
	if len(alerts) == 0 {
		r.logger.Debug().
			Str("location_id", target.LocationID).
			Msg("no alerts to route")
		return
	}

	for _, userID := range target.UserIDs {
		prefs := target.PreferencesFor(userID)
		filtered := filterAlerts(alerts, prefs)
		if len(filtered) == 0 {
			r.logger.Debug().
				Str("location_id", target.LocationID).
				Str("user_id", userID).
				Msg("all alerts filtered by preferences")
			continue
		}

		event := Event{
			ID:           uuid.New(),
			LocationID:   target.LocationID,
			LocationName: target.LocationName,
			UserID:       userID,
			Alerts:       filtered,
			EmittedAt:    time.Now().UTC(),
		}

		for _, pub := range r.publishers {
			if err := pub.Publish(ctx, event); err != nil {
				r.logger.Error().Err(err).
					Str("location_id", target.LocationID).
					Str("user_id", userID).
					Str("event_id", event.ID.String()).
					Msg("alert event publish failed")
			}
		}

		payload := summarize(target, filtered)
		for _, deviceID := range target.DeviceIDs {
			if err := r.notifier.Send(ctx, deviceID, payload); err != nil {
				r.logger.Warn().Err(err).
					Str("device_id", deviceID).
					Str("user_id", userID).
					Msg("device notification failed")
			}
		}

		r.logger.Info().
			Str("location_id", target.LocationID).
			Str("user_id", userID).
			Int("alerts", len(filtered)).
			Int("devices", len(target.DeviceIDs)).
			Msg("alerts routed")
	}
}

// filterAlerts keeps the alerts the preferences allow, preserving order.
func filterAlerts(alerts []risk.Alert, prefs Preferences) []risk.Alert {
	filtered := make([]risk.Alert, 0, len(alerts))
	for _, a := range alerts {
		if prefs.Allows(a.Category) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// summarize builds the device payload for a filtered alert batch.
func summarize(target Target, alerts []risk.Alert) notify.Payload {
	highest := risk.LevelLow
	for _, a := range alerts {
		highest = risk.MoreSevere(highest, a.Severity)
	}

	body := alerts[0].Message
	if len(alerts) > 1 {
		body = fmt.Sprintf("%s (+%d more)", body, len(alerts)-1)
	}

	return notify.Payload{
		ID:         uuid.New(),
		Kind:       notify.KindEnvironmentalAlert,
		Title:      fmt.Sprintf("Health alert: %s", target.LocationName),
		Body:       body,
		LocationID: target.LocationID,
		AlertCount: len(alerts),
		Severity:   string(highest),
		SentAt:     time.Now().UTC(),
	}
}
