// Package notify delivers push notifications to connected devices.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind classifies a notification payload.
type Kind string

const (
	KindEnvironmentalAlert Kind = "environmental_alert"
	KindSyncComplete       Kind = "sync_complete"
)

// Payload is a summarized notification for one device.
type Payload struct {
	ID         uuid.UUID `json:"id"`
	Kind       Kind      `json:"kind"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	LocationID string    `json:"location_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	AlertCount int       `json:"alert_count,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Notifier sends a payload to a single device. Delivery is best effort;
// callers log failures and move on.
type Notifier interface {
	Send(ctx context.Context, deviceID string, payload Payload) error
}

// LogNotifier writes notifications to the log. It stands in for the platform
// push gateway in development and in tests.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs every delivery.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the payload and always succeeds.
func (n *LogNotifier) Send(_ context.Context, deviceID string, payload Payload) error {
	n.logger.Info().
		Str("device_id", deviceID).
		Str("kind", string(payload.Kind)).
		Str("title", payload.Title).
		Str("body", payload.Body).
		Int("alert_count", payload.AlertCount).
		Msg("device notification sent")
	return nil
}
