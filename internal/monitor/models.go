package monitor

import (
	"errors"
	"time"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/conditions"
	"github.com/vitalsentry/vitalsentry/internal/risk"
)

// Monitor errors.
var ErrLocationNotFound = errors.New("location not tracked")

// LocationSpec describes a location to track: where it is and who cares
// about it.
type LocationSpec struct {
	// Name is a human-readable label used in notifications.
	Name string

	// Coordinates of the location.
	Coordinates conditions.Coordinates

	// UserIDs are the users subscribed to this location.
	UserIDs []string

	// DeviceIDs are the devices that receive alert notifications.
	DeviceIDs []string

	// Preferences holds per-user alert preferences. Users absent from the
	// map get the default (everything enabled).
	Preferences map[string]alert.Preferences
}

// TrackedLocation is one monitored entry. CurrentConditions points at an
// immutable Reading and is replaced wholesale on each successful update;
// it is nil until the first successful poll.
type TrackedLocation struct {
	ID          string
	Name        string
	Coordinates conditions.Coordinates
	UserIDs     []string
	DeviceIDs   []string
	Preferences map[string]alert.Preferences

	CurrentConditions *conditions.Reading
	HealthAlerts      []risk.Alert

	TrackedAt time.Time
	UpdatedAt time.Time
}

// copyLocation returns a defensive copy. The Reading pointer is shared on
// purpose: readings are immutable, and callers compare them by identity.
func copyLocation(l *TrackedLocation) *TrackedLocation {
	c := *l
	c.UserIDs = append([]string(nil), l.UserIDs...)
	c.DeviceIDs = append([]string(nil), l.DeviceIDs...)
	if l.Preferences != nil {
		c.Preferences = make(map[string]alert.Preferences, len(l.Preferences))
		for k, v := range l.Preferences {
			c.Preferences[k] = v
		}
	}
	c.HealthAlerts = append([]risk.Alert(nil), l.HealthAlerts...)
	return &c
}

// dedupe removes duplicates and empty strings, preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
