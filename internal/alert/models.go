package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/vitalsentry/vitalsentry/internal/risk"
)

// Preferences controls which alert categories a user receives. The zero value
// disables everything; use DefaultPreferences for the opt-out default.
type Preferences struct {
	Weather    bool
	AirQuality bool
}

// DefaultPreferences returns the preferences applied to users who never set
// any: all categories enabled.
func DefaultPreferences() Preferences {
	return Preferences{Weather: true, AirQuality: true}
}

// Allows reports whether alerts of the given category reach this user.
// Air quality has its own switch; every other category counts as weather.
func (p Preferences) Allows(category risk.Category) bool {
	if category == risk.CategoryAirQuality {
		return p.AirQuality
	}
	return p.Weather
}

// Event is one user's alert delivery for one location update. Exactly one
// event is emitted per user whose filtered alert set is non-empty.
type Event struct {
	ID           uuid.UUID
	LocationID   string
	LocationName string
	UserID       string
	Alerts       []risk.Alert
	EmittedAt    time.Time
}

// Target describes where a batch of alerts should be routed: the location the
// alerts concern and the users and devices associated with it.
type Target struct {
	LocationID   string
	LocationName string
	UserIDs      []string
	DeviceIDs    []string
	Preferences  map[string]Preferences
}

// PreferencesFor returns the stored preferences for a user, or the default
// when the user never set any.
func (t Target) PreferencesFor(userID string) Preferences {
	if prefs, ok := t.Preferences[userID]; ok {
		return prefs
	}
	return DefaultPreferences()
}
