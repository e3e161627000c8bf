// Package device manages wearable device connections and biometric sync.
package device

import (
	"errors"
	"fmt"
	"time"
)

// Device errors.
var (
	ErrNotConnected     = errors.New("device not connected")
	ErrAlreadyConnected = errors.New("device already connected")
	ErrUnsupportedType  = errors.New("unsupported device type")
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrSyncFailed       = errors.New("failed to synchronize")
	ErrTeardownFailed   = errors.New("failed to disconnect")
)

// Type identifies a wearable vendor platform.
type Type string

const (
	TypeApple   Type = "apple"
	TypeSamsung Type = "samsung"
	TypeFitbit  Type = "fitbit"
	TypeGarmin  Type = "garmin"
)

// SupportedTypes returns the connectable device types.
func SupportedTypes() []Type {
	return []Type{TypeApple, TypeSamsung, TypeFitbit, TypeGarmin}
}

// Valid reports whether t is a supported device type.
func (t Type) Valid() bool {
	switch t {
	case TypeApple, TypeSamsung, TypeFitbit, TypeGarmin:
		return true
	default:
		return false
	}
}

// Capability is a data stream a device can sync.
type Capability string

const (
	CapabilityHeartRate Capability = "heart_rate"
	CapabilityActivity  Capability = "activity"
	CapabilitySleep     Capability = "sleep"
	CapabilityWorkout   Capability = "workout"
)

// CapabilitiesFor returns the capability set for a device type.
func CapabilitiesFor(t Type) []Capability {
	switch t {
	case TypeApple:
		return []Capability{CapabilityHeartRate, CapabilityActivity, CapabilityWorkout}
	case TypeSamsung:
		return []Capability{CapabilityHeartRate, CapabilityActivity, CapabilitySleep}
	case TypeFitbit:
		return []Capability{CapabilityHeartRate, CapabilityActivity, CapabilitySleep}
	case TypeGarmin:
		return []Capability{CapabilityHeartRate, CapabilityActivity, CapabilityWorkout, CapabilitySleep}
	default:
		return nil
	}
}

// Status is a device's connection state. A device absent from the registry
// is, by definition, disconnected.
type Status string

const (
	StatusConnected Status = "connected"
)

// Device is a connected wearable.
type Device struct {
	ID             string
	UserID         string
	Type           Type
	Name           string
	Status         Status
	Capabilities   []Capability
	LastSync       *time.Time
	SyncInProgress bool
	BatteryLevel   *int
	ConnectedAt    time.Time
	UpdatedAt      time.Time
}

// HasCapability reports whether the device syncs the given data stream.
func (d *Device) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// copyDevice creates a deep copy of a device.
func copyDevice(d *Device) *Device {
	if d == nil {
		return nil
	}

	deviceCopy := *d
	deviceCopy.Capabilities = append([]Capability(nil), d.Capabilities...)

	if d.LastSync != nil {
		val := *d.LastSync
		deviceCopy.LastSync = &val
	}
	if d.BatteryLevel != nil {
		val := *d.BatteryLevel
		deviceCopy.BatteryLevel = &val
	}

	return &deviceCopy
}

// humanizeSince renders a sync timestamp the way the status surface shows it.
func humanizeSince(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}

	elapsed := now.Sub(*t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%dm ago", int(elapsed.Minutes()))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(elapsed.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(elapsed.Hours()/24))
	}
}
