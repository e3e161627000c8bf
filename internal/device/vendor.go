package device

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"
)

// BiometricSample is one measurement window from a wearable.
type BiometricSample struct {
	RecordedAt   time.Time `json:"recorded_at"`
	HeartRate    int       `json:"heart_rate,omitempty"`
	Steps        int       `json:"steps,omitempty"`
	Calories     float64   `json:"calories,omitempty"`
	SleepMinutes int       `json:"sleep_minutes,omitempty"`
}

// BiometricPayload is everything one sync pulls from a vendor.
type BiometricPayload struct {
	DeviceID     string            `json:"device_id"`
	DeviceType   Type              `json:"device_type"`
	CollectedAt  time.Time         `json:"collected_at"`
	BatteryLevel int               `json:"battery_level"`
	Samples      []BiometricSample `json:"samples"`
}

// VendorClient talks to a wearable vendor's platform: it pulls biometric
// data during a sync and releases the vendor-side session on disconnect.
type VendorClient interface {
	// FetchBiometrics pulls the data accumulated since the last sync.
	FetchBiometrics(ctx context.Context, device *Device) (*BiometricPayload, error)

	// Teardown releases the vendor-side session for a device.
	Teardown(ctx context.Context, device *Device) error
}

// SimulatedVendor generates plausible biometric data instead of calling real
// vendor APIs. It stands in for the per-vendor integrations in development.
type SimulatedVendor struct {
	logger zerolog.Logger
}

// NewSimulatedVendor creates a simulated vendor client.
func NewSimulatedVendor(logger zerolog.Logger) *SimulatedVendor {
	return &SimulatedVendor{logger: logger}
}

// FetchBiometrics generates samples for the capabilities the device has.
func (v *SimulatedVendor) FetchBiometrics(ctx context.Context, device *Device) (*BiometricPayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !device.Type.Valid() {
		return nil, fmt.Errorf("no vendor integration for type %q", device.Type)
	}

	now := time.Now().UTC()
	count := gofakeit.Number(4, 12)
	samples := make([]BiometricSample, 0, count)

	// Samples cover the window since roughly an hour ago, oldest first.
	for i := 0; i < count; i++ {
		offset := time.Duration(count-i) * time.Hour / time.Duration(count+1)
		sample := BiometricSample{RecordedAt: now.Add(-offset)}

		if device.HasCapability(CapabilityHeartRate) {
			sample.HeartRate = gofakeit.Number(52, 140)
		}
		if device.HasCapability(CapabilityActivity) {
			sample.Steps = gofakeit.Number(0, 1800)
			sample.Calories = gofakeit.Float64Range(5, 120)
		}
		if device.HasCapability(CapabilitySleep) {
			sample.SleepMinutes = gofakeit.Number(0, 30)
		}

		samples = append(samples, sample)
	}

	payload := &BiometricPayload{
		DeviceID:     device.ID,
		DeviceType:   device.Type,
		CollectedAt:  now,
		BatteryLevel: gofakeit.Number(15, 100),
		Samples:      samples,
	}

	v.logger.Debug().
		Str("device_id", device.ID).
		Str("type", string(device.Type)).
		Int("samples", len(samples)).
		Msg("simulated biometric fetch")

	return payload, nil
}

// Teardown logs the release; the simulation has no vendor session to close.
func (v *SimulatedVendor) Teardown(_ context.Context, device *Device) error {
	v.logger.Debug().
		Str("device_id", device.ID).
		Str("type", string(device.Type)).
		Msg("simulated vendor teardown")
	return nil
}

var _ VendorClient = (*SimulatedVendor)(nil)
