package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ConnectParams describes the device being connected.
type ConnectParams struct {
	UserID string
	Type   Type
	Name   string
}

// StatusView is the read-only status projection for one device.
type StatusView struct {
	DeviceID       string `json:"device_id"`
	Type           Type   `json:"type"`
	Name           string `json:"name"`
	Status         Status `json:"status"`
	BatteryLevel   *int   `json:"battery_level"`
	LastSync       string `json:"last_sync"`
	SyncInProgress bool   `json:"sync_in_progress"`
}

// ManagerConfig holds the manager's dependencies.
type ManagerConfig struct {
	// Registry owns connected-device state (required).
	Registry Registry

	// Vendor performs vendor-side teardown on disconnect (required).
	Vendor VendorClient

	// Logger for manager operations.
	Logger zerolog.Logger
}

// Manager handles device connection lifecycle. Connection state lives
// entirely in the registry; the manager enforces the type whitelist and the
// teardown-then-remove disconnect contract.
type Manager struct {
	registry Registry
	vendor   VendorClient
	logger   zerolog.Logger
}

// NewManager creates a device connection manager.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{
		registry: cfg.Registry,
		vendor:   cfg.Vendor,
		logger:   cfg.Logger,
	}
}

// Connect validates the device type and inserts the device. An invalid type
// fails before any registry mutation; a duplicate ID fails with
// ErrAlreadyConnected.
func (m *Manager) Connect(ctx context.Context, deviceID string, params ConnectParams) (*Device, error) {
	if !params.Type.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, params.Type)
	}

	now := time.Now().UTC()
	device := &Device{
		ID:           deviceID,
		UserID:       params.UserID,
		Type:         params.Type,
		Name:         params.Name,
		Status:       StatusConnected,
		Capabilities: CapabilitiesFor(params.Type),
		ConnectedAt:  now,
		UpdatedAt:    now,
	}

	if err := m.registry.Insert(ctx, device); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("device_id", deviceID).
		Str("user_id", params.UserID).
		Str("type", string(params.Type)).
		Msg("device connected")

	return copyDevice(device), nil
}

// Disconnect tears down the vendor session and removes the device. The
// removal happens even when teardown fails; local state is authoritative
// over vendor state. A teardown failure is still reported to the caller.
func (m *Manager) Disconnect(ctx context.Context, deviceID string) error {
	device, err := m.registry.Get(ctx, deviceID)
	if err != nil {
		return err
	}

	teardownErr := m.vendor.Teardown(ctx, device)

	if err := m.registry.Remove(ctx, deviceID); err != nil && !errors.Is(err, ErrNotConnected) {
		m.logger.Error().Err(err).
			Str("device_id", deviceID).
			Msg("failed to remove device from registry")
		return err
	}

	if teardownErr != nil {
		m.logger.Warn().Err(teardownErr).
			Str("device_id", deviceID).
			Msg("vendor teardown failed, device removed anyway")
		return fmt.Errorf("%w: %v", ErrTeardownFailed, teardownErr)
	}

	m.logger.Info().
		Str("device_id", deviceID).
		Msg("device disconnected")

	return nil
}

// Status returns the status projection for one device.
func (m *Manager) Status(ctx context.Context, deviceID string) (*StatusView, error) {
	device, err := m.registry.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		DeviceID:       device.ID,
		Type:           device.Type,
		Name:           device.Name,
		Status:         device.Status,
		BatteryLevel:   device.BatteryLevel,
		LastSync:       humanizeSince(device.LastSync, time.Now()),
		SyncInProgress: device.SyncInProgress,
	}, nil
}

// Devices returns all connected devices owned by a user.
func (m *Manager) Devices(ctx context.Context, userID string) ([]*Device, error) {
	return m.registry.ListByUser(ctx, userID)
}

// Cleanup disconnects every connected device. Individual failures are logged
// and do not stop the pass; a second call finds an empty registry and does
// nothing.
func (m *Manager) Cleanup(ctx context.Context) {
	devices, err := m.registry.ListAll(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("cleanup could not list devices")
		return
	}

	for _, device := range devices {
		if err := m.Disconnect(ctx, device.ID); err != nil && !errors.Is(err, ErrNotConnected) {
			m.logger.Warn().Err(err).
				Str("device_id", device.ID).
				Msg("cleanup disconnect failed")
		}
	}

	if len(devices) > 0 {
		m.logger.Info().Int("devices", len(devices)).Msg("all devices disconnected")
	}
}
