package device

import (
	"context"
	"sync"
	"time"
)

// InMemoryRegistry is an in-memory implementation of Registry. It backs the
// daemon when no database is configured, and tests.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	devices map[string]*Device // keyed by device ID
}

// NewInMemoryRegistry creates a new in-memory device registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		devices: make(map[string]*Device),
	}
}

// Get retrieves a connected device by ID.
func (r *InMemoryRegistry) Get(_ context.Context, deviceID string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrNotConnected
	}

	return copyDevice(device), nil
}

// ListByUser retrieves all connected devices owned by a user.
func (r *InMemoryRegistry) ListByUser(_ context.Context, userID string) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var items []*Device
	for _, device := range r.devices {
		if device.UserID == userID {
			items = append(items, copyDevice(device))
		}
	}

	return items, nil
}

// ListAll retrieves every connected device.
func (r *InMemoryRegistry) ListAll(_ context.Context) ([]*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Device, 0, len(r.devices))
	for _, device := range r.devices {
		items = append(items, copyDevice(device))
	}

	return items, nil
}

// Insert adds a newly connected device.
func (r *InMemoryRegistry) Insert(_ context.Context, device *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[device.ID]; ok {
		return ErrAlreadyConnected
	}

	r.devices[device.ID] = copyDevice(device)
	return nil
}

// Remove deletes a device.
func (r *InMemoryRegistry) Remove(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return ErrNotConnected
	}

	delete(r.devices, deviceID)
	return nil
}

// BeginSync atomically claims the device for a sync. The check and the flag
// write happen under one lock, so two concurrent claims can never both win.
func (r *InMemoryRegistry) BeginSync(_ context.Context, deviceID string) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrNotConnected
	}
	if device.SyncInProgress {
		return nil, ErrSyncInProgress
	}

	device.SyncInProgress = true
	device.UpdatedAt = time.Now().UTC()
	return copyDevice(device), nil
}

// FinishSync releases the sync claim.
func (r *InMemoryRegistry) FinishSync(_ context.Context, deviceID string, completion *SyncCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device, ok := r.devices[deviceID]
	if !ok {
		return ErrNotConnected
	}

	device.SyncInProgress = false
	device.UpdatedAt = time.Now().UTC()

	if completion != nil {
		syncedAt := completion.SyncedAt
		device.LastSync = &syncedAt
		if completion.BatteryLevel != nil {
			level := *completion.BatteryLevel
			device.BatteryLevel = &level
		}
	}

	return nil
}

// Ensure InMemoryRegistry implements Registry interface.
var _ Registry = (*InMemoryRegistry)(nil)
