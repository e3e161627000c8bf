package device

import (
	"context"
	"time"
)

// SyncCompletion carries the outcome of a successful sync into the registry.
// A nil completion clears the in-progress flag without touching sync state.
type SyncCompletion struct {
	SyncedAt     time.Time
	BatteryLevel *int
}

// Registry defines the interface for connected-device persistence. It is the
// single owner of device state; connection invariants (no duplicate connect,
// no concurrent sync per device) are enforced here so no caller can corrupt
// the map directly.
type Registry interface {
	// Get retrieves a connected device by ID.
	Get(ctx context.Context, deviceID string) (*Device, error)

	// ListByUser retrieves all connected devices owned by a user.
	ListByUser(ctx context.Context, userID string) ([]*Device, error)

	// ListAll retrieves every connected device.
	ListAll(ctx context.Context) ([]*Device, error)

	// Insert adds a newly connected device.
	// Returns ErrAlreadyConnected if the ID is taken.
	Insert(ctx context.Context, device *Device) error

	// Remove deletes a device. Returns ErrNotConnected if absent.
	Remove(ctx context.Context, deviceID string) error

	// BeginSync atomically claims the device for a sync, returning its
	// current state. Returns ErrSyncInProgress if a sync already holds the
	// claim, ErrNotConnected if the device is absent.
	BeginSync(ctx context.Context, deviceID string) (*Device, error)

	// FinishSync releases the sync claim. With a non-nil completion it also
	// records the sync time and battery level.
	FinishSync(ctx context.Context, deviceID string, completion *SyncCompletion) error
}
