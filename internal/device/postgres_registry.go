package device

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry is a PostgreSQL implementation of Registry.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry creates a new PostgreSQL device registry.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

const deviceColumns = `id, user_id, type, name, status, capabilities, last_sync, sync_in_progress, battery_level, connected_at, updated_at`

// EnsureSchema creates the devices table if it does not exist.
func (r *PostgresRegistry) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS devices (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			type             TEXT NOT NULL,
			name             TEXT NOT NULL,
			status           TEXT NOT NULL,
			capabilities     TEXT[] NOT NULL DEFAULT '{}',
			last_sync        TIMESTAMPTZ,
			sync_in_progress BOOLEAN NOT NULL DEFAULT FALSE,
			battery_level    INTEGER,
			connected_at     TIMESTAMPTZ NOT NULL,
			updated_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS devices_user_id_idx ON devices (user_id);
	`)
	return err
}

// Get retrieves a connected device by ID.
func (r *PostgresRegistry) Get(ctx context.Context, deviceID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE id = $1
	`

	device, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	return device, nil
}

// ListByUser retrieves all connected devices owned by a user.
func (r *PostgresRegistry) ListByUser(ctx context.Context, userID string) ([]*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE user_id = $1
		ORDER BY connected_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDevices(rows)
}

// ListAll retrieves every connected device.
func (r *PostgresRegistry) ListAll(ctx context.Context) ([]*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		ORDER BY connected_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDevices(rows)
}

// Insert adds a newly connected device.
func (r *PostgresRegistry) Insert(ctx context.Context, device *Device) error {
	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.pool.Exec(ctx, query,
		device.ID,
		device.UserID,
		string(device.Type),
		device.Name,
		string(device.Status),
		capabilityStrings(device.Capabilities),
		device.LastSync,
		device.SyncInProgress,
		device.BatteryLevel,
		device.ConnectedAt,
		device.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrAlreadyConnected
	}

	return nil
}

// Remove deletes a device.
func (r *PostgresRegistry) Remove(ctx context.Context, deviceID string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, deviceID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotConnected
	}

	return nil
}

// BeginSync atomically claims the device for a sync. The claim is a
// conditional update, so concurrent claims resolve in the database.
func (r *PostgresRegistry) BeginSync(ctx context.Context, deviceID string) (*Device, error) {
	query := `
		UPDATE devices
		SET sync_in_progress = TRUE, updated_at = now()
		WHERE id = $1 AND sync_in_progress = FALSE
		RETURNING ` + deviceColumns

	device, err := scanDevice(r.pool.QueryRow(ctx, query, deviceID))
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// No row claimed: either the device is mid-sync or it is gone.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM devices WHERE id = $1)`, deviceID,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrSyncInProgress
	}
	return nil, ErrNotConnected
}

// FinishSync releases the sync claim.
func (r *PostgresRegistry) FinishSync(ctx context.Context, deviceID string, completion *SyncCompletion) error {
	query := `
		UPDATE devices
		SET sync_in_progress = FALSE, updated_at = now()
		WHERE id = $1
	`
	args := []any{deviceID}

	if completion != nil {
		query = `
			UPDATE devices
			SET sync_in_progress = FALSE, last_sync = $2, battery_level = COALESCE($3, battery_level), updated_at = now()
			WHERE id = $1
		`
		args = append(args, completion.SyncedAt, completion.BatteryLevel)
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotConnected
	}

	return nil
}

func scanDevice(row pgx.Row) (*Device, error) {
	var (
		device Device
		caps   []string
	)

	err := row.Scan(
		&device.ID,
		&device.UserID,
		&device.Type,
		&device.Name,
		&device.Status,
		&caps,
		&device.LastSync,
		&device.SyncInProgress,
		&device.BatteryLevel,
		&device.ConnectedAt,
		&device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	device.Capabilities = make([]Capability, 0, len(caps))
	for _, c := range caps {
		device.Capabilities = append(device.Capabilities, Capability(c))
	}

	return &device, nil
}

func collectDevices(rows pgx.Rows) ([]*Device, error) {
	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return devices, nil
}

func capabilityStrings(caps []Capability) []string {
	out := make([]string, 0, len(caps))
	for _, c := range caps {
		out = append(out, string(c))
	}
	return out
}

// Ensure PostgresRegistry implements Registry interface.
var _ Registry = (*PostgresRegistry)(nil)
