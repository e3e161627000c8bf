package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/notify"
	"github.com/vitalsentry/vitalsentry/internal/schedule"
)

// SyncResult summarizes one successful device sync.
type SyncResult struct {
	SessionID    uuid.UUID
	DeviceID     string
	DeviceType   Type
	SampleCount  int
	BatteryLevel int
	SyncedAt     time.Time
	Duration     time.Duration
}

// SyncEngineConfig holds the engine's dependencies.
type SyncEngineConfig struct {
	// Registry owns device state and the per-device sync claim (required).
	Registry Registry

	// Vendor pulls biometric data (required).
	Vendor VendorClient

	// Sink receives fetched payloads (required).
	Sink Sink

	// Notifier delivers the sync-complete notification. Optional.
	Notifier notify.Notifier

	// Logger for engine operations.
	Logger zerolog.Logger

	// SweepInterval between periodic sync sweeps (default: 15 minutes).
	SweepInterval time.Duration
}

// SyncEngine synchronizes biometric data from connected devices. Each device
// is single-flight: a second sync while one is in flight is rejected
// immediately, never queued. Whatever happens during a sync, the device's
// in-progress claim is released before the call returns.
type SyncEngine struct {
	registry Registry
	vendor   VendorClient
	sink     Sink
	notifier notify.Notifier
	logger   zerolog.Logger

	sched   *schedule.Scheduler
	metrics *syncMetrics

	statsMu sync.RWMutex
	stats   syncStats
}

type syncStats struct {
	syncs      int64
	failures   int64
	lastSyncAt time.Time
}

// SyncStats is a point-in-time snapshot of engine activity.
type SyncStats struct {
	Syncs            int64     `json:"syncs"`
	Failures         int64     `json:"failures"`
	LastSyncAt       time.Time `json:"last_sync_at"`
	SchedulerRunning bool      `json:"scheduler_running"`
}

// NewSyncEngine creates a sync engine.
func NewSyncEngine(cfg SyncEngineConfig) (*SyncEngine, error) {
	sweepInterval := cfg.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = 15 * time.Minute
	}

	metrics, err := newSyncMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating sync metrics: %w", err)
	}

	e := &SyncEngine{
		registry: cfg.Registry,
		vendor:   cfg.Vendor,
		sink:     cfg.Sink,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		metrics:  metrics,
	}
	e.sched = schedule.New("device-sync", sweepInterval, func(ctx context.Context) {
		e.SyncAll(ctx)
	}, cfg.Logger)

	return e, nil
}

// Synchronize pulls biometric data for one device and forwards it to the
// sink. If a sync for the device is already in flight the call fails
// immediately with ErrSyncInProgress. On success the device's lastSync and
// battery level are updated; on failure they are left untouched.
func (e *SyncEngine) Synchronize(ctx context.Context, deviceID string) (*SyncResult, error) {
	device, err := e.registry.BeginSync(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var completion *SyncCompletion
	defer func() {
		// The claim must release even when ctx is already canceled.
		releaseCtx := context.WithoutCancel(ctx)
		if err := e.registry.FinishSync(releaseCtx, deviceID, completion); err != nil && !errors.Is(err, ErrNotConnected) {
			e.logger.Error().Err(err).
				Str("device_id", deviceID).
				Msg("failed to release sync claim")
		}
	}()

	started := time.Now()

	payload, err := e.vendor.FetchBiometrics(ctx, device)
	if err != nil {
		e.recordFailure(ctx, device.Type)
		e.logger.Warn().Err(err).
			Str("device_id", deviceID).
			Str("type", string(device.Type)).
			Msg("vendor fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	if err := e.sink.Process(ctx, payload); err != nil {
		e.recordFailure(ctx, device.Type)
		e.logger.Warn().Err(err).
			Str("device_id", deviceID).
			Msg("sink rejected payload")
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	syncedAt := time.Now().UTC()
	battery := payload.BatteryLevel
	completion = &SyncCompletion{SyncedAt: syncedAt, BatteryLevel: &battery}

	duration := time.Since(started)
	e.recordSuccess(ctx, device.Type, syncedAt, duration)

	e.notifyComplete(ctx, device, payload)

	e.logger.Info().
		Str("device_id", deviceID).
		Str("type", string(device.Type)).
		Int("samples", len(payload.Samples)).
		Dur("duration", duration).
		Msg("device synchronized")

	return &SyncResult{
		SessionID:    uuid.New(),
		DeviceID:     deviceID,
		DeviceType:   device.Type,
		SampleCount:  len(payload.Samples),
		BatteryLevel: payload.BatteryLevel,
		SyncedAt:     syncedAt,
		Duration:     duration,
	}, nil
}

// SweepSummary summarizes one pass over all connected devices.
type SweepSummary struct {
	StartedAt time.Time
	Duration  time.Duration
	Total     int
	Synced    int
	Skipped   int
	Failed    int
}

// SyncAll synchronizes every connected device in turn. Devices already
// syncing are skipped; one device's failure never stops the sweep.
func (e *SyncEngine) SyncAll(ctx context.Context) *SweepSummary {
	summary := &SweepSummary{StartedAt: time.Now()}

	devices, err := e.registry.ListAll(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("sync sweep could not list devices")
		summary.Duration = time.Since(summary.StartedAt)
		return summary
	}
	summary.Total = len(devices)

	for _, device := range devices {
		if ctx.Err() != nil {
			break
		}

		_, err := e.Synchronize(ctx, device.ID)
		switch {
		case err == nil:
			summary.Synced++
		case errors.Is(err, ErrSyncInProgress), errors.Is(err, ErrNotConnected):
			summary.Skipped++
			e.logger.Debug().
				Str("device_id", device.ID).
				Msg("device skipped during sweep")
		default:
			summary.Failed++
		}
	}

	summary.Duration = time.Since(summary.StartedAt)

	e.logger.Info().
		Int("total", summary.Total).
		Int("synced", summary.Synced).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("sync sweep completed")

	return summary
}

// Start arms the periodic sync sweep. Idempotent.
func (e *SyncEngine) Start(ctx context.Context) {
	e.sched.Start(ctx)
}

// Cleanup stops the periodic sweep. Safe to call more than once.
func (e *SyncEngine) Cleanup() {
	e.sched.Stop()
}

// Stats returns a snapshot of engine activity.
func (e *SyncEngine) Stats() SyncStats {
	e.statsMu.RLock()
	s := e.stats
	e.statsMu.RUnlock()

	return SyncStats{
		Syncs:            s.syncs,
		Failures:         s.failures,
		LastSyncAt:       s.lastSyncAt,
		SchedulerRunning: e.sched.Running(),
	}
}

func (e *SyncEngine) recordSuccess(ctx context.Context, t Type, syncedAt time.Time, duration time.Duration) {
	e.statsMu.Lock()
	e.stats.syncs++
	e.stats.lastSyncAt = syncedAt
	e.statsMu.Unlock()

	e.metrics.syncTotal.Add(ctx, 1, deviceTypeAttr(t))
	e.metrics.syncDuration.Record(ctx, duration.Seconds(), deviceTypeAttr(t))
}

func (e *SyncEngine) recordFailure(ctx context.Context, t Type) {
	e.statsMu.Lock()
	e.stats.failures++
	e.statsMu.Unlock()

	e.metrics.syncFailures.Add(ctx, 1, deviceTypeAttr(t))
}

func (e *SyncEngine) notifyComplete(ctx context.Context, device *Device, payload *BiometricPayload) {
	if e.notifier == nil {
		return
	}

	note := notify.Payload{
		ID:       uuid.New(),
		Kind:     notify.KindSyncComplete,
		Title:    "Sync complete",
		Body:     fmt.Sprintf("%s synced %d samples", device.Name, len(payload.Samples)),
		DeviceID: device.ID,
		SentAt:   time.Now().UTC(),
	}

	if err := e.notifier.Send(ctx, device.ID, note); err != nil {
		e.logger.Debug().Err(err).
			Str("device_id", device.ID).
			Msg("sync notification failed")
	}
}
