// Package monitor tracks locations and keeps their environmental state
// current. A single periodic sweep refreshes every tracked location; alerts
// derived from new readings are handed to the alert router.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/conditions"
	"github.com/vitalsentry/vitalsentry/internal/risk"
	"github.com/vitalsentry/vitalsentry/internal/schedule"
)

// Config holds configuration for the monitor.
type Config struct {
	// Client fetches environmental readings (required).
	Client *conditions.Client

	// Assessor derives health impacts from readings (required).
	Assessor *risk.Assessor

	// Router receives the alerts from each successful update (required).
	Router *alert.Router

	// Logger for monitor operations.
	Logger zerolog.Logger

	// PollInterval between sweeps (default: 60 minutes).
	PollInterval time.Duration

	// FetchTimeout bounds each location's fetch (default: 15 seconds).
	FetchTimeout time.Duration

	// Concurrency is the number of sweep workers (default: 3).
	Concurrency int
}

// Monitor owns the tracked-location registry and the sweep scheduler.
type Monitor struct {
	client       *conditions.Client
	assessor     *risk.Assessor
	router       *alert.Router
	logger       zerolog.Logger
	fetchTimeout time.Duration
	concurrency  int

	registry *locationRegistry
	sched    *schedule.Scheduler
	metrics  *sweepMetrics

	statsMu sync.RWMutex
	stats   sweepStats
}

type sweepStats struct {
	sweeps            int64
	locationsUpdated  int64
	locationsFailed   int64
	lastSweepAt       time.Time
	lastSweepDuration time.Duration
}

// Stats is a point-in-time snapshot of monitor activity.
type Stats struct {
	TrackedLocations  int           `json:"tracked_locations"`
	Sweeps            int64         `json:"sweeps"`
	LocationsUpdated  int64         `json:"locations_updated"`
	LocationsFailed   int64         `json:"locations_failed"`
	LastSweepAt       time.Time     `json:"last_sweep_at"`
	LastSweepDuration time.Duration `json:"last_sweep_duration"`
	SchedulerRunning  bool          `json:"scheduler_running"`
}

// New creates a monitor.
func New(cfg Config) (*Monitor, error) {
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 60 * time.Minute
	}

	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout == 0 {
		fetchTimeout = 15 * time.Second
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	metrics, err := newSweepMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating monitor metrics: %w", err)
	}

	m := &Monitor{
		client:       cfg.Client,
		assessor:     cfg.Assessor,
		router:       cfg.Router,
		logger:       cfg.Logger,
		fetchTimeout: fetchTimeout,
		concurrency:  concurrency,
		registry:     newLocationRegistry(),
		metrics:      metrics,
	}
	m.sched = schedule.New("location-sweep", pollInterval, func(ctx context.Context) {
		m.sweep(ctx)
	}, cfg.Logger)

	return m, nil
}

// TrackLocation inserts or replaces the tracked entry for id. It mutates the
// registry only; no fetch is triggered.
func (m *Monitor) TrackLocation(id string, spec LocationSpec) *TrackedLocation {
	loc, replaced := m.registry.track(id, spec)
	if !replaced {
		m.metrics.trackedCount.Add(context.Background(), 1)
	}

	m.logger.Info().
		Str("location_id", id).
		Str("name", spec.Name).
		Bool("replaced", replaced).
		Int("users", len(loc.UserIDs)).
		Int("devices", len(loc.DeviceIDs)).
		Msg("location tracked")

	return loc
}

// UntrackLocation removes the tracked entry for id.
func (m *Monitor) UntrackLocation(id string) error {
	if !m.registry.untrack(id) {
		return fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}
	m.metrics.trackedCount.Add(context.Background(), -1)
	m.logger.Info().Str("location_id", id).Msg("location untracked")
	return nil
}

// Location returns a copy of the tracked entry for id.
func (m *Monitor) Location(id string) (*TrackedLocation, error) {
	loc, ok := m.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}
	return loc, nil
}

// Locations returns copies of all tracked entries.
func (m *Monitor) Locations() []*TrackedLocation {
	return m.registry.list()
}

// UpdateLocation fetches fresh conditions for one location, stores the
// reading and its derived alerts, and routes the alerts. On a fetch failure
// the previous conditions are left untouched and the error is returned.
func (m *Monitor) UpdateLocation(ctx context.Context, id string) (*conditions.Reading, error) {
	loc, ok := m.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	reading, err := m.client.Fetch(fetchCtx, loc.Coordinates.Lat, loc.Coordinates.Lon)
	if err != nil {
		m.metrics.updateFailures.Add(ctx, 1)
		m.logger.Warn().Err(err).
			Str("location_id", id).
			Msg("location update failed")
		return nil, err
	}

	assessment := m.assessor.Assess(reading)
	if !m.registry.storeResult(id, reading, assessment.Alerts) {
		// Untracked while the fetch was in flight; drop the result.
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, id)
	}

	m.metrics.updateTotal.Add(ctx, 1)
	m.logger.Debug().
		Str("location_id", id).
		Float64("temperature", reading.Weather.Temperature).
		Int("aqi", reading.AirQuality.AQI).
		Int("alerts", len(assessment.Alerts)).
		Msg("location updated")

	m.router.Trigger(ctx, routeTarget(loc), assessment.Alerts)

	return reading, nil
}

// UpdateAll sweeps every tracked location and arms the periodic scheduler if
// it is not already running. Individual failures are recorded in the result
// and never abort the sweep.
func (m *Monitor) UpdateAll(ctx context.Context) *SweepResult {
	result := m.sweep(ctx)

	// The scheduler outlives the caller; Cleanup is its cancellation point.
	m.sched.Start(context.Background())

	return result
}

// Cleanup stops the scheduler and releases all tracked state. Safe to call
// more than once.
func (m *Monitor) Cleanup() {
	m.sched.Stop()
	removed := m.registry.clear()
	if removed > 0 {
		m.metrics.trackedCount.Add(context.Background(), -int64(removed))
	}
	m.logger.Info().Int("released", removed).Msg("monitor cleaned up")
}

// Stats returns a snapshot of monitor activity.
func (m *Monitor) Stats() Stats {
	m.statsMu.RLock()
	s := m.stats
	m.statsMu.RUnlock()

	return Stats{
		TrackedLocations:  m.registry.count(),
		Sweeps:            s.sweeps,
		LocationsUpdated:  s.locationsUpdated,
		LocationsFailed:   s.locationsFailed,
		LastSweepAt:       s.lastSweepAt,
		LastSweepDuration: s.lastSweepDuration,
		SchedulerRunning:  m.sched.Running(),
	}
}

// SweepResult summarizes one pass over all tracked locations.
type SweepResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Total      int
	Updated    int
	Failed     int
	Errors     []SweepError
}

// SweepError records one location's failure within a sweep.
type SweepError struct {
	LocationID string
	Reason     string
}

type sweepOutcome struct {
	locationID string
	err        error
}

// sweep runs the worker pool over the current location set.
func (m *Monitor) sweep(ctx context.Context) *SweepResult {
	ids := m.registry.ids()
	result := &SweepResult{
		StartedAt: time.Now(),
		Total:     len(ids),
	}

	m.logger.Info().
		Int("locations", len(ids)).
		Int("concurrency", m.concurrency).
		Msg("starting location sweep")

	jobs := make(chan string, len(ids))
	outcomes := make(chan sweepOutcome, len(ids))

	var wg sync.WaitGroup
	for i := 0; i < m.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.sweepWorker(ctx, jobs, outcomes)
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		if outcome.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SweepError{
				LocationID: outcome.locationID,
				Reason:     outcome.err.Error(),
			})
		} else {
			result.Updated++
		}
	}

	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	m.recordSweep(ctx, result)

	m.logger.Info().
		Dur("duration", result.Duration).
		Int("updated", result.Updated).
		Int("failed", result.Failed).
		Msg("location sweep completed")

	return result
}

func (m *Monitor) sweepWorker(ctx context.Context, jobs <-chan string, outcomes chan<- sweepOutcome) {
	for id := range jobs {
		select {
		case <-ctx.Done():
			outcomes <- sweepOutcome{locationID: id, err: ctx.Err()}
		default:
			_, err := m.UpdateLocation(ctx, id)
			outcomes <- sweepOutcome{locationID: id, err: err}
		}
	}
}

func (m *Monitor) recordSweep(ctx context.Context, result *SweepResult) {
	m.statsMu.Lock()
	m.stats.sweeps++
	m.stats.locationsUpdated += int64(result.Updated)
	m.stats.locationsFailed += int64(result.Failed)
	m.stats.lastSweepAt = result.FinishedAt
	m.stats.lastSweepDuration = result.Duration
	m.statsMu.Unlock()

	m.metrics.sweepTotal.Add(ctx, 1)
	m.metrics.sweepDuration.Record(ctx, result.Duration.Seconds())
}

// routeTarget projects a location copy into the router's input shape.
func routeTarget(loc *TrackedLocation) alert.Target {
	return alert.Target{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		UserIDs:      loc.UserIDs,
		DeviceIDs:    loc.DeviceIDs,
		Preferences:  loc.Preferences,
	}
}
