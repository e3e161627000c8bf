package device_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalsentry/vitalsentry/internal/device"
	"github.com/vitalsentry/vitalsentry/internal/notify"
)

type fakeSink struct {
	mu       sync.Mutex
	err      error
	payloads []*device.BiometricPayload
}

func (s *fakeSink) Process(_ context.Context, payload *device.BiometricPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSink) processed() []*device.BiometricPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*device.BiometricPayload(nil), s.payloads...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	err      error
	payloads []notify.Payload
}

func (n *fakeNotifier) Send(_ context.Context, _ string, payload notify.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
	return n.err
}

func (n *fakeNotifier) sent() []notify.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Payload(nil), n.payloads...)
}

type engineHarness struct {
	engine   *device.SyncEngine
	registry *device.InMemoryRegistry
	vendor   *fakeVendor
	sink     *fakeSink
	notifier *fakeNotifier
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	registry := device.NewInMemoryRegistry()
	vendor := &fakeVendor{}
	sink := &fakeSink{}
	notifier := &fakeNotifier{}

	engine, err := device.NewSyncEngine(device.SyncEngineConfig{
		Registry:      registry,
		Vendor:        vendor,
		Sink:          sink,
		Notifier:      notifier,
		Logger:        zerolog.Nop(),
		SweepInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Cleanup)

	return &engineHarness{
		engine:   engine,
		registry: registry,
		vendor:   vendor,
		sink:     sink,
		notifier: notifier,
	}
}

func (h *engineHarness) connect(t *testing.T, id string, deviceType device.Type) {
	t.Helper()
	d := newDevice(id, "user-a", deviceType)
	d.Name = "Test Watch"
	require.NoError(t, h.registry.Insert(context.Background(), d))
}

func TestSyncEngine_Synchronize(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	ctx := context.Background()

	result, err := h.engine.Synchronize(ctx, "dev-1")
	require.NoError(t, err)

	assert.Equal(t, "dev-1", result.DeviceID)
	assert.Equal(t, device.TypeApple, result.DeviceType)
	assert.Equal(t, 1, result.SampleCount)
	assert.Equal(t, 80, result.BatteryLevel)
	assert.WithinDuration(t, time.Now(), result.SyncedAt, time.Second)
	assert.NotZero(t, result.SessionID)

	// Registry state reflects the completed sync
	stored, err := h.registry.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, stored.SyncInProgress)
	require.NotNil(t, stored.LastSync)
	assert.Equal(t, result.SyncedAt, *stored.LastSync)
	require.NotNil(t, stored.BatteryLevel)
	assert.Equal(t, 80, *stored.BatteryLevel)

	// The sink received the fetched payload
	payloads := h.sink.processed()
	require.Len(t, payloads, 1)
	assert.Equal(t, "dev-1", payloads[0].DeviceID)

	stats := h.engine.Stats()
	assert.Equal(t, int64(1), stats.Syncs)
	assert.Equal(t, int64(0), stats.Failures)
	assert.Equal(t, result.SyncedAt, stats.LastSyncAt)
}

func TestSyncEngine_Synchronize_NotConnected(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.Synchronize(context.Background(), "ghost")
	assert.ErrorIs(t, err, device.ErrNotConnected)
}

func TestSyncEngine_Synchronize_AlreadyInProgress(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	ctx := context.Background()

	// Another sync holds the claim
	_, err := h.registry.BeginSync(ctx, "dev-1")
	require.NoError(t, err)

	_, err = h.engine.Synchronize(ctx, "dev-1")
	assert.ErrorIs(t, err, device.ErrSyncInProgress)
}

func TestSyncEngine_Synchronize_VendorFailure(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	h.vendor.fetchErr = errors.New("vendor timeout")
	ctx := context.Background()

	_, err := h.engine.Synchronize(ctx, "dev-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrSyncFailed)
	assert.Contains(t, err.Error(), "vendor timeout")

	// Failure leaves sync state untouched but releases the claim
	stored, err := h.registry.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, stored.SyncInProgress)
	assert.Nil(t, stored.LastSync)
	assert.Nil(t, stored.BatteryLevel)

	assert.Empty(t, h.sink.processed())
	assert.Empty(t, h.notifier.sent())

	stats := h.engine.Stats()
	assert.Equal(t, int64(0), stats.Syncs)
	assert.Equal(t, int64(1), stats.Failures)
}

func TestSyncEngine_Synchronize_SinkFailure(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	h.sink.err = errors.New("ingest rejected payload")
	ctx := context.Background()

	_, err := h.engine.Synchronize(ctx, "dev-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrSyncFailed)
	assert.Contains(t, err.Error(), "ingest rejected payload")

	stored, err := h.registry.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, stored.SyncInProgress)
	assert.Nil(t, stored.LastSync, "a rejected payload does not count as a sync")
}

func TestSyncEngine_Synchronize_ClaimReleasedAfterFailure(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	ctx := context.Background()

	h.vendor.fetchErr = errors.New("flaky vendor")
	_, err := h.engine.Synchronize(ctx, "dev-1")
	require.ErrorIs(t, err, device.ErrSyncFailed)

	// The next attempt proceeds; the claim did not leak
	h.vendor.fetchErr = nil
	result, err := h.engine.Synchronize(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", result.DeviceID)
}

func TestSyncEngine_Synchronize_Notification(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)

	_, err := h.engine.Synchronize(context.Background(), "dev-1")
	require.NoError(t, err)

	sent := h.notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.KindSyncComplete, sent[0].Kind)
	assert.Equal(t, "Sync complete", sent[0].Title)
	assert.Equal(t, "Test Watch synced 1 samples", sent[0].Body)
	assert.Equal(t, "dev-1", sent[0].DeviceID)
}

func TestSyncEngine_Synchronize_NotifierFailureTolerated(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	h.notifier.err = errors.New("push gateway down")

	result, err := h.engine.Synchronize(context.Background(), "dev-1")
	require.NoError(t, err, "notification delivery is best effort")
	assert.NotNil(t, result)
}

func TestSyncEngine_Synchronize_NoNotifier(t *testing.T) {
	registry := device.NewInMemoryRegistry()
	engine, err := device.NewSyncEngine(device.SyncEngineConfig{
		Registry: registry,
		Vendor:   &fakeVendor{},
		Sink:     &fakeSink{},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(engine.Cleanup)

	require.NoError(t, registry.Insert(context.Background(), newDevice("dev-1", "user-a", device.TypeApple)))

	_, err = engine.Synchronize(context.Background(), "dev-1")
	assert.NoError(t, err)
}

func TestSyncEngine_SyncAll(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	h.connect(t, "dev-2", device.TypeGarmin)
	h.connect(t, "dev-3", device.TypeFitbit)
	ctx := context.Background()

	// dev-2 fails at the vendor; dev-3 is mid-sync elsewhere
	h.vendor.failFor = map[string]error{"dev-2": errors.New("vendor 500")}
	_, err := h.registry.BeginSync(ctx, "dev-3")
	require.NoError(t, err)

	summary := h.engine.SyncAll(ctx)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Synced)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)

	stored, err := h.registry.Get(ctx, "dev-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSync)
}

func TestSyncEngine_SyncAll_Empty(t *testing.T) {
	h := newEngineHarness(t)

	summary := h.engine.SyncAll(context.Background())

	assert.Equal(t, 0, summary.Total)
	assert.Equal(t, 0, summary.Synced)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
}

func TestSyncEngine_SyncAll_ContextCanceled(t *testing.T) {
	h := newEngineHarness(t)
	h.connect(t, "dev-1", device.TypeApple)
	h.connect(t, "dev-2", device.TypeGarmin)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := h.engine.SyncAll(ctx)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 0, summary.Synced, "a canceled context stops the sweep")
	assert.Empty(t, h.sink.processed())
}

func TestSyncEngine_StartAndCleanup(t *testing.T) {
	h := newEngineHarness(t)

	assert.False(t, h.engine.Stats().SchedulerRunning)

	h.engine.Start(context.Background())
	h.engine.Start(context.Background())
	assert.True(t, h.engine.Stats().SchedulerRunning)

	h.engine.Cleanup()
	h.engine.Cleanup()
	assert.False(t, h.engine.Stats().SchedulerRunning)
}
