// Package main provides the entrypoint for the VitalSentry monitor daemon.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/conditions"
	"github.com/vitalsentry/vitalsentry/internal/conditions/airvisual"
	"github.com/vitalsentry/vitalsentry/internal/conditions/openweather"
	"github.com/vitalsentry/vitalsentry/internal/config"
	"github.com/vitalsentry/vitalsentry/internal/database"
	"github.com/vitalsentry/vitalsentry/internal/device"
	"github.com/vitalsentry/vitalsentry/internal/monitor"
	"github.com/vitalsentry/vitalsentry/internal/notify"
	"github.com/vitalsentry/vitalsentry/internal/ops"
	"github.com/vitalsentry/vitalsentry/internal/provider/resilience"
	"github.com/vitalsentry/vitalsentry/internal/risk"
	"github.com/vitalsentry/vitalsentry/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "vitalsentry-monitor"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, _ := zerolog.ParseLevel(cfg.App.LogLevel) // validated by config
	log = log.Level(level)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Msg("starting VitalSentry monitor")

	ctx := context.Background()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.App.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// One resilient HTTP client per upstream so circuits trip independently
	weatherHTTP := resilience.NewClient(providerClientConfig(openweather.ProviderName, cfg.Provider))
	airHTTP := resilience.NewClient(providerClientConfig(airvisual.ProviderName, cfg.Provider))

	conditionsClient := conditions.NewClient(conditions.ClientConfig{
		Weather: openweather.NewClient(openweather.ClientConfig{
			APIKey:     cfg.Weather.APIKey,
			BaseURL:    cfg.Weather.BaseURL,
			HTTPClient: weatherHTTP,
			Logger:     log,
		}),
		AirQuality: airvisual.NewClient(airvisual.ClientConfig{
			APIKey:     cfg.AirQuality.APIKey,
			BaseURL:    cfg.AirQuality.BaseURL,
			HTTPClient: airHTTP,
			Logger:     log,
		}),
		Logger: log,
	})

	assessor := risk.NewAssessor(cfg.Thresholds.ToRisk())

	// Alert fan-out: in-process bus always, Pub/Sub when configured
	bus := alert.NewBus()
	publishers := []alert.Publisher{bus}

	var pubsubPublisher *alert.PubSubPublisher
	if cfg.PubSub.Enabled() {
		pubsubPublisher, err = alert.NewPubSubPublisher(ctx, alert.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			TopicName: cfg.PubSub.Topic,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub publisher")
		}
		publishers = append(publishers, pubsubPublisher)
		log.Info().
			Str("project", cfg.PubSub.ProjectID).
			Str("topic", cfg.PubSub.Topic).
			Msg("alert publishing enabled")
	}

	notifier := notify.NewLogNotifier(log)

	router := alert.NewRouter(alert.RouterConfig{
		Publishers: publishers,
		Notifier:   notifier,
		Logger:     log,
	})

	mon, err := monitor.New(monitor.Config{
		Client:       conditionsClient,
		Assessor:     assessor,
		Router:       router,
		Logger:       log,
		PollInterval: cfg.Monitor.PollInterval,
		FetchTimeout: cfg.Monitor.FetchTimeout,
		Concurrency:  cfg.Monitor.SweepConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create monitor")
	}

	// Device registry: Postgres when configured, in-memory otherwise
	var registry device.Registry
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database.ToDatabase(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		pgRegistry := device.NewPostgresRegistry(pool)
		if err := pgRegistry.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ensure device schema")
		}
		registry = pgRegistry
	} else {
		registry = device.NewInMemoryRegistry()
		log.Info().Msg("using in-memory device registry")
	}

	vendor := device.NewSimulatedVendor(log)

	var sink device.Sink
	if cfg.Sync.SinkEndpoint != "" {
		sink = device.NewHTTPSink(cfg.Sync.SinkEndpoint, nil, log)
		log.Info().
			Str("endpoint", cfg.Sync.SinkEndpoint).
			Msg("forwarding biometric payloads")
	} else {
		sink = device.NewLogSink(log)
	}

	manager := device.NewManager(device.ManagerConfig{
		Registry: registry,
		Vendor:   vendor,
		Logger:   log,
	})

	engine, err := device.NewSyncEngine(device.SyncEngineConfig{
		Registry:      registry,
		Vendor:        vendor,
		Sink:          sink,
		Notifier:      notifier,
		Logger:        log,
		SweepInterval: cfg.Sync.SweepInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sync engine")
	}

	seedDevices(ctx, log, manager, cfg.Sync)
	seedLocations(log, mon, cfg.Monitor)

	opsServer := ops.NewServer(ops.Config{
		Addr:         cfg.Ops.Addr,
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		RequestLimit: cfg.Ops.RequestLimit,
		RateWindow:   cfg.Ops.RateWindow,
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		Monitor:      mon,
		Engine:       engine,
		Providers:    []*resilience.Client{weatherHTTP, airHTTP},
		Bus:          bus,
	})

	go func() {
		if err := opsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("ops server error")
		}
	}()

	// The first sweep arms the periodic scheduler. Run it off the main
	// goroutine so signal handling is live immediately.
	go func() {
		result := mon.UpdateAll(context.Background())
		log.Info().
			Int("updated", result.Updated).
			Int("failed", result.Failed).
			Msg("initial location sweep finished")
	}()

	engine.Start(context.Background())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down monitor")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops server forced to shutdown")
	}

	mon.Cleanup()
	engine.Cleanup()

	if pubsubPublisher != nil {
		if err := pubsubPublisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub publisher")
		}
	}

	log.Info().Msg("monitor stopped")
}

// providerClientConfig applies the shared provider tuning to one upstream.
func providerClientConfig(name string, cfg config.ProviderConfig) resilience.ClientConfig {
	c := resilience.DefaultClientConfig(name)
	c.Timeout = cfg.Timeout
	c.MaxRetries = cfg.MaxRetries
	return c
}

// seedLocations tracks the configured locations, if any.
func seedLocations(log zerolog.Logger, mon *monitor.Monitor, cfg config.MonitorConfig) {
	specs, err := cfg.SeedLocations()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid seed locations")
	}

	for _, spec := range specs {
		mon.TrackLocation(uuid.New().String(), spec)
	}

	if len(specs) > 0 {
		log.Info().Int("locations", len(specs)).Msg("seed locations tracked")
	}
}

// seedDevices connects the configured devices, if any. Devices that survived
// a previous run in a persistent registry are left alone.
func seedDevices(ctx context.Context, log zerolog.Logger, manager *device.Manager, cfg config.SyncConfig) {
	seeds, err := cfg.SeedDevices()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid seed devices")
	}

	for _, seed := range seeds {
		_, err := manager.Connect(ctx, seed.ID, device.ConnectParams{
			UserID: seed.UserID,
			Type:   seed.Type,
			Name:   seed.Name,
		})
		switch {
		case errors.Is(err, device.ErrAlreadyConnected):
			log.Debug().Str("device_id", seed.ID).Msg("seed device already connected")
		case err != nil:
			log.Warn().Err(err).Str("device_id", seed.ID).Msg("seed device connect failed")
		}
	}

	if len(seeds) > 0 {
		log.Info().Int("devices", len(seeds)).Msg("seed devices connected")
	}
}
