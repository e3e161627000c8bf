// Package ops exposes the daemon's operational HTTP endpoints: liveness,
// readiness, and a status report covering the monitor, the sync engine, and
// upstream provider health.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/device"
	"github.com/vitalsentry/vitalsentry/internal/monitor"
	"github.com/vitalsentry/vitalsentry/internal/provider/resilience"
)

// recentEventCap bounds the in-memory alert event history.
const recentEventCap = 20

// Config holds configuration for the ops server.
type Config struct {
	Addr      string
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// RequestLimit and RateWindow bound requests per client IP.
	// Defaults: 60 per minute.
	RequestLimit int
	RateWindow   time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Monitor and Engine supply activity snapshots for /status.
	Monitor *monitor.Monitor
	Engine  *device.SyncEngine

	// Providers are the upstream clients whose health /status reports.
	Providers []*resilience.Client

	// Bus feeds the recent-alerts view on /status. Optional.
	Bus *alert.Bus
}

// Server is the operational HTTP server.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger

	version   string
	buildTime string
	monitor   *monitor.Monitor
	engine    *device.SyncEngine
	providers []*resilience.Client

	unsubscribe func()

	eventsMu sync.Mutex
	events   []recentEvent
}

// NewServer creates the ops server with its routes configured.
func NewServer(cfg Config) *Server {
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 60
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 20 * time.Second
	}

	s := &Server{
		logger:    cfg.Logger,
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		monitor:   cfg.Monitor,
		engine:    cfg.Engine,
		providers: cfg.Providers,
	}

	if cfg.Bus != nil {
		s.unsubscribe = cfg.Bus.Subscribe(s.recordEvent)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(cfg.Logger))
	r.Use(recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(httprate.Limit(
		cfg.RequestLimit,
		cfg.RateWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
	))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Start serves until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("ops server listening")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the configured route handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// recordEvent keeps a bounded history of alert events for /status.
func (s *Server) recordEvent(event alert.Event) {
	entry := recentEvent{
		EventID:      event.ID.String(),
		LocationID:   event.LocationID,
		LocationName: event.LocationName,
		UserID:       event.UserID,
		AlertCount:   len(event.Alerts),
		EmittedAt:    event.EmittedAt,
	}

	s.eventsMu.Lock()
	s.events = append(s.events, entry)
	if len(s.events) > recentEventCap {
		s.events = s.events[len(s.events)-recentEventCap:]
	}
	s.eventsMu.Unlock()
}

func (s *Server) recentEvents() []recentEvent {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return append([]recentEvent(nil), s.events...)
}

type healthResponse struct {
	Status  string            `json:"status"`
	Time    time.Time         `json:"time"`
	Details map[string]string `json:"details,omitempty"`
}

type providerStatus struct {
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

type recentEvent struct {
	EventID      string    `json:"event_id"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	UserID       string    `json:"user_id"`
	AlertCount   int       `json:"alert_count"`
	EmittedAt    time.Time `json:"emitted_at"`
}

type statusResponse struct {
	Status       string           `json:"status"`
	Time         time.Time        `json:"time"`
	Monitor      monitor.Stats    `json:"monitor"`
	Sync         device.SyncStats `json:"sync"`
	Providers    []providerStatus `json:"providers"`
	RecentAlerts []recentEvent    `json:"recent_alerts"`
}

// handleHealth handles GET /healthz - liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
		Details: map[string]string{
			"version":   s.version,
			"buildTime": s.buildTime,
		},
	})
}

// handleReady handles GET /readyz - readiness check. The daemon is ready as
// soon as it serves; degraded upstreams are reported via /status instead of
// failing readiness, which would only cause restart loops.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC(),
	})
}

// handleStatus handles GET /status - monitor, sync, and provider status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:       "ok",
		Time:         time.Now().UTC(),
		Providers:    make([]providerStatus, 0, len(s.providers)),
		RecentAlerts: s.recentEvents(),
	}

	if s.monitor != nil {
		resp.Monitor = s.monitor.Stats()
	}
	if s.engine != nil {
		resp.Sync = s.engine.Stats()
	}

	for _, client := range s.providers {
		health := client.Health()

		state := "ok"
		switch {
		case health.IsUnhealthy():
			state = "down"
			resp.Status = "degraded"
		case health.IsDegraded():
			state = "degraded"
			resp.Status = "degraded"
		}

		resp.Providers = append(resp.Providers, providerStatus{
			Name:          health.Name,
			Status:        state,
			LastSuccessAt: health.LastSuccessAt,
			LastFailureAt: health.LastFailureAt,
			LastError:     health.LastError,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
