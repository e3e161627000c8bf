// Package schedule provides a repeating background job with an explicit
// start/stop handle.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is the work a scheduler runs on every tick. The context is canceled
// when the scheduler stops; jobs should return promptly once it is.
type Job func(ctx context.Context)

// Scheduler runs a job at a fixed interval on its own goroutine. Start and
// Stop are idempotent; a stopped scheduler can be started again.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. The first tick fires one interval after Start.
func New(name string, interval time.Duration, job Job, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// Start launches the tick loop. Calling Start on a running scheduler does
// nothing; the existing loop and its cadence are preserved.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Debug().Str("scheduler", s.name).Msg("scheduler already running")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	s.logger.Info().
		Str("scheduler", s.name).
		Dur("interval", s.interval).
		Msg("scheduler started")

	go s.run(ctx, done)
}

// Stop cancels the tick loop and waits for it to exit. Stopping an idle
// scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info().Str("scheduler", s.name).Msg("scheduler stopped")
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer func() {
		close(done)
		s.mu.Lock()
		// Only clear state for this cycle; Stop or a newer Start may have
		// replaced it already.
		if s.done == done {
			s.running = false
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.job(ctx)
		}
	}
}
