// Package scheduler runs named fixed-interval jobs on a gocron scheduler.
package scheduler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Ticker runs named periodic jobs. Runs of one job never overlap.
type Ticker interface {
	Every(name string, interval time.Duration, fn func()) error
	Start()
	Stop() error
}

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
}

var _ Ticker = (*Scheduler)(nil)

// New creates a stopped scheduler.
func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create gocron scheduler").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Every registers fn to run every interval. A run that is still executing when the
// next one is due causes that run to be skipped and rescheduled.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return ferrors.ConfigurationError("job interval must be positive").
			WithContext("job", name).
			Build()
	}
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, fmt.Sprintf("failed to schedule %s", name)).Build()
	}
	return nil
}

// Start begins running jobs. It is a no-op once started.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.logger.Debug("Starting scheduler", slog.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop shuts the scheduler down and waits for running jobs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.logger.Debug("Stopping scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "scheduler shutdown").Build()
	}
	return nil
}
