// Package services starts and stops the parts of a statebridge process in dependency
// order.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

// ServiceStatus represents the current state of a service.
type ServiceStatus string

const (
	StatusNotStarted ServiceStatus = "not_started"
	StatusStarting   ServiceStatus = "starting"
	StatusRunning    ServiceStatus = "running"
	StatusStopping   ServiceStatus = "stopping"
	StatusStopped    ServiceStatus = "stopped"
	StatusFailed     ServiceStatus = "failed"
)

// ManagedService defines the interface for services managed by the orchestrator.
type ManagedService interface {
	// Name returns the service name for logging and identification.
	Name() string

	// Start initializes and starts the service.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service.
	Stop(ctx context.Context) error

	// Dependencies returns the names of services this service depends on.
	Dependencies() []string
}

// ServiceInfo contains metadata about a managed service.
type ServiceInfo struct {
	Name         string        `json:"name"`
	Status       ServiceStatus `json:"status"`
	Dependencies []string      `json:"dependencies"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	StoppedAt    *time.Time    `json:"stopped_at,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Orchestrator manages the lifecycle of multiple services with dependency resolution.
type Orchestrator struct {
	services   map[string]ManagedService
	status     map[string]ServiceStatus
	startedAt  map[string]time.Time
	stoppedAt  map[string]time.Time
	lastErrors map[string]error
	mu         sync.RWMutex

	startTimeout time.Duration
	stopTimeout  time.Duration
	logger       *slog.Logger
}

// NewOrchestrator creates an orchestrator logging through logger.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		services:     make(map[string]ManagedService),
		status:       make(map[string]ServiceStatus),
		startedAt:    make(map[string]time.Time),
		stoppedAt:    make(map[string]time.Time),
		lastErrors:   make(map[string]error),
		startTimeout: 30 * time.Second,
		stopTimeout:  10 * time.Second,
		logger:       logger,
	}
}

// WithTimeouts configures start and stop timeouts.
func (o *Orchestrator) WithTimeouts(start, stop time.Duration) *Orchestrator {
	o.startTimeout = start
	o.stopTimeout = stop
	return o
}

// Register adds a service to the orchestrator.
func (o *Orchestrator) Register(service ManagedService) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := service.Name()
	if name == "" {
		return ferrors.ValidationError("service name cannot be empty").Build()
	}
	if _, exists := o.services[name]; exists {
		return ferrors.ValidationError("service already registered").
			WithContext("service", name).
			Build()
	}

	o.services[name] = service
	o.status[name] = StatusNotStarted
	o.logger.Debug("Service registered",
		slog.String("service", name),
		slog.Any("dependencies", service.Dependencies()))
	return nil
}

// StartAll starts all services in dependency order. On failure the services already
// running are stopped again.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.startOrder()
	if err != nil {
		return err
	}
	o.logger.Debug("Starting services", slog.Any("order", order))

	for i, name := range order {
		if err := o.startService(ctx, name); err != nil {
			for j := i - 1; j >= 0; j-- {
				if serr := o.stopService(ctx, order[j]); serr != nil {
					o.logger.Error("Error stopping service during cleanup",
						slog.String("service", order[j]), logfields.Error(serr))
				}
			}
			return err
		}
	}
	return nil
}

// StopAll stops running services in reverse dependency order. Every service gets its
// stop call even when an earlier one fails.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	order, err := o.startOrder()
	if err != nil {
		return err
	}
	slices.Reverse(order)

	var lastError error
	for _, name := range order {
		if err := o.stopService(ctx, name); err != nil {
			lastError = err
			o.logger.Error("Error stopping service", slog.String("service", name), logfields.Error(err))
		}
	}
	if lastError != nil {
		return ferrors.WrapError(lastError, ferrors.CategoryRuntime, "some services failed to stop gracefully").Build()
	}
	return nil
}

// Info returns information about a specific service.
func (o *Orchestrator) Info(name string) (ServiceInfo, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.infoLocked(name)
}

// Infos returns information about all services ordered by name.
func (o *Orchestrator) Infos() []ServiceInfo {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := o.sortedNames()
	infos := make([]ServiceInfo, 0, len(names))
	for _, name := range names {
		if info, ok := o.infoLocked(name); ok {
			infos = append(infos, info)
		}
	}
	return infos
}

func (o *Orchestrator) infoLocked(name string) (ServiceInfo, bool) {
	service, exists := o.services[name]
	if !exists {
		return ServiceInfo{}, false
	}
	info := ServiceInfo{
		Name:         name,
		Status:       o.status[name],
		Dependencies: service.Dependencies(),
	}
	if t, ok := o.startedAt[name]; ok {
		info.StartedAt = &t
	}
	if t, ok := o.stoppedAt[name]; ok {
		info.StoppedAt = &t
	}
	if err := o.lastErrors[name]; err != nil {
		info.LastError = err.Error()
	}
	return info, true
}

func (o *Orchestrator) sortedNames() []string {
	names := make([]string, 0, len(o.services))
	for name := range o.services {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// startOrder topologically sorts services; ties break by name.
func (o *Orchestrator) startOrder() ([]string, error) {
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	var order []string

	var visit func(string) error
	visit = func(name string) error {
		if visiting[name] {
			return ferrors.ConfigurationError(fmt.Sprintf("circular dependency detected involving service: %s", name)).Build()
		}
		if visited[name] {
			return nil
		}
		service, exists := o.services[name]
		if !exists {
			return ferrors.NotFoundError("service not found").WithContext("service", name).Build()
		}

		visiting[name] = true
		for _, dep := range service.Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range o.sortedNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// startService starts a single service with timeout.
func (o *Orchestrator) startService(ctx context.Context, name string) error {
	service := o.services[name]
	if o.status[name] == StatusRunning {
		return nil
	}
	o.status[name] = StatusStarting

	timeoutCtx, cancel := context.WithTimeout(ctx, o.startTimeout)
	defer cancel()

	startTime := time.Now()
	if err := service.Start(timeoutCtx); err != nil {
		o.status[name] = StatusFailed
		o.lastErrors[name] = err
		return err
	}

	o.status[name] = StatusRunning
	o.startedAt[name] = startTime
	o.lastErrors[name] = nil
	o.logger.Debug("Service started", slog.String("service", name), slog.Duration("duration", time.Since(startTime)))
	return nil
}

// stopService stops a single running service with timeout.
func (o *Orchestrator) stopService(ctx context.Context, name string) error {
	service := o.services[name]
	if o.status[name] != StatusRunning {
		return nil
	}
	o.status[name] = StatusStopping

	timeoutCtx, cancel := context.WithTimeout(ctx, o.stopTimeout)
	defer cancel()

	stopTime := time.Now()
	if err := service.Stop(timeoutCtx); err != nil {
		o.status[name] = StatusFailed
		o.lastErrors[name] = err
		return err
	}

	o.status[name] = StatusStopped
	o.stoppedAt[name] = stopTime
	o.logger.Debug("Service stopped", slog.String("service", name), slog.Duration("duration", time.Since(stopTime)))
	return nil
}
