package scheduler

import (
	"sync"
	"time"
)

// Manual is a Ticker driven explicitly through Tick. Tests use it to control flush timing.
type Manual struct {
	mu      sync.Mutex
	run     sync.Mutex
	jobs    []manualJob
	started bool
	stopped bool
}

type manualJob struct {
	name     string
	interval time.Duration
	fn       func()
}

var _ Ticker = (*Manual)(nil)

// NewManual returns an empty manual ticker.
func NewManual() *Manual { return &Manual{} }

// Every records the job.
func (m *Manual) Every(name string, interval time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, manualJob{name: name, interval: interval, fn: fn})
	return nil
}

// Start marks the ticker started.
func (m *Manual) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
}

// Stop marks the ticker stopped. Later ticks do nothing.
func (m *Manual) Stop() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return nil
}

// Started reports whether Start was called.
func (m *Manual) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Jobs returns the names of the registered jobs.
func (m *Manual) Jobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.jobs))
	for _, j := range m.jobs {
		names = append(names, j.name)
	}
	return names
}

// Tick runs every registered job once, serially, if the ticker is started.
func (m *Manual) Tick() {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	jobs := append([]manualJob(nil), m.jobs...)
	m.mu.Unlock()

	m.run.Lock()
	defer m.run.Unlock()
	for _, j := range jobs {
		j.fn()
	}
}
