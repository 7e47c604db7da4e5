package metrics

import (
	"sync"
	"time"
)

// MemoryRecorder counts events in memory. It is safe for concurrent use.
type MemoryRecorder struct {
	mu        sync.Mutex
	sent      map[string]int
	received  map[string]map[PushOutcome]int
	hydration map[string]int
	flushes   int
	flushed   int
	calls     map[string]map[CallOutcome]int
	inflight  int
}

var _ Recorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder returns an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		sent:      map[string]int{},
		received:  map[string]map[PushOutcome]int{},
		hydration: map[string]int{},
		calls:     map[string]map[CallOutcome]int{},
	}
}

func (m *MemoryRecorder) IncPushSent(uid string) {
	m.mu.Lock()
	m.sent[uid]++
	m.mu.Unlock()
}

func (m *MemoryRecorder) IncPushReceived(uid string, outcome PushOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOutcome, ok := m.received[uid]
	if !ok {
		byOutcome = map[PushOutcome]int{}
		m.received[uid] = byOutcome
	}
	byOutcome[outcome]++
}

func (m *MemoryRecorder) IncHydrationServed(uid string) {
	m.mu.Lock()
	m.hydration[uid]++
	m.mu.Unlock()
}

func (m *MemoryRecorder) ObserveFlush(_ time.Duration, size int) {
	m.mu.Lock()
	m.flushes++
	m.flushed += size
	m.mu.Unlock()
}

func (m *MemoryRecorder) IncCall(method string, outcome CallOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byOutcome, ok := m.calls[method]
	if !ok {
		byOutcome = map[CallOutcome]int{}
		m.calls[method] = byOutcome
	}
	byOutcome[outcome]++
}

func (m *MemoryRecorder) ObserveCallDuration(string, time.Duration) {}

func (m *MemoryRecorder) AddInflightCalls(delta int) {
	m.mu.Lock()
	m.inflight += delta
	m.mu.Unlock()
}

// PushesSent returns the number of pushes sent for uid.
func (m *MemoryRecorder) PushesSent(uid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[uid]
}

// PushesReceived returns the number of received pushes for uid with the given outcome.
func (m *MemoryRecorder) PushesReceived(uid string, outcome PushOutcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received[uid][outcome]
}

// HydrationsServed returns how many hydration requests were answered for uid.
func (m *MemoryRecorder) HydrationsServed(uid string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hydration[uid]
}

// Flushes returns the number of drains and the total instances flushed.
func (m *MemoryRecorder) Flushes() (drains, instances int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes, m.flushed
}

// Calls returns the number of calls of method with the given outcome.
func (m *MemoryRecorder) Calls(method string, outcome CallOutcome) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method][outcome]
}

// Inflight returns the current number of unresolved proxied calls.
func (m *MemoryRecorder) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight
}
