package memory

import (
	"sync"

	"git.home.luguber.info/inful/statebridge/internal/channel"
)

type delivery struct {
	name string
	args channel.Args
	from channel.Sender
}

// mailbox is an unbounded FIFO queue drained by a single goroutine.
type mailbox struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []delivery
	inflight int
	closed   bool
}

func newMailbox() *mailbox {
	m := &mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(d delivery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.queue = append(m.queue, d)
	m.cond.Signal()
}

// pop blocks until a delivery is available. It returns false once the mailbox is closed.
func (m *mailbox) pop() (delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) == 0 && !m.closed {
		m.cond.Wait()
	}
	if m.closed {
		return delivery{}, false
	}
	d := m.queue[0]
	m.queue[0] = delivery{}
	m.queue = m.queue[1:]
	m.inflight++
	return d, true
}

func (m *mailbox) done() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) + m.inflight
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.cond.Broadcast()
	m.mu.Unlock()
}
