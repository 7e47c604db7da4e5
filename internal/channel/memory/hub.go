// Package memory provides an in-process channel binding: one controller endpoint and any
// number of peer endpoints exchanging JSON-encoded messages through per-endpoint mailboxes.
package memory

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

// Hub connects one controller endpoint to its peers.
type Hub struct {
	mu         sync.RWMutex
	controller *Endpoint
	peers      map[uint64]*Endpoint
	nextID     atomic.Uint64
	closed     bool
	logger     *slog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		peers:  make(map[uint64]*Endpoint),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Controller returns the hub's controller endpoint, creating it on first use.
func (h *Hub) Controller() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controller == nil || h.controller.isClosed() {
		h.controller = h.newEndpoint(true)
	}
	return h.controller
}

// Peer attaches and returns a new peer endpoint.
func (h *Hub) Peer() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ep := h.newEndpoint(false)
	h.peers[ep.id] = ep
	return ep
}

func (h *Hub) newEndpoint(controller bool) *Endpoint {
	ep := &Endpoint{
		hub:        h,
		id:         h.nextID.Add(1),
		controller: controller,
		box:        newMailbox(),
	}
	if h.closed {
		ep.closed.Store(true)
		return ep
	}
	go ep.run()
	return ep
}

func (h *Hub) detach(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ep.controller {
		if h.controller == ep {
			h.controller = nil
		}
		return
	}
	delete(h.peers, ep.id)
}

func (h *Hub) snapshotPeers() []*Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Endpoint, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

func (h *Hub) currentController() *Endpoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.controller
}

func (h *Hub) endpoints() []*Endpoint {
	eps := h.snapshotPeers()
	if c := h.currentController(); c != nil {
		eps = append(eps, c)
	}
	return eps
}

// WaitIdle blocks until no endpoint has queued or in-flight deliveries, or the
// timeout elapses. It reports whether the hub went idle.
func (h *Hub) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	idleRounds := 0
	for time.Now().Before(deadline) {
		busy := false
		for _, ep := range h.endpoints() {
			if ep.box.pending() > 0 {
				busy = true
				break
			}
		}
		if busy {
			idleRounds = 0
		} else {
			idleRounds++
			if idleRounds >= 2 {
				return true
			}
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// Close closes every endpoint and refuses new deliveries.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, ep := range h.endpoints() {
		_ = ep.Close()
	}
	return nil
}

// Endpoint is one side of the hub. It implements channel.Channel.
type Endpoint struct {
	hub        *Hub
	id         uint64
	controller bool
	router     channel.Router
	box        *mailbox
	closed     atomic.Bool
	closeOnce  sync.Once
}

var _ channel.Channel = (*Endpoint)(nil)

// ID returns the endpoint's hub-local identifier.
func (e *Endpoint) ID() uint64 { return e.id }

// IsController implements channel.Channel.
func (e *Endpoint) IsController() bool { return e.controller }

// On implements channel.Channel.
func (e *Endpoint) On(name string, h channel.Handler) func() { return e.router.On(name, h) }

// Once implements channel.Channel.
func (e *Endpoint) Once(name string, h channel.Handler) func() { return e.router.Once(name, h) }

// Send broadcasts to every peer when called on the controller, otherwise it sends to
// the controller. Messages to an absent controller are dropped.
func (e *Endpoint) Send(name string, args ...any) error {
	if e.isClosed() {
		return ferrors.TransportError("endpoint closed").
			WithContext("message", name).
			Build()
	}
	encoded, err := channel.NewArgs(args...)
	if err != nil {
		return err
	}

	if e.controller {
		for _, p := range e.hub.snapshotPeers() {
			e.deliver(p, name, encoded)
		}
		return nil
	}

	c := e.hub.currentController()
	if c == nil {
		e.hub.logger.Debug("No controller attached, dropping message",
			logfields.Channel("memory"),
			logfields.Method(name))
		return nil
	}
	e.deliver(c, name, encoded)
	return nil
}

func (e *Endpoint) deliver(target *Endpoint, name string, args channel.Args) {
	if target.isClosed() {
		return
	}
	target.box.push(delivery{
		name: name,
		args: args,
		from: replySender{from: target, to: e},
	})
}

// Close detaches the endpoint from its hub and stops delivery.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.hub.detach(e)
		e.box.close()
	})
	return nil
}

func (e *Endpoint) isClosed() bool { return e.closed.Load() }

func (e *Endpoint) run() {
	for {
		d, ok := e.box.pop()
		if !ok {
			return
		}
		if !e.isClosed() {
			e.router.Dispatch(d.name, d.from, d.args)
		}
		e.box.done()
	}
}

// replySender sends from one endpoint directly to another.
type replySender struct {
	from *Endpoint
	to   *Endpoint
}

func (s replySender) Send(name string, args ...any) error {
	if s.from.isClosed() {
		return ferrors.TransportError("endpoint closed").
			WithContext("message", name).
			Build()
	}
	encoded, err := channel.NewArgs(args...)
	if err != nil {
		return err
	}
	s.from.deliver(s.to, name, encoded)
	return nil
}
