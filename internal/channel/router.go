package channel

import (
	"sync"
	"sync/atomic"
)

// Router is the name-keyed handler table shared by channel bindings.
// The zero value is ready to use.
type Router struct {
	mu     sync.RWMutex
	routes map[string][]*route
	nextID atomic.Uint64
}

type route struct {
	id      uint64
	handler Handler
	once    bool
	fired   atomic.Bool
}

// On registers a persistent handler for name.
func (r *Router) On(name string, h Handler) func() {
	return r.add(name, h, false)
}

// Once registers a handler that fires at most once.
func (r *Router) Once(name string, h Handler) func() {
	return r.add(name, h, true)
}

func (r *Router) add(name string, h Handler, once bool) func() {
	rt := &route{id: r.nextID.Add(1), handler: h, once: once}

	r.mu.Lock()
	if r.routes == nil {
		r.routes = make(map[string][]*route)
	}
	r.routes[name] = append(r.routes[name], rt)
	r.mu.Unlock()

	var cancelOnce sync.Once
	return func() {
		cancelOnce.Do(func() { r.remove(name, rt.id) })
	}
}

func (r *Router) remove(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	routes := r.routes[name]
	for i, rt := range routes {
		if rt.id == id {
			r.routes[name] = append(routes[:i:i], routes[i+1:]...)
			break
		}
	}
	if len(r.routes[name]) == 0 {
		delete(r.routes, name)
	}
}

// Dispatch invokes every handler registered for name, in registration order, and
// returns how many ran. Once handlers are removed before they are invoked.
func (r *Router) Dispatch(name string, from Sender, args Args) int {
	r.mu.RLock()
	routes := make([]*route, len(r.routes[name]))
	copy(routes, r.routes[name])
	r.mu.RUnlock()

	targets := routes[:0]
	for _, rt := range routes {
		if rt.once {
			if !rt.fired.CompareAndSwap(false, true) {
				continue
			}
			r.remove(name, rt.id)
		}
		targets = append(targets, rt)
	}

	for _, rt := range targets {
		rt.handler(from, args)
	}
	return len(targets)
}

// Count returns the number of handlers registered for name.
//
// This is primarily intended for tests and diagnostics.
func (r *Router) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes[name])
}

// Reset drops every handler.
func (r *Router) Reset() {
	r.mu.Lock()
	r.routes = nil
	r.mu.Unlock()
}
