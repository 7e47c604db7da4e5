package replica

import (
	"context"
	"log/slog"
	"sync/atomic"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/rpc"
)

// InitState tracks a peer instance's hydration.
type InitState int

const (
	Uninitialized InitState = iota
	AwaitingInit
	Synced
)

func (s InitState) String() string {
	switch s {
	case AwaitingInit:
		return "awaiting_init"
	case Synced:
		return "synced"
	default:
		return "uninitialized"
	}
}

// Listener observes the visible payload after every accepted mutation.
type Listener func(fields map[string]any)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Instance is the live value of one class within a Runtime. All fields are guarded
// by the runtime mutex.
type Instance struct {
	rt         *Runtime
	desc       *descriptor
	uid        string
	ch         channel.Channel
	controller bool
	logger     *slog.Logger

	payload    map[string]any
	generation uint64
	state      InitState
	stopLoop   context.CancelFunc

	listeners    []listenerEntry
	nextListener uint64
	notifySeq    uint64
	delivered    atomic.Uint64

	pending  bool
	advanced bool

	dispatcher *rpc.Dispatcher
	unsubs     []func()
}

func newInstance(rt *Runtime, desc *descriptor) *Instance {
	controller := desc.ch.IsController()
	inst := &Instance{
		rt:         rt,
		desc:       desc,
		uid:        desc.uid,
		ch:         desc.ch,
		controller: controller,
		logger: rt.logger.With(
			logfields.UID(desc.uid),
			logfields.Side(string(rpc.SideOf(controller)))),
		payload: cloneFields(desc.defaults),
		state:   Uninitialized,
	}
	if controller {
		inst.state = Synced
	}
	inst.dispatcher = rpc.NewDispatcher(desc.uid, desc.ch, desc.table, rpc.Options{
		Nonces:         rt.nonces,
		Timeout:        rt.callTimeout,
		Logger:         rt.logger,
		Recorder:       rt.recorder,
		TracerProvider: rt.tracerProvider,
	})
	return inst
}

// nextGeneration advances a generation modulo rpc.MaxSafeInteger.
func nextGeneration(g uint64) uint64 {
	return (g + 1) % rpc.MaxSafeInteger
}

// UID returns the instance uid.
func (inst *Instance) UID() string { return inst.uid }

// IsController reports whether the instance is authoritative.
func (inst *Instance) IsController() bool { return inst.controller }

// Generation returns the current generation.
func (inst *Instance) Generation() uint64 {
	inst.rt.mu.Lock()
	defer inst.rt.mu.Unlock()
	return inst.generation
}

// State returns the hydration state.
func (inst *Instance) State() InitState {
	inst.rt.mu.Lock()
	defer inst.rt.mu.Unlock()
	return inst.state
}

// Fields returns a deep copy of the visible payload. On a peer that has not been
// hydrated yet it also re-sends the hydration request.
func (inst *Instance) Fields() map[string]any {
	inst.rt.mu.Lock()
	fields := cloneFields(inst.payload)
	synced := inst.state == Synced
	var loopCtx context.Context
	if !synced && inst.state == Uninitialized && !inst.rt.closed {
		loopCtx = inst.beginHydrationLocked()
		inst.rt.loops.Add(1)
	}
	inst.rt.mu.Unlock()

	if !synced {
		if loopCtx != nil {
			go inst.hydrationLoop(loopCtx)
		} else {
			inst.requestInit()
		}
	}
	return fields
}

// SetState merges patch into the payload and schedules a sync. With immediate the
// instance is flushed before SetState returns.
func (inst *Instance) SetState(patch any, immediate bool) error {
	fields, err := toFields(patch)
	if err != nil {
		return err
	}

	inst.rt.mu.Lock()
	if inst.rt.closed {
		inst.rt.mu.Unlock()
		return ferrors.RuntimeError("runtime closed").WithContext("uid", inst.uid).Build()
	}
	merge(inst.payload, fields)
	if inst.controller && !inst.advanced {
		inst.generation = nextGeneration(inst.generation)
		inst.advanced = true
	}
	inst.rt.markPendingLocked(inst)
	n := inst.notificationLocked()
	inst.rt.mu.Unlock()

	if immediate {
		inst.rt.flushInstance(inst)
	}
	inst.deliver(n)
	return nil
}

// Reset restores the class defaults and flushes immediately. On the controller the
// generation is always advanced so peers observe a strictly greater value.
func (inst *Instance) Reset() error {
	inst.rt.mu.Lock()
	if inst.rt.closed {
		inst.rt.mu.Unlock()
		return ferrors.RuntimeError("runtime closed").WithContext("uid", inst.uid).Build()
	}
	inst.payload = cloneFields(inst.desc.defaults)
	if inst.controller {
		inst.generation = nextGeneration(inst.generation)
		inst.advanced = true
	}
	inst.rt.markPendingLocked(inst)
	n := inst.notificationLocked()
	inst.rt.mu.Unlock()

	inst.rt.flushInstanceReason(inst, ReasonReset)
	inst.deliver(n)
	return nil
}

// Trigger re-notifies listeners with the current payload without mutating it.
func (inst *Instance) Trigger() {
	inst.rt.mu.Lock()
	n := inst.notificationLocked()
	inst.rt.mu.Unlock()
	inst.deliver(n)
}

// OnChange registers a listener. The returned func removes it.
func (inst *Instance) OnChange(fn Listener) func() {
	inst.rt.mu.Lock()
	inst.nextListener++
	id := inst.nextListener
	inst.listeners = append(inst.listeners, listenerEntry{id: id, fn: fn})
	inst.rt.mu.Unlock()

	return func() {
		inst.rt.mu.Lock()
		defer inst.rt.mu.Unlock()
		for i, l := range inst.listeners {
			if l.id == id {
				inst.listeners = append(inst.listeners[:i:i], inst.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatcher returns the pinned-method dispatcher of the instance.
func (inst *Instance) Dispatcher() *rpc.Dispatcher { return inst.dispatcher }

// notification is a payload snapshot plus the listeners to hand it to.
type notification struct {
	seq       uint64
	fields    map[string]any
	listeners []Listener
}

func (inst *Instance) notificationLocked() notification {
	inst.notifySeq++
	n := notification{seq: inst.notifySeq}
	if len(inst.listeners) == 0 {
		return n
	}
	n.fields = cloneFields(inst.payload)
	n.listeners = make([]Listener, len(inst.listeners))
	for i, l := range inst.listeners {
		n.listeners[i] = l.fn
	}
	return n
}

// deliver invokes listeners outside the runtime lock. A snapshot older than one
// already delivered is dropped so the last observed payload is the newest.
func (inst *Instance) deliver(n notification) {
	for {
		cur := inst.delivered.Load()
		if n.seq <= cur {
			return
		}
		if inst.delivered.CompareAndSwap(cur, n.seq) {
			break
		}
	}
	for _, fn := range n.listeners {
		fn(cloneFields(n.fields))
	}
}
