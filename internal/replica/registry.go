package replica

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/rpc"
)

// descriptor is the untyped class definition the registry builds instances from.
type descriptor struct {
	uid      string
	ch       channel.Channel
	defaults map[string]any
	table    *rpc.Table

	mu sync.Mutex
	// err is set when the class cannot be activated. It is returned by every operation.
	err error
}

func (d *descriptor) fail(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
	return d.err
}

func (d *descriptor) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// ensure returns the live instance of desc, constructing and wiring it on first use.
func (rt *Runtime) ensure(desc *descriptor) (*Instance, error) {
	if err := desc.failure(); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil, ferrors.RuntimeError("runtime closed").WithContext("uid", desc.uid).Build()
	}
	if inst, ok := rt.instances[desc.uid]; ok {
		rt.mu.Unlock()
		if inst.desc != desc {
			return nil, desc.fail(ferrors.ConfigurationError("state uid already bound to another class").
				WithContext("uid", desc.uid).
				Build())
		}
		return inst, nil
	}

	if err := rt.startTickerLocked(); err != nil {
		rt.mu.Unlock()
		return nil, err
	}

	inst := newInstance(rt, desc)
	rt.instances[desc.uid] = inst
	inst.wireLocked()

	var loopCtx context.Context
	if !inst.controller {
		loopCtx = inst.beginHydrationLocked()
		rt.loops.Add(1)
	}
	rt.mu.Unlock()

	rt.logger.Debug("State instance created",
		logfields.UID(inst.uid),
		logfields.Side(string(rpc.SideOf(inst.controller))))

	if loopCtx != nil {
		go inst.hydrationLoop(loopCtx)
	}
	return inst, nil
}
