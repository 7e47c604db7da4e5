package replica

import (
	"context"
	"reflect"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/rpc"
)

// Class is a replicated state class whose visible fields are the JSON fields of T.
// Every operation resolves the single live instance of the class within its Runtime,
// constructing it on first use.
type Class[T any] struct {
	rt   *Runtime
	desc *descriptor
}

type classOptions struct {
	uid         string
	defaults    any
	hasDefaults bool
}

// ClassOption configures Define.
type ClassOption func(*classOptions)

// WithUID overrides the uid derived from the type name.
func WithUID(uid string) ClassOption {
	return func(o *classOptions) { o.uid = uid }
}

// WithDefaults sets the baseline payload used for new instances and Reset.
func WithDefaults(v any) ClassOption {
	return func(o *classOptions) {
		o.defaults = v
		o.hasDefaults = true
	}
}

// Define binds T to ch within rt. Definition errors are reported by Err and returned
// from every operation; no subscription is made for a broken class.
func Define[T any](rt *Runtime, ch channel.Channel, opts ...ClassOption) *Class[T] {
	o := classOptions{uid: reflect.TypeFor[T]().Name()}
	for _, opt := range opts {
		opt(&o)
	}

	desc := &descriptor{uid: o.uid, ch: ch, table: rpc.NewTable()}
	c := &Class[T]{rt: rt, desc: desc}

	switch {
	case rt == nil:
		desc.fail(ferrors.ConfigurationError("state class has no runtime").WithContext("uid", o.uid).Build())
		return c
	case ch == nil:
		desc.fail(ferrors.ConfigurationError("state class has no bound channel").WithContext("uid", o.uid).Build())
		return c
	case o.uid == "":
		desc.fail(ferrors.ConfigurationError("state class uid cannot be resolved").
			WithContext("type", reflect.TypeFor[T]().String()).
			Build())
		return c
	}

	var base any = new(T)
	if o.hasDefaults {
		base = o.defaults
	}
	defaults, err := toFields(base)
	if err != nil {
		desc.fail(ferrors.WrapError(err, ferrors.CategoryConfig, "state class defaults must encode as a JSON object").
			WithContext("uid", o.uid).
			Fatal().
			Build())
		return c
	}
	desc.defaults = defaults
	return c
}

// UID returns the class uid.
func (c *Class[T]) UID() string { return c.desc.uid }

// Err returns the definition error of the class, if any.
func (c *Class[T]) Err() error { return c.desc.failure() }

// Instance returns the live instance, constructing and wiring it on first use.
func (c *Class[T]) Instance() (*Instance, error) {
	return c.rt.ensure(c.desc)
}

// Get returns the visible payload decoded into T.
func (c *Class[T]) Get() (T, error) {
	var out T
	fields, err := c.Fields()
	if err != nil {
		return out, err
	}
	err = fromFields(fields, &out)
	return out, err
}

// Fields returns the visible payload as a field map.
func (c *Class[T]) Fields() (map[string]any, error) {
	inst, err := c.Instance()
	if err != nil {
		return nil, err
	}
	return inst.Fields(), nil
}

// Generation returns the generation of the live instance.
func (c *Class[T]) Generation() (uint64, error) {
	inst, err := c.Instance()
	if err != nil {
		return 0, err
	}
	return inst.Generation(), nil
}

type setOptions struct {
	immediate bool
}

// SetOption configures SetState.
type SetOption func(*setOptions)

// Immediate flushes the instance before SetState returns instead of waiting for the tick.
func Immediate() SetOption {
	return func(o *setOptions) { o.immediate = true }
}

// SetState merges patch into the visible payload.
func (c *Class[T]) SetState(patch Patch, opts ...SetOption) error {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	inst, err := c.Instance()
	if err != nil {
		return err
	}
	return inst.SetState(map[string]any(patch), o.immediate)
}

// Set merges every field of v into the visible payload.
func (c *Class[T]) Set(v T, opts ...SetOption) error {
	fields, err := toFields(v)
	if err != nil {
		return err
	}
	return c.SetState(Patch(fields), opts...)
}

// OnChange registers fn to observe the payload after every accepted mutation.
func (c *Class[T]) OnChange(fn func(T)) (func(), error) {
	inst, err := c.Instance()
	if err != nil {
		return nil, err
	}
	return inst.OnChange(func(fields map[string]any) {
		var v T
		if err := fromFields(fields, &v); err != nil {
			inst.logger.Warn("Listener payload does not decode", logfields.Error(err))
			return
		}
		fn(v)
	}), nil
}

// Reset restores the class defaults and syncs them immediately.
func (c *Class[T]) Reset() error {
	inst, err := c.Instance()
	if err != nil {
		return err
	}
	return inst.Reset()
}

// Trigger re-notifies listeners without mutating the payload.
func (c *Class[T]) Trigger() error {
	inst, err := c.Instance()
	if err != nil {
		return err
	}
	inst.Trigger()
	return nil
}

// Defaults returns a detached value holding the class defaults. It is never
// registered or wired.
func (c *Class[T]) Defaults() (T, error) {
	var out T
	if err := c.desc.failure(); err != nil {
		return out, err
	}
	err := fromFields(cloneFields(c.desc.defaults), &out)
	return out, err
}

type methodOptions struct {
	kind rpc.Kind
}

// MethodOption configures a pinned method.
type MethodOption func(*methodOptions)

// Static registers the method as class-level.
func Static() MethodOption {
	return func(o *methodOptions) { o.kind = rpc.KindStatic }
}

// Controller pins fn to the controller side. See rpc.Func for accepted shapes.
func (c *Class[T]) Controller(name string, fn any, opts ...MethodOption) error {
	return c.Pin(rpc.SideController, name, fn, opts...)
}

// Peer pins fn to the peer side.
func (c *Class[T]) Peer(name string, fn any, opts ...MethodOption) error {
	return c.Pin(rpc.SidePeer, name, fn, opts...)
}

// Pin registers fn under name, executing on side. A failed pin stops the class from
// activating.
func (c *Class[T]) Pin(side rpc.Side, name string, fn any, opts ...MethodOption) error {
	if err := c.desc.failure(); err != nil {
		return err
	}
	o := methodOptions{kind: rpc.KindInstance}
	for _, opt := range opts {
		opt(&o)
	}
	handler, err := rpc.Func(fn)
	if err == nil {
		err = c.desc.table.Register(rpc.Method{Kind: o.kind, Name: name, Side: side, Handler: handler})
	}
	if err != nil {
		return c.desc.fail(err)
	}
	return nil
}

// Call invokes an instance method and decodes its result into reply.
func (c *Class[T]) Call(ctx context.Context, name string, reply any, args ...any) error {
	return c.call(ctx, rpc.KindInstance, name, reply, args...)
}

// CallStatic invokes a class-level method.
func (c *Class[T]) CallStatic(ctx context.Context, name string, reply any, args ...any) error {
	return c.call(ctx, rpc.KindStatic, name, reply, args...)
}

func (c *Class[T]) call(ctx context.Context, kind rpc.Kind, name string, reply any, args ...any) error {
	inst, err := c.Instance()
	if err != nil {
		return err
	}
	return inst.dispatcher.Call(ctx, kind, name, reply, args...)
}

// Go starts an instance method invocation without waiting for it.
func (c *Class[T]) Go(ctx context.Context, name string, args ...any) (*rpc.Call, error) {
	inst, err := c.Instance()
	if err != nil {
		return nil, err
	}
	return inst.dispatcher.Go(ctx, rpc.KindInstance, name, args...), nil
}
