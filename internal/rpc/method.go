package rpc

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Side names the process that executes a pinned method.
type Side string

const (
	SideController Side = "controller"
	SidePeer       Side = "peer"
)

// SideOf maps channel authority onto a Side.
func SideOf(isController bool) Side {
	if isController {
		return SideController
	}
	return SidePeer
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideController || s == SidePeer }

// Kind distinguishes class-level methods from methods bound to the instance.
// Both travel on the wire as the first `<uid>-call` argument.
type Kind string

const (
	KindStatic   Kind = "static"
	KindInstance Kind = "instance"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindStatic || k == KindInstance }

// HandlerFunc executes a method with JSON-encoded arguments.
type HandlerFunc func(ctx context.Context, args channel.Args) (any, error)

// Method describes one pinned method.
type Method struct {
	Kind    Kind
	Name    string
	Side    Side
	Handler HandlerFunc
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Func adapts a typed Go function into a HandlerFunc. Accepted shapes are
//
//	func(ctx context.Context, a A, b B, ...) (R, error)
//	func(ctx context.Context, a A, b B, ...) error
//
// Each argument is decoded from the matching JSON slot; absent or null slots yield
// the zero value.
func Func(fn any) (HandlerFunc, error) {
	switch h := fn.(type) {
	case nil:
		return nil, ferrors.ProtocolMisuseError("method handler is nil").Build()
	case HandlerFunc:
		if h == nil {
			return nil, ferrors.ProtocolMisuseError("method handler is nil").Build()
		}
		return h, nil
	case func(context.Context, channel.Args) (any, error):
		if h == nil {
			return nil, ferrors.ProtocolMisuseError("method handler is nil").Build()
		}
		return h, nil
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, ferrors.ProtocolMisuseError("method handler must be a function").
			WithContext("type", t.String()).
			Build()
	}
	if v.IsNil() {
		return nil, ferrors.ProtocolMisuseError("method handler is nil").Build()
	}
	if t.IsVariadic() {
		return nil, ferrors.ProtocolMisuseError("variadic method handlers are not supported").
			WithContext("type", t.String()).
			Build()
	}
	if t.NumIn() == 0 || t.In(0) != contextType {
		return nil, ferrors.ProtocolMisuseError("method handler must take context.Context first").
			WithContext("type", t.String()).
			Build()
	}
	switch {
	case t.NumOut() == 1 && t.Out(0) == errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return nil, ferrors.ProtocolMisuseError("method handler must return (R, error) or error").
			WithContext("type", t.String()).
			Build()
	}

	return func(ctx context.Context, args channel.Args) (any, error) {
		if ctx == nil {
			ctx = context.Background()
		}
		in := make([]reflect.Value, t.NumIn())
		in[0] = reflect.ValueOf(ctx)
		for i := 1; i < t.NumIn(); i++ {
			ptr := reflect.New(t.In(i))
			if !args.IsNull(i - 1) {
				if err := args.Decode(i-1, ptr.Interface()); err != nil {
					return nil, err
				}
			}
			in[i] = ptr.Elem()
		}

		out := v.Call(in)
		var err error
		if last := out[len(out)-1]; !last.IsNil() {
			err = last.Interface().(error)
		}
		if len(out) == 2 {
			return out[0].Interface(), err
		}
		return nil, err
	}, nil
}

// Table is the capability table of one state class.
type Table struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{methods: make(map[string]Method)}
}

func tableKey(kind Kind, name string) string {
	return string(kind) + ":" + name
}

// Register adds m to the table.
func (t *Table) Register(m Method) error {
	if m.Name == "" {
		return ferrors.ProtocolMisuseError("method name is empty").Build()
	}
	if !m.Kind.Valid() {
		return ferrors.ProtocolMisuseError(fmt.Sprintf("unknown method kind %q", m.Kind)).
			WithContext("method", m.Name).
			Build()
	}
	if !m.Side.Valid() {
		return ferrors.ProtocolMisuseError(fmt.Sprintf("unknown side %q", m.Side)).
			WithContext("method", m.Name).
			Build()
	}
	if m.Handler == nil {
		return ferrors.ProtocolMisuseError("method handler is nil").
			WithContext("method", m.Name).
			Build()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	key := tableKey(m.Kind, m.Name)
	if _, exists := t.methods[key]; exists {
		return ferrors.ProtocolMisuseError("method already pinned").
			WithContext("method", m.Name).
			WithContext("kind", string(m.Kind)).
			Build()
	}
	t.methods[key] = m
	return nil
}

// Lookup returns the method registered under kind and name.
func (t *Table) Lookup(kind Kind, name string) (Method, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.methods[tableKey(kind, name)]
	return m, ok
}

// Methods returns every registered method ordered by kind and name.
func (t *Table) Methods() []Method {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Method, 0, len(t.methods))
	for _, m := range t.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
