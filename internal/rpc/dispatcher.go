package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/metrics"
)

const instrumentationName = "git.home.luguber.info/inful/statebridge/internal/rpc"

// Options configures a Dispatcher. Zero values select defaults.
type Options struct {
	Nonces         *NonceSource
	Timeout        time.Duration
	Logger         *slog.Logger
	Recorder       metrics.Recorder
	TracerProvider trace.TracerProvider
}

// Dispatcher routes invocations of one class's methods.
type Dispatcher struct {
	uid      string
	ch       channel.Channel
	table    *Table
	nonces   *NonceSource
	timeout  time.Duration
	logger   *slog.Logger
	recorder metrics.Recorder
	tracer   trace.Tracer

	mu       sync.Mutex
	stop     func()
	serveCtx context.Context
	cancel   context.CancelFunc
	served   sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the class uid over ch.
func NewDispatcher(uid string, ch channel.Channel, table *Table, opts Options) *Dispatcher {
	if table == nil {
		table = NewTable()
	}
	if opts.Nonces == nil {
		opts.Nonces = NewNonceSource(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		uid:      uid,
		ch:       ch,
		table:    table,
		nonces:   opts.Nonces,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With(logfields.UID(uid)),
		recorder: opts.Recorder,
		tracer:   tp.Tracer(instrumentationName),
		serveCtx: ctx,
		cancel:   cancel,
	}
}

// Table returns the dispatcher's capability table.
func (d *Dispatcher) Table() *Table { return d.table }

// CallName is the message name carrying invocations for uid.
func CallName(uid string) string { return uid + "-call" }

// ReplyName is the one-shot message name carrying the reply for a correlation id.
func ReplyName(method, id string) string { return method + "-" + id }

func (d *Dispatcher) localSide() Side { return SideOf(d.ch.IsController()) }

// Listen subscribes to `<uid>-call`. It is idempotent.
func (d *Dispatcher) Listen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = d.ch.On(CallName(d.uid), d.serve)
}

// Close unsubscribes, cancels running handlers and waits for them to return.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		stop()
	}
	d.cancel()
	d.served.Wait()
}

// Call invokes the method and decodes its result into reply.
func (d *Dispatcher) Call(ctx context.Context, kind Kind, name string, reply any, args ...any) error {
	return d.Go(ctx, kind, name, args...).Decode(reply)
}

// Go starts an invocation and returns the pending call. Methods pinned to the local
// side run synchronously; the returned call is then already complete.
func (d *Dispatcher) Go(ctx context.Context, kind Kind, name string, args ...any) *Call {
	if ctx == nil {
		ctx = context.Background()
	}
	m, ok := d.table.Lookup(kind, name)
	if !ok {
		call := newCall(name, "")
		call.complete(nil, ferrors.ProtocolMisuseError("method is not pinned").
			WithContext("uid", d.uid).
			WithContext("method", name).
			WithContext("kind", string(kind)).
			Build())
		return call
	}

	if m.Side == d.localSide() {
		return d.runLocal(ctx, m, args)
	}
	return d.proxy(ctx, m, args)
}

func (d *Dispatcher) runLocal(ctx context.Context, m Method, args []any) *Call {
	call := newCall(m.Name, "")
	encoded, err := channel.NewArgs(args...)
	if err != nil {
		call.complete(nil, err)
		return call
	}
	d.recorder.IncCall(m.Name, metrics.CallLocal)
	result, err := d.execute(ctx, m, encoded)
	if err != nil {
		call.complete(nil, err)
		return call
	}
	raw, err := json.Marshal(result)
	if err != nil {
		call.complete(nil, ferrors.WrapError(err, ferrors.CategoryValidation, "encode call result").
			WithContext("method", m.Name).
			Build())
		return call
	}
	call.complete(raw, nil)
	return call
}

func (d *Dispatcher) proxy(ctx context.Context, m Method, args []any) *Call {
	id := d.nonces.Next()
	call := newCall(m.Name, id)
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "rpc.call "+m.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("statebridge.uid", d.uid),
			attribute.String("rpc.method", m.Name),
			attribute.String("rpc.kind", string(m.Kind)),
			attribute.String("rpc.side", string(m.Side)),
			attribute.String("rpc.correlation_id", id),
		),
	)

	cancelCtx := func() {}
	if d.timeout > 0 {
		ctx, cancelCtx = context.WithTimeout(ctx, d.timeout)
	}

	d.recorder.AddInflightCalls(1)
	finish := func(result json.RawMessage, err error, outcome metrics.CallOutcome) {
		if !call.complete(result, err) {
			return
		}
		cancelCtx()
		d.recorder.AddInflightCalls(-1)
		d.recorder.IncCall(m.Name, outcome)
		d.recorder.ObserveCallDuration(m.Name, time.Since(start))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}

	stopListening := d.ch.Once(ReplyName(m.Name, id), func(_ channel.Sender, reply channel.Args) {
		if reply.IsNull(1) {
			finish(reply.Raw(0), nil, metrics.CallSuccess)
			return
		}
		var remote RemoteError
		if err := reply.Decode(1, &remote); err != nil {
			remote = RemoteError{Name: "Error", Message: string(reply.Raw(1))}
		}
		finish(nil, ferrors.RemoteExecutionError(fmt.Sprintf("%s failed on %s: %s", m.Name, m.Side, remote.Message)).
			WithContext("uid", d.uid).
			WithContext("method", m.Name).
			WithContext("correlation_id", id).
			WithContext("remote_name", remote.Name).
			Build(), metrics.CallRemoteError)
	})

	payload := make([]any, 0, len(args)+3)
	payload = append(payload, string(m.Kind), m.Name, id)
	payload = append(payload, args...)

	d.logger.Debug("Proxying call",
		logfields.Method(m.Name),
		logfields.MethodKind(string(m.Kind)),
		logfields.Side(string(m.Side)),
		logfields.CorrelationID(id))

	if err := d.ch.Send(CallName(d.uid), payload...); err != nil {
		stopListening()
		finish(nil, err, metrics.CallCanceled)
		return call
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-call.done:
			case <-ctx.Done():
				stopListening()
				finish(nil, ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "call abandoned").
					WithContext("uid", d.uid).
					WithContext("method", m.Name).
					WithContext("correlation_id", id).
					Build(), metrics.CallCanceled)
			}
		}()
	}
	return call
}

// serve handles an inbound `<uid>-call`.
func (d *Dispatcher) serve(from channel.Sender, args channel.Args) {
	var kind, name, id string
	if err := args.Decode(0, &kind); err != nil {
		d.logger.Warn("Dropping malformed call", logfields.Error(err))
		return
	}
	if err := args.Decode(1, &name); err != nil {
		d.logger.Warn("Dropping malformed call", logfields.Error(err))
		return
	}
	if err := args.Decode(2, &id); err != nil {
		d.logger.Warn("Dropping malformed call", logfields.Method(name), logfields.Error(err))
		return
	}
	replyName := ReplyName(name, id)

	m, ok := d.table.Lookup(Kind(kind), name)
	if !ok {
		d.reply(from, replyName, nil, RemoteError{Name: string(ferrors.CategoryNotFound), Message: "unknown method " + name})
		return
	}
	if m.Side != d.localSide() {
		d.reply(from, replyName, nil, RemoteError{
			Name:    string(ferrors.CategoryProtocol),
			Message: fmt.Sprintf("method %s is pinned to %s", name, m.Side),
		})
		return
	}

	d.served.Add(1)
	go func() {
		defer d.served.Done()

		ctx, span := d.tracer.Start(d.serveCtx, "rpc.serve "+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("statebridge.uid", d.uid),
				attribute.String("rpc.method", name),
				attribute.String("rpc.correlation_id", id),
			),
		)
		defer span.End()

		d.logger.Debug("Serving call", logfields.Method(name), logfields.CorrelationID(id))
		result, err := d.execute(ctx, m, args.Tail(3))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			d.reply(from, replyName, nil, remoteErrorFrom(err))
			return
		}
		span.SetStatus(codes.Ok, "")
		if sendErr := from.Send(replyName, result, nil); sendErr != nil {
			d.logger.Warn("Failed to send call result",
				logfields.Method(name),
				logfields.CorrelationID(id),
				logfields.Error(sendErr))
			d.reply(from, replyName, nil, remoteErrorFrom(sendErr))
		}
	}()
}

func (d *Dispatcher) reply(from channel.Sender, name string, result any, remote RemoteError) {
	if err := from.Send(name, result, remote); err != nil {
		d.logger.Warn("Failed to send call reply", logfields.Method(name), logfields.Error(err))
	}
}

// execute runs the handler, converting panics into errors.
func (d *Dispatcher) execute(ctx context.Context, m Method, args channel.Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Method handler panicked",
				logfields.Method(m.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = ferrors.InternalError(fmt.Sprintf("handler panicked: %v", r)).
				WithContext("method", m.Name).
				Build()
		}
	}()
	return m.Handler(ctx, args)
}
