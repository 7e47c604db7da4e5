package replica

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"git.home.luguber.info/inful/statebridge/internal/config"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/metrics"
	"git.home.luguber.info/inful/statebridge/internal/retry"
	"git.home.luguber.info/inful/statebridge/internal/rpc"
	"git.home.luguber.info/inful/statebridge/internal/scheduler"
)

// Journal persists authoritative sends made by a controller.
type Journal interface {
	Record(ctx context.Context, uid string, generation uint64, reason string, payload json.RawMessage) error
}

// Journal reasons.
const (
	ReasonSync      = "sync"
	ReasonHydrate   = "hydrate"
	ReasonRehydrate = "rehydrate"
	ReasonReset     = "reset"
)

// Runtime is the process-level context of the replication engine.
type Runtime struct {
	mu        sync.Mutex
	instances map[string]*Instance
	pending   []*Instance
	closed    bool

	flushMu sync.Mutex

	ticker        scheduler.Ticker
	tickerStarted bool
	interval      time.Duration
	initRetry     retry.Policy
	callTimeout   time.Duration
	nonces        *rpc.NonceSource

	logger         *slog.Logger
	recorder       metrics.Recorder
	journal        Journal
	tracerProvider trace.TracerProvider

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(rt *Runtime) {
		if r != nil {
			rt.recorder = r
		}
	}
}

// WithTicker replaces the gocron-backed sync tick.
func WithTicker(t scheduler.Ticker) Option {
	return func(rt *Runtime) { rt.ticker = t }
}

// WithInterval sets the sync tick interval.
func WithInterval(d time.Duration) Option {
	return func(rt *Runtime) {
		if d > 0 {
			rt.interval = d
		}
	}
}

// WithInitRetry sets the backoff of the peer hydration loop.
func WithInitRetry(p retry.Policy) Option {
	return func(rt *Runtime) { rt.initRetry = p }
}

// WithCallTimeout bounds proxied calls. Zero waits forever.
func WithCallTimeout(d time.Duration) Option {
	return func(rt *Runtime) { rt.callTimeout = d }
}

// WithJournal records controller broadcasts.
func WithJournal(j Journal) Option {
	return func(rt *Runtime) { rt.journal = j }
}

// WithTracerProvider sets the tracer provider used for pinned method spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(rt *Runtime) { rt.tracerProvider = tp }
}

// WithConfig applies the sync and rpc sections of a configuration.
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) {
		if cfg == nil {
			return
		}
		WithInterval(cfg.Sync.Interval)(rt)
		rt.initRetry = retry.FromConfig(cfg.Sync.InitRetry)
		rt.callTimeout = cfg.RPC.CallTimeout
	}
}

// NewRuntime creates an empty runtime. The sync tick starts with the first live instance.
func NewRuntime(opts ...Option) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		instances: make(map[string]*Instance),
		interval:  config.DefaultSyncInterval,
		initRetry: retry.DefaultPolicy(),
		nonces:    rpc.NewNonceSource(0),
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// startTickerLocked registers the drain job and starts the tick. Callers hold rt.mu.
func (rt *Runtime) startTickerLocked() error {
	if rt.tickerStarted {
		return nil
	}
	if rt.ticker == nil {
		s, err := scheduler.New(rt.logger)
		if err != nil {
			return err
		}
		rt.ticker = s
	}
	if err := rt.ticker.Every("statebridge-sync", rt.interval, rt.Flush); err != nil {
		return err
	}
	rt.ticker.Start()
	rt.tickerStarted = true
	rt.logger.Debug("Sync tick started", slog.Duration("interval", rt.interval))
	return nil
}

// UIDs returns the uids of the live instances, sorted.
func (rt *Runtime) UIDs() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]string, 0, len(rt.instances))
	for uid := range rt.instances {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// Snapshot describes an instance for diagnostics.
type Snapshot struct {
	UID         string         `json:"uid"`
	Side        string         `json:"side"`
	Generation  uint64         `json:"generation"`
	Initialized bool           `json:"initialized"`
	Pending     bool           `json:"pending"`
	Listeners   int            `json:"listeners"`
	Fields      map[string]any `json:"fields"`
}

// Snapshot returns the current view of the instance registered under uid.
func (rt *Runtime) Snapshot(uid string) (Snapshot, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	inst, ok := rt.instances[uid]
	if !ok {
		return Snapshot{}, ferrors.NotFoundError("no live state instance").
			WithContext("uid", uid).
			Build()
	}
	return Snapshot{
		UID:         inst.uid,
		Side:        string(rpc.SideOf(inst.controller)),
		Generation:  inst.generation,
		Initialized: inst.state == Synced,
		Pending:     inst.pending,
		Listeners:   len(inst.listeners),
		Fields:      cloneFields(inst.payload),
	}, nil
}

// Close flushes pending mutations, stops the tick and the hydration loops, and
// unsubscribes every instance. Later operations fail.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.mu.Unlock()

	rt.Flush()

	rt.mu.Lock()
	rt.closed = true
	insts := make([]*Instance, 0, len(rt.instances))
	for _, inst := range rt.instances {
		insts = append(insts, inst)
	}
	ticker, started := rt.ticker, rt.tickerStarted
	rt.mu.Unlock()

	var stopErr error
	if started && ticker != nil {
		stopErr = ticker.Stop()
	}
	rt.cancel()
	rt.loops.Wait()

	for _, inst := range insts {
		inst.unwire()
	}
	rt.logger.Debug("Runtime closed", slog.Int("instances", len(insts)))
	return stopErr
}

func (rt *Runtime) record(uid string, generation uint64, reason string, payload json.RawMessage) {
	if rt.journal == nil {
		return
	}
	if err := rt.journal.Record(rt.ctx, uid, generation, reason, payload); err != nil {
		rt.logger.Warn("Failed to journal broadcast",
			logfields.UID(uid),
			logfields.Generation(generation),
			logfields.Error(err))
	}
}
