package replica

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	"git.home.luguber.info/inful/statebridge/internal/channel/memory"
	"git.home.luguber.info/inful/statebridge/internal/config"
	"git.home.luguber.info/inful/statebridge/internal/metrics"
	"git.home.luguber.info/inful/statebridge/internal/retry"
	"git.home.luguber.info/inful/statebridge/internal/scheduler"
)

type Counter struct {
	Count int    `json:"count"`
	Label string `json:"label"`
}

type side struct {
	rt       *Runtime
	tick     *scheduler.Manual
	recorder *metrics.MemoryRecorder
	journal  *memJournal
	class    *Class[Counter]
}

type journalEntry struct {
	UID        string
	Generation uint64
	Reason     string
	Payload    json.RawMessage
}

type memJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *memJournal) Record(_ context.Context, uid string, g uint64, reason string, payload json.RawMessage) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{UID: uid, Generation: g, Reason: reason, Payload: payload})
	return nil
}

func (j *memJournal) reasons() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Reason)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// slowRetry sends the first hydration request immediately and retries rarely, so a
// reply always arrives before a second request.
func slowRetry() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Minute, time.Minute, retry.Unlimited)
}

func newSide(t *testing.T, ch channel.Channel, opts ...Option) *side {
	t.Helper()
	s := &side{
		tick:     scheduler.NewManual(),
		recorder: metrics.NewMemoryRecorder(),
		journal:  &memJournal{},
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithTicker(s.tick),
		WithRecorder(s.recorder),
		WithJournal(s.journal),
		WithInitRetry(slowRetry()),
	}
	s.rt = NewRuntime(append(base, opts...)...)
	s.class = Define[Counter](s.rt, ch, WithUID("counter"))
	t.Cleanup(func() { _ = s.rt.Close() })
	return s
}

func (s *side) instance(t *testing.T) *Instance {
	t.Helper()
	inst, err := s.class.Instance()
	require.NoError(t, err)
	return inst
}

func (s *side) get(t *testing.T) Counter {
	t.Helper()
	v, err := s.class.Get()
	require.NoError(t, err)
	return v
}

// pair builds a hydrated controller and peer sharing one hub.
func pair(t *testing.T) (*memory.Hub, *side, *side) {
	t.Helper()
	hub := memory.NewHub(memory.WithLogger(quietLogger()))
	t.Cleanup(func() { _ = hub.Close() })

	ctl := newSide(t, hub.Controller())
	ctl.instance(t)
	peer := newSide(t, hub.Peer())
	peerInst := peer.instance(t)

	require.Eventually(t, func() bool { return peerInst.State() == Synced }, 2*time.Second, time.Millisecond)
	require.True(t, hub.WaitIdle(time.Second))
	return hub, ctl, peer
}
