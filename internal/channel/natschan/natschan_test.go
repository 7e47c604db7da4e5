package natschan

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// fakeBus queues published messages on the channels subscribed to their subject.
type fakeBus struct {
	mu     sync.Mutex
	subs   map[string][]chan *nats.Msg
	closed bool
}

func newFakeBus() *fakeBus { return &fakeBus{subs: map[string][]chan *nats.Msg{}} }

func (b *fakeBus) Publish(msg *nats.Msg) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[msg.Subject] {
		if ch != nil {
			ch <- msg
		}
	}
	return nil
}

func (b *fakeBus) ChanSubscribe(subject string, ch chan *nats.Msg) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[subject] = append(b.subs[subject], ch)
	idx := len(b.subs[subject]) - 1
	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs[subject][idx] = nil
		return nil
	}, nil
}

func (b *fakeBus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *fakeBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBus) queue(subject string) chan *nats.Msg {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs[subject]) == 0 {
		return nil
	}
	return b.subs[subject][len(b.subs[subject])-1]
}

func newTestChannel(t *testing.T, b *fakeBus, controller bool) *Channel {
	t.Helper()
	c, err := newChannel(b, Options{Prefix: "sb", Controller: controller})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSubjects(t *testing.T) {
	require.Equal(t, "sb.ctl", ControlSubject("sb"))
	require.Equal(t, "sb.bcast", BroadcastSubject("sb"))
	require.Equal(t, "sb.peer.x", PeerSubject("sb", "x"))
}

func TestChannel_PeerToControllerAndReply(t *testing.T) {
	b := newFakeBus()
	ctl := newTestChannel(t, b, true)
	p1 := newTestChannel(t, b, false)
	p2 := newTestChannel(t, b, false)
	require.Equal(t, "sb.ctl", ctl.Inbox())
	require.Equal(t, PeerSubject("sb", p1.ID()), p1.Inbox())

	ctl.On("counter-init", func(from channel.Sender, _ channel.Args) {
		_ = from.Send("counter", 1, map[string]int{"count": 0})
	})

	var p1Got, p2Got atomic.Int32
	generations := make(chan uint64, 1)
	p1.On("counter", func(_ channel.Sender, args channel.Args) {
		var g uint64
		if args.Decode(0, &g) == nil {
			generations <- g
		}
		p1Got.Add(1)
	})
	p2.On("counter", func(channel.Sender, channel.Args) { p2Got.Add(1) })

	require.NoError(t, p1.Send("counter-init"))
	require.Eventually(t, func() bool { return p1Got.Load() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, uint64(1), <-generations)
	require.Zero(t, p2Got.Load())
}

func TestChannel_ControllerBroadcasts(t *testing.T) {
	b := newFakeBus()
	ctl := newTestChannel(t, b, true)
	peers := []*Channel{newTestChannel(t, b, false), newTestChannel(t, b, false)}

	var got, ctlSelf atomic.Int32
	for _, p := range peers {
		p.On("counter", func(channel.Sender, channel.Args) { got.Add(1) })
	}
	ctl.On("counter", func(channel.Sender, channel.Args) { ctlSelf.Add(1) })

	require.NoError(t, ctl.Send("counter", 2, map[string]int{"count": 5}))
	require.Eventually(t, func() bool { return got.Load() == 2 }, time.Second, time.Millisecond)
	require.Zero(t, ctlSelf.Load())
}

func TestChannel_PeerSubscriptionsShareOneQueue(t *testing.T) {
	b := newFakeBus()
	p := newTestChannel(t, b, false)

	inbox := b.queue(p.Inbox())
	require.NotNil(t, inbox)
	require.True(t, inbox == b.queue(BroadcastSubject("sb")))

	var mu sync.Mutex
	var order []uint64
	p.On("counter", func(_ channel.Sender, args channel.Args) {
		var g uint64
		if args.Decode(0, &g) == nil {
			mu.Lock()
			order = append(order, g)
			mu.Unlock()
		}
	})

	// direct replies and broadcasts interleave on different subjects
	for g := uint64(1); g <= 50; g++ {
		subject := BroadcastSubject("sb")
		if g%2 == 1 {
			subject = p.Inbox()
		}
		frame, err := channel.EncodeFrame("counter", channel.Args{json.RawMessage(strconv.FormatUint(g, 10)), json.RawMessage("{}")})
		require.NoError(t, err)
		require.NoError(t, b.Publish(&nats.Msg{Subject: subject, Data: frame}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 50
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	for i, g := range order {
		require.Equal(t, uint64(i+1), g)
	}
}

func TestChannel_UndecodableMessageDropped(t *testing.T) {
	b := newFakeBus()
	ctl := newTestChannel(t, b, true)
	var called, pinged atomic.Bool
	ctl.On("x", func(channel.Sender, channel.Args) { called.Store(true) })
	ctl.On("ping", func(channel.Sender, channel.Args) { pinged.Store(true) })

	require.NoError(t, b.Publish(&nats.Msg{Subject: "sb.ctl", Data: []byte("not json")}))
	frame, err := channel.EncodeFrame("ping", nil)
	require.NoError(t, err)
	require.NoError(t, b.Publish(&nats.Msg{Subject: "sb.ctl", Data: frame}))

	require.Eventually(t, pinged.Load, time.Second, time.Millisecond)
	require.False(t, called.Load())
}

func TestChannel_ReplyWithoutSubject(t *testing.T) {
	b := newFakeBus()
	ctl := newTestChannel(t, b, true)
	frame, err := channel.EncodeFrame("ping", nil)
	require.NoError(t, err)

	replies := make(chan error, 1)
	ctl.On("ping", func(from channel.Sender, _ channel.Args) { replies <- from.Send("pong") })
	require.NoError(t, b.Publish(&nats.Msg{Subject: "sb.ctl", Data: frame}))

	select {
	case replyErr := <-replies:
		require.True(t, ferrors.HasCategory(replyErr, ferrors.CategoryTransport))
	case <-time.After(time.Second):
		t.Fatal("ping not handled")
	}
}

func TestChannel_CloseStopsDelivery(t *testing.T) {
	b := newFakeBus()
	ctl := newTestChannel(t, b, true)
	p := newTestChannel(t, b, false)

	var got atomic.Int32
	ctl.On("counter", func(channel.Sender, channel.Args) { got.Add(1) })
	require.NoError(t, ctl.Close())
	require.NoError(t, ctl.Close())
	require.True(t, b.isClosed())

	require.NoError(t, p.Send("counter", 1, map[string]int{}))
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, got.Load())

	err := ctl.Send("counter", 1, nil)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryTransport))
}

func TestNewChannel_RequiresPrefix(t *testing.T) {
	_, err := newChannel(newFakeBus(), Options{})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))

	_, err = New(nil, Options{Prefix: "sb"})
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

// TestDial_Server runs against a real server when STATEBRIDGE_NATS_URL is set.
func TestDial_Server(t *testing.T) {
	url := os.Getenv("STATEBRIDGE_NATS_URL")
	if url == "" {
		t.Skip("STATEBRIDGE_NATS_URL not set")
	}
	prefix := "statebridge-test-" + uuid.NewString()[:8]

	ctl, err := Dial(Options{URL: url, Prefix: prefix, Controller: true})
	require.NoError(t, err)
	defer func() { _ = ctl.Close() }()
	peer, err := Dial(Options{URL: url, Prefix: prefix})
	require.NoError(t, err)
	defer func() { _ = peer.Close() }()

	ctl.On("counter-init", func(from channel.Sender, _ channel.Args) {
		_ = from.Send("counter", 1, map[string]int{"count": 0})
	})
	done := make(chan struct{})
	peer.On("counter", func(channel.Sender, channel.Args) { close(done) })

	require.NoError(t, peer.Send("counter-init"))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no hydration reply")
	}
}
