package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/channel"
)

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) add(s string) {
	c.mu.Lock()
	c.msgs = append(c.msgs, s)
	c.mu.Unlock()
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestHub_ControllerBroadcasts(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	ctl := hub.Controller()
	p1, p2 := hub.Peer(), hub.Peer()
	require.True(t, ctl.IsController())
	require.False(t, p1.IsController())

	var got collector
	for _, p := range []*Endpoint{p1, p2} {
		p.On("counter", func(_ channel.Sender, args channel.Args) {
			var n int
			require.NoError(t, args.Decode(0, &n))
			got.add("push")
		})
	}

	require.NoError(t, ctl.Send("counter", 1))
	require.True(t, hub.WaitIdle(time.Second))
	require.Len(t, got.all(), 2)
}

func TestHub_ReplyGoesToOriginOnly(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	ctl := hub.Controller()
	p1, p2 := hub.Peer(), hub.Peer()

	ctl.On("counter-init", func(from channel.Sender, _ channel.Args) {
		require.NoError(t, from.Send("counter", 1, map[string]int{"count": 0}))
	})

	var p1Got, p2Got collector
	p1.On("counter", func(_ channel.Sender, _ channel.Args) { p1Got.add("hydrate") })
	p2.On("counter", func(_ channel.Sender, _ channel.Args) { p2Got.add("hydrate") })

	require.NoError(t, p1.Send("counter-init"))
	require.True(t, hub.WaitIdle(time.Second))

	require.Equal(t, []string{"hydrate"}, p1Got.all())
	require.Empty(t, p2Got.all())
}

func TestHub_PreservesOrder(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	ctl := hub.Controller()
	peer := hub.Peer()

	var mu sync.Mutex
	var seen []int
	ctl.On("seq", func(_ channel.Sender, args channel.Args) {
		var n int
		require.NoError(t, args.Decode(0, &n))
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	for i := range 100 {
		require.NoError(t, peer.Send("seq", i))
	}
	require.True(t, hub.WaitIdle(time.Second))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 100)
	for i, n := range seen {
		require.Equal(t, i, n)
	}
}

func TestHub_ArgumentsDoNotAlias(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	ctl := hub.Controller()
	peer := hub.Peer()

	payload := map[string]any{"count": 1}
	received := make(chan map[string]any, 1)
	peer.On("counter", func(_ channel.Sender, args channel.Args) {
		var m map[string]any
		require.NoError(t, args.Decode(0, &m))
		received <- m
	})

	require.NoError(t, ctl.Send("counter", payload))
	payload["count"] = 99

	select {
	case m := <-received:
		require.InDelta(t, 1.0, m["count"], 0)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHub_PeerWithoutControllerDrops(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	peer := hub.Peer()
	require.NoError(t, peer.Send("counter-init"))
	require.True(t, hub.WaitIdle(time.Second))
}

func TestEndpoint_CloseStopsDelivery(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Close() }()

	ctl := hub.Controller()
	peer := hub.Peer()

	var got collector
	peer.On("counter", func(_ channel.Sender, _ channel.Args) { got.add("x") })
	require.NoError(t, peer.Close())
	require.NoError(t, peer.Close())

	require.NoError(t, ctl.Send("counter", 1))
	require.True(t, hub.WaitIdle(time.Second))
	require.Empty(t, got.all())

	require.Error(t, peer.Send("counter", 1))
}
