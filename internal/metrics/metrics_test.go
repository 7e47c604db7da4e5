package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncPushSent("counter")
	r.IncPushReceived("counter", PushStale)
	r.ObserveFlush(time.Millisecond, 2)
	r.AddInflightCalls(1)
}

func TestPrometheusRecorder_Gather(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncPushSent("counter")
	pr.IncPushReceived("counter", PushAccepted)
	pr.IncHydrationServed("counter")
	pr.ObserveFlush(150*time.Microsecond, 1)
	pr.IncCall("multiply", CallSuccess)
	pr.ObserveCallDuration("multiply", 2*time.Millisecond)
	pr.AddInflightCalls(1)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["statebridge_pushes_sent_total"])
	require.True(t, names["statebridge_pushes_received_total"])
	require.True(t, names["statebridge_rpc_calls_inflight"])
}

func TestPrometheusRecorder_NilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.IncPushSent("counter")
	pr.AddInflightCalls(-1)
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncPushSent("counter")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `statebridge_pushes_sent_total{uid="counter"} 1`)
	require.Contains(t, string(body), "go_goroutines")

	// A second handler on the same registry reuses the runtime collectors.
	require.NotPanics(t, func() { HTTPHandler(reg) })
}

func TestMemoryRecorder(t *testing.T) {
	m := NewMemoryRecorder()
	m.IncPushSent("counter")
	m.IncPushSent("counter")
	m.IncPushReceived("counter", PushStale)
	m.IncHydrationServed("counter")
	m.ObserveFlush(time.Millisecond, 3)
	m.IncCall("multiply", CallRemoteError)
	m.AddInflightCalls(1)
	m.AddInflightCalls(-1)

	require.Equal(t, 2, m.PushesSent("counter"))
	require.Equal(t, 1, m.PushesReceived("counter", PushStale))
	require.Equal(t, 0, m.PushesReceived("counter", PushAccepted))
	require.Equal(t, 1, m.HydrationsServed("counter"))
	drains, n := m.Flushes()
	require.Equal(t, 1, drains)
	require.Equal(t, 3, n)
	require.Equal(t, 1, m.Calls("multiply", CallRemoteError))
	require.Equal(t, 0, m.Inflight())
}
