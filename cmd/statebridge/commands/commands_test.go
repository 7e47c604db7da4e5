package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/config"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/replica"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func websocketConfig(role config.Role) *config.Config {
	cfg := config.Default()
	cfg.Role = role
	cfg.Transport.Kind = config.TransportWebsocket
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Sync.InitRetry.Initial = 50 * time.Millisecond
	cfg.Sync.InitRetry.Max = 200 * time.Millisecond
	return cfg
}

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    replica.Patch
		wantErr bool
	}{
		{name: "empty", in: nil, want: nil},
		{name: "json number", in: []string{"count=5"}, want: replica.Patch{"count": float64(5)}},
		{name: "plain string", in: []string{"label=hello world"}, want: replica.Patch{"label": "hello world"}},
		{name: "quoted string", in: []string{`label="42"`}, want: replica.Patch{"label": "42"}},
		{name: "value keeps equals", in: []string{"label=a=b"}, want: replica.Patch{"label": "a=b"}},
		{name: "missing equals", in: []string{"count"}, wantErr: true},
		{name: "empty key", in: []string{"=3"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseCalls(t *testing.T) {
	calls, err := parseCalls([]string{"multiply:3", "static.version", "describe:a, 2,true"})
	require.NoError(t, err)
	require.Equal(t, []methodCall{
		{name: "multiply", args: []any{float64(3)}},
		{name: "version", static: true},
		{name: "describe", args: []any{"a", float64(2), true}},
	}, calls)

	_, err = parseCalls([]string{":3"})
	require.Error(t, err)
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statebridge.yaml")
	var out bytes.Buffer

	require.NoError(t, RunInit(&out, path, false))
	require.Contains(t, out.String(), "initialized successfully")
	_, err := os.Stat(path)
	require.NoError(t, err)

	out.Reset()
	err = RunInit(&out, path, false)
	require.Error(t, err)
	require.Contains(t, out.String(), "Initialization failed")

	require.NoError(t, RunInit(io.Discard, path, true))
}

func TestRunPeer_MemoryTransportRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Role = config.RolePeer

	err := runPeer(context.Background(), cfg, quiet(), io.Discard, &PeerCmd{Timeout: time.Second})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestControllerAndPeer_Websocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	journalPath := filepath.Join(t.TempDir(), "journal.db")
	ctlCfg := websocketConfig(config.RoleController)
	ctlCfg.Journal.Path = journalPath
	ctlCfg.Metrics.Enabled = true

	app, err := startController(ctx, ctlCfg, quiet())
	require.NoError(t, err)
	stopped := false
	t.Cleanup(func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	})
	addr := app.http.Addr()
	require.NotEmpty(t, addr)

	peerCfg := websocketConfig(config.RolePeer)
	peerCfg.Transport.Websocket.Address = "ws://" + addr + ctlCfg.Transport.Websocket.Path

	var out bytes.Buffer
	err = runPeer(ctx, peerCfg, quiet(), &out, &PeerCmd{
		Set:     []string{"count=5", "label=demo"},
		Call:    []string{"multiply:3", "static.version"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), `counter g=1 {"count":0,"label":"statebridge"}`)
	require.Contains(t, out.String(), "multiply -> 15")
	require.Contains(t, out.String(), "version -> ")

	require.Eventually(t, func() bool {
		c, err := app.counter.Get()
		return err == nil && c.Count == 15 && c.Label == "demo"
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/state/counter")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "statebridge_hydrations_served_total")

	stopped = true
	require.NoError(t, app.Stop(context.Background()))

	var history bytes.Buffer
	require.NoError(t, runHistory(context.Background(), journalPath, CounterUID, 0, &history))
	require.Contains(t, history.String(), replica.ReasonHydrate)

	history.Reset()
	require.NoError(t, runHistory(context.Background(), journalPath, "", 0, &history))
	require.Contains(t, history.String(), CounterUID)

	err = runHistory(context.Background(), journalPath, "missing", 0, io.Discard)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
}
