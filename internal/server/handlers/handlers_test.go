package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/journal"
	"git.home.luguber.info/inful/statebridge/internal/replica"
)

type stubState struct{}

func (stubState) UIDs() []string { return []string{"counter"} }

func (stubState) Snapshot(uid string) (replica.Snapshot, error) {
	if uid != "counter" {
		return replica.Snapshot{}, ferrors.NotFoundError("no live state instance").WithContext("uid", uid).Build()
	}
	return replica.Snapshot{UID: uid, Side: "controller", Generation: 3, Initialized: true, Fields: map[string]any{"count": 5}}, nil
}

type stubJournal struct{ limit int }

func (s *stubJournal) History(_ context.Context, uid string, limit int) ([]journal.Entry, error) {
	s.limit = limit
	return []journal.Entry{{UID: uid, Generation: 3, Reason: "sync", Payload: json.RawMessage(`{"count":5}`)}}, nil
}

func router(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealth)
	r.HandleFunc("/state", h.HandleStateList)
	r.HandleFunc("/state/{uid}", h.HandleState)
	r.HandleFunc("/journal/{uid}", h.HandleJournal)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHandlers(t *testing.T) {
	j := &stubJournal{}
	r := router(New("controller", stubState{}, j, quiet()))

	tests := []struct {
		name   string
		path   string
		status int
		body   string
	}{
		{"health", "/healthz", http.StatusOK, `"role":"controller"`},
		{"list", "/state", http.StatusOK, `"uids":["counter"]`},
		{"snapshot", "/state/counter", http.StatusOK, `"generation":3`},
		{"unknown uid", "/state/missing", http.StatusNotFound, `"code":"not_found"`},
		{"journal", "/journal/counter?limit=2", http.StatusOK, `"reason":"sync"`},
		{"bad limit", "/journal/counter?limit=x", http.StatusBadRequest, `"code":"validation"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, r, tc.path)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.body)
		})
	}
	require.Equal(t, 2, j.limit)
}

func TestHandleJournal_Disabled(t *testing.T) {
	r := router(New("controller", stubState{}, nil, quiet()))
	rec := get(t, r, "/journal/counter")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleState_Pretty(t *testing.T) {
	r := router(New("peer", stubState{}, nil, quiet()))
	rec := get(t, r, "/state/counter?pretty=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\n  \"uid\": \"counter\"")
}
