package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/journal"
	"git.home.luguber.info/inful/statebridge/internal/replica"
	"git.home.luguber.info/inful/statebridge/internal/server/responses"
	"git.home.luguber.info/inful/statebridge/internal/version"
)

// StateView exposes the live instances of a runtime.
type StateView interface {
	UIDs() []string
	Snapshot(uid string) (replica.Snapshot, error)
}

// JournalView reads journal history.
type JournalView interface {
	History(ctx context.Context, uid string, limit int) ([]journal.Entry, error)
}

const defaultHistoryLimit = 50

// Handlers serves the read-only statebridge API.
type Handlers struct {
	role         string
	state        StateView
	journal      JournalView
	startTime    time.Time
	errorAdapter *ferrors.HTTPErrorAdapter
}

// New creates the handlers. journal may be nil.
func New(role string, state StateView, journal JournalView, logger *slog.Logger) *Handlers {
	return &Handlers{
		role:         role,
		state:        state,
		journal:      journal,
		startTime:    time.Now(),
		errorAdapter: ferrors.NewHTTPErrorAdapter(logger),
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.errorAdapter.WriteErrorResponse(w, r, err)
}

func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, v any) {
	body, err := encodeJSON(r, v)
	if err != nil {
		h.writeError(w, r, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to encode response").Build())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, &responses.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).Seconds(),
		Role:      h.role,
		Instances: len(h.state.UIDs()),
	})
}

// HandleStateList lists live uids.
func (h *Handlers) HandleStateList(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, &responses.StateListResponse{UIDs: h.state.UIDs()})
}

// HandleState returns the snapshot of one instance.
func (h *Handlers) HandleState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.state.Snapshot(mux.Vars(r)["uid"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, snap)
}

// HandleJournal returns recent journal entries for one uid, newest first.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	if h.journal == nil {
		h.writeError(w, r, ferrors.NotFoundError("journal is not enabled").WithContext("uid", uid).Build())
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, r, ferrors.ValidationError("limit must be a non-negative integer").
				WithContext("limit", raw).
				Build())
			return
		}
		limit = n
	}
	entries, err := h.journal.History(r.Context(), uid, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, &responses.JournalResponse{UID: uid, Entries: entries})
}
