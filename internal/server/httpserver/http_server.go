// Package httpserver wires the statebridge HTTP surface: the websocket sync endpoint,
// Prometheus metrics, health and state inspection.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
	"git.home.luguber.info/inful/statebridge/internal/server/handlers"
	smw "git.home.luguber.info/inful/statebridge/internal/server/middleware"
)

const readHeaderTimeout = 5 * time.Second

// Options configures the server. Nil handlers leave their route unregistered.
type Options struct {
	Listen   string
	Role     string
	State    handlers.StateView
	Journal  handlers.JournalView
	Sync     http.Handler
	SyncPath string
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server serves the statebridge HTTP endpoints on one listener.
type Server struct {
	opts    Options
	router  *mux.Router
	logger  *slog.Logger
	handler http.Handler

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New builds the router. It does not listen.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SyncPath == "" {
		opts.SyncPath = "/sync"
	}

	s := &Server{opts: opts, router: mux.NewRouter(), logger: logger}
	h := handlers.New(opts.Role, opts.State, opts.Journal, logger)

	s.router.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/state", h.HandleStateList).Methods(http.MethodGet)
	s.router.HandleFunc("/state/{uid}", h.HandleState).Methods(http.MethodGet)
	s.router.HandleFunc("/journal/{uid}", h.HandleJournal).Methods(http.MethodGet)
	if opts.Metrics != nil {
		s.router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	chain := smw.Chain(logger, ferrors.NewHTTPErrorAdapter(logger))
	api := chain(s.router)

	// Long-lived sync connections bypass request logging.
	if opts.Sync != nil {
		top := http.NewServeMux()
		top.Handle(opts.SyncPath, opts.Sync)
		top.Handle("/", api)
		s.handler = top
	} else {
		s.handler = api
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ferrors.RuntimeError("http server already started").Build()
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Listen)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "http listen").
			WithContext("listen", s.opts.Listen).
			Build()
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv, s.ln = srv, ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", logfields.Error(err))
		}
	}()
	s.logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "http server shutdown").Build()
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
