package wschan

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

const writeWait = 10 * time.Second

// Server is the controller endpoint. Send broadcasts to every connected peer and
// handlers receive a Sender answering the originating connection only.
type Server struct {
	upgrader websocket.Upgrader
	router   channel.Router
	logger   *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*peerConn
	closed atomic.Bool
}

var (
	_ channel.Channel = (*Server)(nil)
	_ http.Handler    = (*Server)(nil)
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer creates a controller endpoint with no connections.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: slog.Default(),
		conns:  make(map[string]*peerConn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logfields.Channel("websocket"))
	return s
}

// peerConn is one accepted connection. Writes are serialized by wmu.
type peerConn struct {
	id  string
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *peerConn) write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// peerSender answers a single connection.
type peerSender struct {
	s *Server
	c *peerConn
}

func (p peerSender) Send(name string, args ...any) error {
	data, err := encode(name, args)
	if err != nil {
		return err
	}
	if err := p.c.write(data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "write to peer").
			WithContext("peer", p.c.id).
			WithContext("message", name).
			Build()
	}
	return nil
}

// ServeHTTP upgrades the request and reads frames until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "channel closed", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", logfields.Path(r.URL.Path), logfields.Error(err))
		return
	}

	c := &peerConn{id: xid.New().String(), ws: ws}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	s.logger.Info("Peer connected", logfields.Peer(c.id), slog.String("remote", r.RemoteAddr))

	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		_ = ws.Close()
		s.logger.Info("Peer disconnected", logfields.Peer(c.id))
	}()

	from := peerSender{s: s, c: c}
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !s.closed.Load() {
				s.logger.Debug("Peer read ended", logfields.Peer(c.id), logfields.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		name, args, err := channel.DecodeFrame(data)
		if err != nil {
			s.logger.Warn("Dropping undecodable frame", logfields.Peer(c.id), logfields.Error(err))
			continue
		}
		s.router.Dispatch(name, from, args)
	}
}

// Peers returns the ids of the connected peers.
func (s *Server) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.conns))
	for id := range s.conns {
		out = append(out, id)
	}
	return out
}

// IsController implements channel.Channel.
func (s *Server) IsController() bool { return true }

// On implements channel.Channel.
func (s *Server) On(name string, h channel.Handler) func() { return s.router.On(name, h) }

// Once implements channel.Channel.
func (s *Server) Once(name string, h channel.Handler) func() { return s.router.Once(name, h) }

// Send broadcasts to every connected peer. A failing connection is closed; its
// reader then removes it.
func (s *Server) Send(name string, args ...any) error {
	if s.closed.Load() {
		return ferrors.TransportError("channel closed").WithContext("message", name).Build()
	}
	data, err := encode(name, args)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conns := make([]*peerConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			s.logger.Warn("Broadcast to peer failed", logfields.Peer(c.id), logfields.Error(err))
			_ = c.ws.Close()
		}
	}
	return nil
}

// Close disconnects every peer and stops accepting new ones.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.RLock()
	conns := make([]*peerConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "controller closing")
	for _, c := range conns {
		c.wmu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.wmu.Unlock()
		_ = c.ws.Close()
	}
	s.router.Reset()
	return nil
}

func encode(name string, args []any) ([]byte, error) {
	encoded, err := channel.NewArgs(args...)
	if err != nil {
		return nil, err
	}
	return channel.EncodeFrame(name, encoded)
}
