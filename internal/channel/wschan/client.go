package wschan

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

// Client is a peer endpoint connected to a Server.
type Client struct {
	ws     *websocket.Conn
	wmu    sync.Mutex
	router channel.Router
	logger *slog.Logger
	done   chan struct{}
	closed atomic.Bool
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to a controller at address, which must use the ws or wss scheme.
func Dial(ctx context.Context, address string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, ferrors.ConfigurationError("websocket address must be a ws:// or wss:// URL").
			WithContext("address", address).
			Build()
	}
	if logger == nil {
		logger = slog.Default()
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "dial controller").
			WithContext("address", address).
			Retryable().
			Build()
	}

	c := &Client{
		ws:     ws,
		logger: logger.With(logfields.Channel("websocket")),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Info("Controller connection ended", logfields.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		name, args, err := channel.DecodeFrame(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable frame", logfields.Error(err))
			continue
		}
		c.router.Dispatch(name, c, args)
	}
}

// Done is closed once the connection to the controller is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// IsController implements channel.Channel.
func (c *Client) IsController() bool { return false }

// On implements channel.Channel.
func (c *Client) On(name string, h channel.Handler) func() { return c.router.On(name, h) }

// Once implements channel.Channel.
func (c *Client) Once(name string, h channel.Handler) func() { return c.router.Once(name, h) }

// Send writes a frame to the controller.
func (c *Client) Send(name string, args ...any) error {
	if c.closed.Load() {
		return ferrors.TransportError("channel closed").WithContext("message", name).Build()
	}
	select {
	case <-c.done:
		return ferrors.TransportError("controller connection lost").WithContext("message", name).Build()
	default:
	}
	data, err := encode(name, args)
	if err != nil {
		return err
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "write to controller").
			WithContext("message", name).
			Build()
	}
	return nil
}

// Close sends a close frame and waits briefly for the reader to stop.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	c.router.Reset()
	return c.ws.Close()
}
