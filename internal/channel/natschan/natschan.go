// Package natschan binds channel.Channel to NATS core subjects.
//
// With prefix p the controller listens on `p.ctl` and broadcasts on `p.bcast`. Each
// peer listens on `p.bcast` and on its own `p.peer.<uuid>` inbox, and publishes to
// `p.ctl`. The reply subject of every message names the sender's inbox so handlers
// can answer the originating endpoint only. All subscriptions of one endpoint feed a
// single queue, so messages are handled in the order the connection received them.
package natschan

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
	"git.home.luguber.info/inful/statebridge/internal/logfields"
)

// Options configures a NATS channel.
type Options struct {
	URL        string
	Prefix     string
	Name       string
	Controller bool
	Logger     *slog.Logger
}

// deliveryBuffer bounds the messages queued for one endpoint.
const deliveryBuffer = 4096

// bus is the subset of a NATS connection the channel uses.
type bus interface {
	Publish(msg *nats.Msg) error
	ChanSubscribe(subject string, ch chan *nats.Msg) (func() error, error)
	Close()
}

type connBus struct{ conn *nats.Conn }

func (b connBus) Publish(msg *nats.Msg) error { return b.conn.PublishMsg(msg) }

func (b connBus) ChanSubscribe(subject string, ch chan *nats.Msg) (func() error, error) {
	sub, err := b.conn.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (b connBus) Close() { b.conn.Close() }

// Channel is a channel.Channel over NATS.
type Channel struct {
	bus        bus
	controller bool
	id         string
	prefix     string
	inbox      string
	router     channel.Router
	logger     *slog.Logger

	msgs chan *nats.Msg
	done chan struct{}

	mu     sync.Mutex
	unsubs []func() error
	closed atomic.Bool
}

var _ channel.Channel = (*Channel)(nil)

// Dial connects to opts.URL and returns a channel owning the connection.
func Dial(opts Options) (*Channel, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	natsOpts := []nats.Option{}
	if opts.Name != "" {
		natsOpts = append(natsOpts, nats.Name(opts.Name))
	}
	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "connect to NATS").
			WithContext("url", opts.URL).
			Retryable().
			Build()
	}
	ch, err := newChannel(connBus{conn: conn}, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ch, nil
}

// New wraps an established connection. Close leaves the connection open.
func New(conn *nats.Conn, opts Options) (*Channel, error) {
	if conn == nil {
		return nil, ferrors.ConfigurationError("NATS connection is nil").Build()
	}
	return newChannel(sharedBus{connBus{conn: conn}}, opts)
}

// sharedBus does not close the underlying connection.
type sharedBus struct{ connBus }

func (sharedBus) Close() {}

func newChannel(b bus, opts Options) (*Channel, error) {
	if opts.Prefix == "" {
		return nil, ferrors.ConfigurationError("NATS subject prefix is empty").Build()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Channel{
		bus:        b,
		controller: opts.Controller,
		id:         uuid.NewString(),
		prefix:     opts.Prefix,
		msgs:       make(chan *nats.Msg, deliveryBuffer),
		done:       make(chan struct{}),
	}
	if c.controller {
		c.inbox = ControlSubject(c.prefix)
	} else {
		c.inbox = PeerSubject(c.prefix, c.id)
	}
	c.logger = logger.With(logfields.Channel("nats"), logfields.Peer(c.id))

	subjects := []string{c.inbox}
	if !c.controller {
		subjects = append(subjects, BroadcastSubject(c.prefix))
	}
	go c.run()
	for _, subject := range subjects {
		unsub, err := c.bus.ChanSubscribe(subject, c.msgs)
		if err != nil {
			_ = c.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryTransport, "subscribe").
				WithContext("subject", subject).
				Build()
		}
		c.mu.Lock()
		c.unsubs = append(c.unsubs, unsub)
		c.mu.Unlock()
	}
	c.logger.Debug("NATS channel ready", slog.String("inbox", c.inbox), slog.Bool("controller", c.controller))
	return c, nil
}

// ControlSubject is the subject the controller listens on.
func ControlSubject(prefix string) string { return prefix + ".ctl" }

// BroadcastSubject is the subject peers listen on for controller broadcasts.
func BroadcastSubject(prefix string) string { return prefix + ".bcast" }

// PeerSubject is the direct inbox of one peer.
func PeerSubject(prefix, id string) string { return prefix + ".peer." + id }

// ID returns the endpoint identifier used in the peer inbox subject.
func (c *Channel) ID() string { return c.id }

// Inbox returns the subject this endpoint receives direct messages on.
func (c *Channel) Inbox() string { return c.inbox }

// IsController implements channel.Channel.
func (c *Channel) IsController() bool { return c.controller }

// On implements channel.Channel.
func (c *Channel) On(name string, h channel.Handler) func() { return c.router.On(name, h) }

// Once implements channel.Channel.
func (c *Channel) Once(name string, h channel.Handler) func() { return c.router.Once(name, h) }

// Send broadcasts from the controller or sends to the controller from a peer.
func (c *Channel) Send(name string, args ...any) error {
	subject := ControlSubject(c.prefix)
	if c.controller {
		subject = BroadcastSubject(c.prefix)
	}
	return c.publish(subject, name, args)
}

func (c *Channel) publish(subject, name string, args []any) error {
	if c.closed.Load() {
		return ferrors.TransportError("channel closed").WithContext("message", name).Build()
	}
	encoded, err := channel.NewArgs(args...)
	if err != nil {
		return err
	}
	data, err := channel.EncodeFrame(name, encoded)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(&nats.Msg{Subject: subject, Reply: c.inbox, Data: data}); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryTransport, "publish").
			WithContext("subject", subject).
			WithContext("message", name).
			Build()
	}
	return nil
}

// run handles queued messages until the channel closes.
func (c *Channel) run() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.msgs:
			c.handle(msg)
		}
	}
}

func (c *Channel) handle(msg *nats.Msg) {
	if c.closed.Load() {
		return
	}
	name, args, err := channel.DecodeFrame(msg.Data)
	if err != nil {
		c.logger.Warn("Dropping undecodable message", slog.String("subject", msg.Subject), logfields.Error(err))
		return
	}
	c.router.Dispatch(name, replyTo{ch: c, subject: msg.Reply}, args)
}

// replyTo answers the endpoint a message came from.
type replyTo struct {
	ch      *Channel
	subject string
}

func (r replyTo) Send(name string, args ...any) error {
	if r.subject == "" {
		return ferrors.TransportError("message carried no reply subject").WithContext("message", name).Build()
	}
	return r.ch.publish(r.subject, name, args)
}

// Close unsubscribes and, for dialed channels, closes the connection.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	var firstErr error
	for _, unsub := range unsubs {
		if err := unsub(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(c.done)
	c.router.Reset()
	c.bus.Close()
	if firstErr != nil {
		return ferrors.WrapError(firstErr, ferrors.CategoryTransport, "unsubscribe").Build()
	}
	return nil
}
