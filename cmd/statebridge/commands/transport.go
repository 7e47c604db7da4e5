package commands

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/statebridge/internal/channel"
	"git.home.luguber.info/inful/statebridge/internal/channel/memory"
	"git.home.luguber.info/inful/statebridge/internal/channel/natschan"
	"git.home.luguber.info/inful/statebridge/internal/channel/wschan"
	"git.home.luguber.info/inful/statebridge/internal/config"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// transport is an opened channel binding.
type transport struct {
	ch channel.Channel
	// sync is the handler a websocket controller mounts on its HTTP server.
	sync http.Handler
	// done closes when a peer connection drops. Nil for bindings that reconnect.
	done  <-chan struct{}
	close func() error
}

func openTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*transport, error) {
	controller := cfg.Role == config.RoleController
	switch cfg.Transport.Kind {
	case config.TransportNATS:
		ch, err := natschan.Dial(natschan.Options{
			URL:        cfg.Transport.NATS.URL,
			Prefix:     cfg.Transport.NATS.Prefix,
			Name:       cfg.Transport.NATS.Name,
			Controller: controller,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return &transport{ch: ch, close: ch.Close}, nil

	case config.TransportWebsocket:
		if controller {
			srv := wschan.NewServer(wschan.WithServerLogger(logger))
			return &transport{ch: srv, sync: srv, close: srv.Close}, nil
		}
		client, err := wschan.Dial(ctx, cfg.Transport.Websocket.Address, logger)
		if err != nil {
			return nil, err
		}
		return &transport{ch: client, done: client.Done(), close: client.Close}, nil

	default:
		if !controller {
			return nil, ferrors.ConfigurationError("memory transport cannot reach a controller in another process").
				WithContext("transport", string(cfg.Transport.Kind)).
				Build()
		}
		hub := memory.NewHub(memory.WithLogger(logger))
		return &transport{ch: hub.Controller(), close: hub.Close}, nil
	}
}
