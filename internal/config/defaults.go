package config

import (
	"net"
	"time"
)

const (
	DefaultSyncInterval     = 30 * time.Millisecond
	DefaultInitRetryInitial = 300 * time.Millisecond
	DefaultInitRetryMax     = 5 * time.Second
	DefaultNATSURL          = "nats://127.0.0.1:4222"
	DefaultNATSPrefix       = "statebridge"
	DefaultWebsocketPath    = "/sync"
	DefaultHTTPListen       = ":8080"
)

// ApplyDefaults fills zero values. It runs after normalization so canonical values
// drive the defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = DefaultSyncInterval
	}

	r := &cfg.Sync.InitRetry
	if r.Mode == "" {
		r.Mode = RetryBackoffFixed
	}
	if r.Initial == 0 {
		r.Initial = DefaultInitRetryInitial
	}
	if r.Max == 0 {
		r.Max = DefaultInitRetryMax
	}

	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = TransportMemory
	}
	if cfg.Transport.NATS.URL == "" {
		cfg.Transport.NATS.URL = DefaultNATSURL
	}
	if cfg.Transport.NATS.Prefix == "" {
		cfg.Transport.NATS.Prefix = DefaultNATSPrefix
	}
	if cfg.Transport.Websocket.Path == "" {
		cfg.Transport.Websocket.Path = DefaultWebsocketPath
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = DefaultHTTPListen
	}
	if cfg.Transport.Websocket.Address == "" {
		cfg.Transport.Websocket.Address = localWebsocketAddress(cfg.HTTP.Listen, cfg.Transport.Websocket.Path)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

// localWebsocketAddress derives the loopback dial address of a listener.
func localWebsocketAddress(listen, path string) string {
	host, port := "127.0.0.1", "8080"
	if h, p, err := net.SplitHostPort(listen); err == nil {
		if h != "" && h != "0.0.0.0" && h != "::" {
			host = h
		}
		port = p
	}
	return "ws://" + net.JoinHostPort(host, port) + path
}
