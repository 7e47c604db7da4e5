// Package config loads and validates the statebridge configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Role      Role            `yaml:"role"`
	Sync      SyncConfig      `yaml:"sync"`
	RPC       RPCConfig       `yaml:"rpc"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`
	Journal   JournalConfig   `yaml:"journal"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SyncConfig controls the flush tick and the peer hydration loop.
type SyncConfig struct {
	Interval  time.Duration `yaml:"interval"`
	InitRetry RetryConfig   `yaml:"init_retry"`
}

// RetryConfig describes a backoff schedule. MaxRetries 0 retries forever.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// RPCConfig controls pinned method calls.
type RPCConfig struct {
	// CallTimeout bounds how long a proxied call waits for its reply. Zero waits forever.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// TransportConfig selects and configures the message channel binding.
type TransportConfig struct {
	Kind      TransportKind   `yaml:"kind"`
	NATS      NATSConfig      `yaml:"nats"`
	Websocket WebsocketConfig `yaml:"websocket"`
}

// NATSConfig configures the NATS binding.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
	Name   string `yaml:"name,omitempty"`
}

// WebsocketConfig configures the websocket binding. Peers dial Address; the controller
// serves the binding on the HTTP listener under Path.
type WebsocketConfig struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// HTTPConfig configures the controller HTTP server.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// JournalConfig configures the SQLite broadcast journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig toggles the Prometheus recorder and /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads, normalizes, defaults and validates a configuration file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, ferrors.ConfigurationError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse builds a Config from YAML content. ${VAR} references are expanded from the
// process environment before decoding.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Build()
	}

	warnings, err := Normalize(&cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "config normalization: %s\n", w)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration populated with defaults only.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}
