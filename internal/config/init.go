package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ConfigurationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Config{
		Sync: SyncConfig{
			Interval: DefaultSyncInterval,
			InitRetry: RetryConfig{
				Mode:    RetryBackoffFixed,
				Initial: DefaultInitRetryInitial,
				Max:     DefaultInitRetryMax,
			},
		},
		RPC: RPCConfig{CallTimeout: 10 * time.Second},
		Transport: TransportConfig{
			Kind: TransportWebsocket,
			NATS: NATSConfig{
				URL:    "${NATS_URL}",
				Prefix: DefaultNATSPrefix,
			},
			Websocket: WebsocketConfig{
				Address: "ws://127.0.0.1:8080/sync",
				Path:    DefaultWebsocketPath,
			},
		},
		HTTP:    HTTPConfig{Listen: DefaultHTTPListen},
		Journal: JournalConfig{Path: "./statebridge-journal.db"},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
		Metrics: MetricsConfig{Enabled: true},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal config").Build()
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
