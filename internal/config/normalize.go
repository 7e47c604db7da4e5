package config

import (
	"fmt"
	"strings"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Normalize canonicalises enumerations in place and returns human-readable warnings
// for values that were rewritten. Unknown enumeration values are configuration errors.
func Normalize(cfg *Config) ([]string, error) {
	var warnings []string
	note := func(field, before, after string) {
		if before != "" && before != after {
			warnings = append(warnings, fmt.Sprintf("normalized %s from '%s' to '%s'", field, before, after))
		}
	}

	role, err := roleNormalizer.NormalizeWithError(string(cfg.Role))
	if err != nil {
		return nil, wrapNormalize(err, "role")
	}
	note("role", string(cfg.Role), string(role))
	cfg.Role = role

	kind, err := transportNormalizer.NormalizeWithError(string(cfg.Transport.Kind))
	if err != nil {
		return nil, wrapNormalize(err, "transport.kind")
	}
	note("transport.kind", string(cfg.Transport.Kind), string(kind))
	cfg.Transport.Kind = kind

	mode, err := retryBackoffNormalizer.NormalizeWithError(string(cfg.Sync.InitRetry.Mode))
	if err != nil {
		return nil, wrapNormalize(err, "sync.init_retry.mode")
	}
	note("sync.init_retry.mode", string(cfg.Sync.InitRetry.Mode), string(mode))
	cfg.Sync.InitRetry.Mode = mode

	level, err := logLevelNormalizer.NormalizeWithError(string(cfg.Logging.Level))
	if err != nil {
		return nil, wrapNormalize(err, "logging.level")
	}
	note("logging.level", string(cfg.Logging.Level), string(level))
	cfg.Logging.Level = level

	format, err := logFormatNormalizer.NormalizeWithError(string(cfg.Logging.Format))
	if err != nil {
		return nil, wrapNormalize(err, "logging.format")
	}
	note("logging.format", string(cfg.Logging.Format), string(format))
	cfg.Logging.Format = format

	cfg.Transport.NATS.Prefix = strings.Trim(strings.TrimSpace(cfg.Transport.NATS.Prefix), ".")
	cfg.Transport.NATS.URL = strings.TrimSpace(cfg.Transport.NATS.URL)
	cfg.Transport.Websocket.Address = strings.TrimSpace(cfg.Transport.Websocket.Address)

	return warnings, nil
}

func wrapNormalize(err error, field string) error {
	return ferrors.WrapError(err, ferrors.CategoryConfig, "normalize").
		WithSeverity(ferrors.SeverityFatal).
		WithContext("field", field).
		Build()
}
