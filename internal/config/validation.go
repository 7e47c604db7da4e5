package config

import (
	"time"

	"git.home.luguber.info/inful/statebridge/internal/foundation"
)

// Validate checks a normalized, defaulted configuration. All failures are reported
// together as one configuration error.
func Validate(cfg *Config) error {
	chain := foundation.NewValidatorChain(
		foundation.Field(func(c *Config) time.Duration { return c.Sync.Interval },
			foundation.PositiveDuration("sync.interval")),
		foundation.Field(func(c *Config) time.Duration { return c.Sync.InitRetry.Initial },
			foundation.PositiveDuration("sync.init_retry.initial")),
		foundation.Field(func(c *Config) time.Duration { return c.Sync.InitRetry.Max },
			foundation.PositiveDuration("sync.init_retry.max")),
		foundation.Field(func(c *Config) time.Duration { return c.RPC.CallTimeout },
			foundation.NonNegativeDuration("rpc.call_timeout")),
		validateRetryBounds,
		validateTransport,
	)
	if cfg.Role != "" {
		chain.Add(foundation.Field(func(c *Config) Role { return c.Role },
			foundation.OneOf("role", []Role{RoleController, RolePeer})))
	}
	return chain.Validate(cfg).ToError()
}

func validateRetryBounds(c *Config) foundation.ValidationResult {
	r := c.Sync.InitRetry
	result := foundation.Valid()
	if r.MaxRetries < 0 {
		result = result.Combine(foundation.Invalid(foundation.NewValidationError(
			"sync.init_retry.max_retries", "non_negative", "max retries cannot be negative (0 retries forever)")))
	}
	if r.Initial > r.Max && r.Max > 0 {
		result = result.Combine(foundation.Invalid(foundation.NewValidationError(
			"sync.init_retry.initial", "range", "initial delay exceeds max delay")))
	}
	return result
}

func validateTransport(c *Config) foundation.ValidationResult {
	switch c.Transport.Kind {
	case TransportNATS:
		return foundation.NewValidatorChain(
			foundation.Field(func(c *Config) string { return c.Transport.NATS.URL },
				foundation.URLScheme("transport.nats.url", "nats", "tls", "ws", "wss")),
			foundation.Field(func(c *Config) string { return c.Transport.NATS.Prefix },
				foundation.Required("transport.nats.prefix")),
		).Validate(c)
	case TransportWebsocket:
		return foundation.NewValidatorChain(
			foundation.Field(func(c *Config) string { return c.Transport.Websocket.Address },
				foundation.URLScheme("transport.websocket.address", "ws", "wss")),
			foundation.Field(func(c *Config) string { return c.Transport.Websocket.Path },
				foundation.Required("transport.websocket.path")),
		).Validate(c)
	case TransportMemory:
		return foundation.Valid()
	default:
		return foundation.Invalid(foundation.NewValidationError("transport.kind", "one_of",
			"transport kind must be one of: memory, nats, websocket"))
	}
}
