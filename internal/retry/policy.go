// Package retry provides backoff policies for transient failures such as the peer
// hydration loop.
package retry

import (
	"context"
	"time"

	"git.home.luguber.info/inful/statebridge/internal/config"
	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Unlimited as MaxRetries retries forever.
const Unlimited = 0

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       config.RetryBackoffMode // fixed|linear|exponential
	Initial    time.Duration           // base delay
	Max        time.Duration           // cap for growth
	MaxRetries int                     // retries after the first attempt; Unlimited retries forever
}

// DefaultPolicy returns the hydration default: a fixed 300ms delay, retried forever.
func DefaultPolicy() Policy {
	return Policy{
		Mode:       config.RetryBackoffFixed,
		Initial:    config.DefaultInitRetryInitial,
		Max:        config.DefaultInitRetryMax,
		MaxRetries: Unlimited,
	}
}

// NewPolicy builds a policy from raw fields; zero/invalid values fall back to defaults.
func NewPolicy(mode config.RetryBackoffMode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case config.RetryBackoffFixed, config.RetryBackoffLinear, config.RetryBackoffExponential:
		p.Mode = mode
	default:
		// unknown -> keep default
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// FromConfig builds a policy from a configuration section.
func FromConfig(c config.RetryConfig) Policy {
	return NewPolicy(c.Mode, c.Initial, c.Max, c.MaxRetries)
}

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case config.RetryBackoffFixed:
		return p.Initial
	case config.RetryBackoffExponential:
		if retryCount > 62 {
			return p.Max
		}
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	}
}

// Exhausted reports whether retryCount retries have used up the policy.
func (p Policy) Exhausted(retryCount int) bool {
	return p.MaxRetries != Unlimited && retryCount >= p.MaxRetries
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return ferrors.ValidationError("initial must be >0").Build()
	}
	if p.Max <= 0 {
		return ferrors.ValidationError("max must be >0").Build()
	}
	if p.MaxRetries < 0 {
		return ferrors.ValidationError("max retries cannot be negative").Build()
	}
	return nil
}

// Wait sleeps for the delay of retryCount or until ctx is done.
func (p Policy) Wait(ctx context.Context, retryCount int) error {
	d := p.Delay(retryCount)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
