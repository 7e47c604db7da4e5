package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.Equal(t, config.RetryBackoffFixed, p.Mode)
	require.Equal(t, 300*time.Millisecond, p.Initial)
	require.Equal(t, Unlimited, p.MaxRetries)
	require.False(t, p.Exhausted(1_000_000))
}

func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, 5*time.Second, 2*time.Second, 5)
	// initial > max -> clamped
	require.Equal(t, 2*time.Second, p.Initial)
	require.Equal(t, 2*time.Second, p.Max)
	require.Equal(t, config.RetryBackoffLinear, p.Mode)
	require.Equal(t, 5, p.MaxRetries)
	require.False(t, p.Exhausted(4))
	require.True(t, p.Exhausted(5))

	unknown := NewPolicy("bogus", 0, 0, -1)
	require.Equal(t, DefaultPolicy(), unknown)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{Mode: config.RetryBackoffExponential, Initial: 10 * time.Millisecond, Max: time.Second})
	require.Equal(t, config.RetryBackoffExponential, p.Mode)
	require.Equal(t, 10*time.Millisecond, p.Initial)
	require.Equal(t, Unlimited, p.MaxRetries)
}

func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		require.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	cases := []struct {
		attempt int
		want    time.Duration
	}{{1, 100 * time.Millisecond}, {2, 200 * time.Millisecond}, {3, 250 * time.Millisecond}, {4, 250 * time.Millisecond}}
	for _, c := range cases {
		require.Equal(t, c.want, linear.Delay(c.attempt), "linear attempt %d", c.attempt)
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	expCases := []struct {
		attempt int
		want    time.Duration
	}{{1, 50 * time.Millisecond}, {2, 100 * time.Millisecond}, {3, 160 * time.Millisecond}, {200, 160 * time.Millisecond}}
	for _, c := range expCases {
		require.Equal(t, c.want, exp.Delay(c.attempt), "exp attempt %d", c.attempt)
	}
}

func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, 10*time.Millisecond, 20*time.Millisecond, 1)
	require.Zero(t, p.Delay(0))
	require.Zero(t, p.Delay(-1))
}

func TestValidate(t *testing.T) {
	require.Error(t, Policy{Mode: config.RetryBackoffLinear, Max: time.Second}.Validate())
	require.Error(t, Policy{Mode: config.RetryBackoffLinear, Initial: time.Second}.Validate())
	require.Error(t, Policy{Initial: time.Second, Max: time.Second, MaxRetries: -1}.Validate())
	require.NoError(t, DefaultPolicy().Validate())
}

func TestWait_Canceled(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)
	require.NoError(t, NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 0).Wait(context.Background(), 1))
}
