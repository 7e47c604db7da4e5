package foundation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

type settings struct {
	Role     string
	Interval time.Duration
	Address  string
}

func TestValidatorChain_CollectsAllFailures(t *testing.T) {
	chain := NewValidatorChain(
		Field(func(s settings) string { return s.Role }, OneOf("role", []string{"controller", "peer"})),
		Field(func(s settings) time.Duration { return s.Interval }, PositiveDuration("sync.interval")),
	).Add(Field(func(s settings) string { return s.Address }, URLScheme("websocket.address", "ws", "wss")))

	res := chain.Validate(settings{Role: "leader", Interval: 0, Address: "http://localhost:8080"})
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 3)
	require.Equal(t, "one_of", res.Errors[0].Code)
	require.Equal(t, "positive", res.Errors[1].Code)
	require.Equal(t, "url_scheme", res.Errors[2].Code)

	err := res.ToError()
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
	require.Contains(t, err.Error(), "field 'role'")
}

func TestValidatorChain_Valid(t *testing.T) {
	chain := NewValidatorChain(
		Field(func(s settings) string { return s.Role }, Required("role")),
		Field(func(s settings) time.Duration { return s.Interval }, NonNegativeDuration("rpc.call_timeout")),
		Field(func(s settings) string { return s.Address }, URLScheme("websocket.address", "ws", "wss")),
	)

	res := chain.Validate(settings{Role: "peer", Address: "wss://example.org/sync"})
	require.True(t, res.Valid)
	require.NoError(t, res.ToError())
}

func TestRequired(t *testing.T) {
	require.False(t, Required("nats.url")("   ").Valid)
	require.True(t, Required("nats.url")("nats://127.0.0.1:4222").Valid)
}

func TestNonNegativeDuration(t *testing.T) {
	require.False(t, NonNegativeDuration("rpc.call_timeout")(-time.Second).Valid)
	require.True(t, NonNegativeDuration("rpc.call_timeout")(0).Valid)
}

func TestURLScheme_Unparseable(t *testing.T) {
	res := URLScheme("websocket.address", "ws")("not a url")
	require.False(t, res.Valid)
	require.Equal(t, "url", res.Errors[0].Code)
}
