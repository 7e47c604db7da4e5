package channel

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

func TestNewArgs(t *testing.T) {
	args, err := NewArgs(1, "two", map[string]int{"three": 3}, nil, json.RawMessage(`{"raw":true}`))
	require.NoError(t, err)
	require.Equal(t, 5, args.Len())

	var n int
	require.NoError(t, args.Decode(0, &n))
	require.Equal(t, 1, n)

	var m map[string]int
	require.NoError(t, args.Decode(2, &m))
	require.Equal(t, 3, m["three"])

	require.True(t, args.IsNull(3))
	require.False(t, args.IsNull(4))
	require.True(t, args.IsNull(9))
	require.JSONEq(t, `{"raw":true}`, string(args.Raw(4)))
}

func TestNewArgs_Unencodable(t *testing.T) {
	_, err := NewArgs(make(chan int))
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestArgsDecode_Missing(t *testing.T) {
	args := Args{}
	var s string
	err := args.Decode(0, &s)
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}

func TestArgsTail(t *testing.T) {
	args, err := NewArgs("static", "multiply", "7", 3, 4)
	require.NoError(t, err)

	tail := args.Tail(3)
	require.Equal(t, 2, tail.Len())
	var x int
	require.NoError(t, tail.Decode(1, &x))
	require.Equal(t, 4, x)
	require.Equal(t, 0, args.Tail(10).Len())
}

func TestFrameRoundTrip(t *testing.T) {
	args, err := NewArgs(uint64(2), map[string]int{"count": 5})
	require.NoError(t, err)

	data, err := EncodeFrame("counter", args)
	require.NoError(t, err)
	require.JSONEq(t, `["counter", 2, {"count": 5}]`, string(data))

	name, decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	require.Equal(t, "counter", name)
	require.Equal(t, 2, decoded.Len())
}

func TestDecodeFrame_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `counter`},
		{name: "object", input: `{"name":"counter"}`},
		{name: "empty array", input: `[]`},
		{name: "numeric name", input: `[1, 2]`},
		{name: "empty name", input: `["", 2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFrame([]byte(tt.input))
			require.Error(t, err)
			require.True(t, ferrors.HasCategory(err, ferrors.CategoryTransport))
		})
	}
}

func TestRouter_OnAndCancel(t *testing.T) {
	var r Router
	var calls []string

	cancelA := r.On("x", func(_ Sender, _ Args) { calls = append(calls, "a") })
	r.On("x", func(_ Sender, _ Args) { calls = append(calls, "b") })

	require.Equal(t, 2, r.Dispatch("x", nil, nil))
	require.Equal(t, []string{"a", "b"}, calls)

	cancelA()
	cancelA()
	require.Equal(t, 1, r.Count("x"))
	require.Equal(t, 1, r.Dispatch("x", nil, nil))
	require.Equal(t, []string{"a", "b", "b"}, calls)

	require.Equal(t, 0, r.Dispatch("unknown", nil, nil))
}

func TestRouter_OnceFiresOnce(t *testing.T) {
	var r Router
	var mu sync.Mutex
	fired := 0
	r.Once("reply-1", func(_ Sender, _ Args) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Dispatch("reply-1", nil, nil)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, fired)
	require.Equal(t, 0, r.Count("reply-1"))
}

func TestRouter_OnceCancelBeforeFire(t *testing.T) {
	var r Router
	cancel := r.Once("reply-2", func(_ Sender, _ Args) { t.Fatal("canceled handler fired") })
	cancel()
	require.Equal(t, 0, r.Dispatch("reply-2", nil, nil))
}

func TestRouter_HandlerMayRegister(t *testing.T) {
	var r Router
	r.On("outer", func(_ Sender, _ Args) {
		r.On("inner", func(_ Sender, _ Args) {})
	})
	r.Dispatch("outer", nil, nil)
	require.Equal(t, 1, r.Count("inner"))

	r.Reset()
	require.Equal(t, 0, r.Count("outer"))
}
