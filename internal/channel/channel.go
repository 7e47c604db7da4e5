package channel

import (
	"bytes"
	"encoding/json"
	"fmt"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=mock_channel.go -package=channel

// Sender delivers a named message. The Sender handed to a Handler replies to the
// process the handled message came from.
type Sender interface {
	Send(name string, args ...any) error
}

// Handler processes one inbound message.
type Handler func(from Sender, args Args)

// Channel is the bidirectional named-message transport consumed by the replication core.
type Channel interface {
	Sender

	// IsController reports whether this process is the authoritative side.
	IsController() bool
	// On registers a persistent handler. The returned func removes it.
	On(name string, h Handler) (cancel func())
	// Once registers a handler invoked for the first matching message only.
	// The returned func removes it if it has not fired yet.
	Once(name string, h Handler) (cancel func())
	// Close releases the transport. Handlers stop firing.
	Close() error
}

// Args holds the JSON-encoded arguments of one message.
type Args []json.RawMessage

var nullJSON = []byte("null")

// NewArgs encodes values into Args.
func NewArgs(values ...any) (Args, error) {
	args := make(Args, len(values))
	for i, v := range values {
		if raw, ok := v.(json.RawMessage); ok {
			if len(raw) == 0 {
				raw = nullJSON
			}
			args[i] = raw
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "encode message argument").
				WithContext("index", i).
				Build()
		}
		args[i] = b
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Raw returns argument i, or nil when it is absent.
func (a Args) Raw(i int) json.RawMessage {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// IsNull reports whether argument i is absent or JSON null.
func (a Args) IsNull(i int) bool {
	raw := a.Raw(i)
	return raw == nil || bytes.Equal(bytes.TrimSpace(raw), nullJSON)
}

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	raw := a.Raw(i)
	if raw == nil {
		return ferrors.ValidationError(fmt.Sprintf("missing message argument %d", i)).
			WithContext("len", len(a)).
			Build()
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "decode message argument").
			WithContext("index", i).
			Build()
	}
	return nil
}

// Tail returns the arguments from index i on.
func (a Args) Tail(i int) Args {
	if i >= len(a) {
		return Args{}
	}
	return a[i:]
}
