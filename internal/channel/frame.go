package channel

import (
	"encoding/json"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// EncodeFrame renders a message as the JSON array `[name, arg0, arg1, ...]`.
func EncodeFrame(name string, args Args) ([]byte, error) {
	parts := make([]json.RawMessage, 0, len(args)+1)
	n, err := json.Marshal(name)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "encode frame name").Build()
	}
	parts = append(parts, n)
	parts = append(parts, args...)
	return json.Marshal(parts)
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (string, Args, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryTransport, "malformed frame").Build()
	}
	if len(parts) == 0 {
		return "", nil, ferrors.TransportError("empty frame").Build()
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil || name == "" {
		return "", nil, ferrors.TransportError("frame has no message name").Build()
	}
	return name, Args(parts[1:]), nil
}
