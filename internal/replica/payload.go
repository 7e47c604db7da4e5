package replica

import (
	"encoding/json"

	ferrors "git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Patch is a partial payload. Top-level keys overwrite on merge.
type Patch map[string]any

// toFields converts v into a JSON-canonical field map.
func toFields(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "encode state payload").Build()
		}
		raw = b
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "state payload must be a JSON object").Build()
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// fromFields decodes a field map into out.
func fromFields(fields map[string]any, out any) error {
	b, err := json.Marshal(fields)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode state payload").Build()
	}
	if err := json.Unmarshal(b, out); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "decode state payload").Build()
	}
	return nil
}

func cloneFields(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// merge applies patch onto dst, overwriting top-level keys.
func merge(dst, patch map[string]any) {
	for k, v := range patch {
		dst[k] = cloneValue(v)
	}
}
