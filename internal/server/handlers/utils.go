package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// encodeJSON renders v, indented when the request asks for ?pretty=1 or ?pretty=true.
func encodeJSON(r *http.Request, v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if p := r.URL.Query().Get("pretty"); p == "1" || p == "true" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
