package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTP status per category. Unclassified errors and unlisted categories are 500.
var statusCodes = map[ErrorCategory]int{
	CategoryValidation: http.StatusBadRequest,
	CategoryConfig:     http.StatusBadRequest,
	CategoryProtocol:   http.StatusBadRequest,
	CategoryNotFound:   http.StatusNotFound,
	CategoryTransport:  http.StatusBadGateway,
	CategoryRemote:     http.StatusBadGateway,
	CategoryRuntime:    http.StatusServiceUnavailable,
}

// HTTPErrorAdapter writes classified errors as JSON responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter creates an adapter. A nil logger uses the default logger.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// HTTPErrorResponse is the JSON error payload.
type HTTPErrorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code,omitempty"`
	UID       string         `json:"uid,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// StatusCodeFor determines the HTTP status code for an error.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if c, ok := AsClassified(err); ok {
		if status, ok := statusCodes[c.Category()]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// FormatErrorResponse converts an error into the response payload.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{}
	}
	c, ok := AsClassified(err)
	if !ok {
		return HTTPErrorResponse{Error: err.Error()}
	}
	resp := HTTPErrorResponse{
		Error:     c.Message(),
		Code:      string(c.Category()),
		UID:       c.UID(),
		Retryable: c.CanRetry(),
	}
	if len(c.Context()) > 0 {
		resp.Details = map[string]any(c.Context())
	}
	return resp
}

// WriteErrorResponse writes the JSON payload for err and logs it at the level of
// its severity, tagged with the request method and path.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	b, jerr := json.Marshal(a.FormatErrorResponse(err))
	if jerr != nil {
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
	}
	if c, ok := AsClassified(err); ok {
		a.logger.LogAttrs(r.Context(), c.Severity().Level(), c.Message(), append(attrs, c.LogAttrs()...)...)
		return
	}
	a.logger.LogAttrs(r.Context(), slog.LevelError, err.Error(), attrs...)
}
