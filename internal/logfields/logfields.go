package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyUID           = "uid"
	KeyGeneration    = "generation"
	KeySide          = "side"
	KeyMethod        = "method"
	KeyMethodKind    = "method_kind"
	KeyCorrelationID = "correlation_id"
	KeyChannel       = "channel"
	KeyPeer          = "peer"
	KeyOutcome       = "outcome"
	KeyPending       = "pending"
	KeyDurationMS    = "duration_ms"
	KeyStatus        = "status"
	KeyPath          = "path"
	KeyReason        = "reason"
	KeyError         = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func UID(uid string) slog.Attr          { return slog.String(KeyUID, uid) }
func Generation(g uint64) slog.Attr     { return slog.Uint64(KeyGeneration, g) }
func Side(s string) slog.Attr           { return slog.String(KeySide, s) }
func Method(name string) slog.Attr      { return slog.String(KeyMethod, name) }
func MethodKind(k string) slog.Attr     { return slog.String(KeyMethodKind, k) }
func CorrelationID(id string) slog.Attr { return slog.String(KeyCorrelationID, id) }
func Channel(name string) slog.Attr     { return slog.String(KeyChannel, name) }
func Peer(id string) slog.Attr          { return slog.String(KeyPeer, id) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func Pending(n int) slog.Attr           { return slog.Int(KeyPending, n) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Status(code int) slog.Attr         { return slog.Int(KeyStatus, code) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Reason(r string) slog.Attr         { return slog.String(KeyReason, r) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
