package errors

import (
	"log/slog"
	"maps"
	"slices"
)

// ErrorCategory classifies a failure by the layer that raised it.
type ErrorCategory string

const (
	// CategoryConfig covers state classes or settings that cannot be activated.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// CategoryProtocol covers misuse of the replication or RPC protocol by the caller,
	// such as pinning something that is not a callable method.
	CategoryProtocol ErrorCategory = "protocol"
	// CategoryRemote covers a failure raised by the other side of an RPC call.
	CategoryRemote    ErrorCategory = "remote"
	CategoryTransport ErrorCategory = "transport"
	CategoryJournal   ErrorCategory = "journal"

	// CategoryRuntime covers closed runtimes, canceled calls and shutdown failures.
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // the process or class cannot continue
	SeverityError   ErrorSeverity = "error"   // the current operation failed
	SeverityWarning ErrorSeverity = "warning" // degraded, the operation continued
	SeverityInfo    ErrorSeverity = "info"
)

// Level maps a severity onto the slog level used when the error is logged.
func (s ErrorSeverity) Level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// RetryStrategy indicates whether repeating the operation can succeed.
type RetryStrategy string

const (
	RetryNever     RetryStrategy = "never"
	RetryImmediate RetryStrategy = "immediate"
	RetryBackoff   RetryStrategy = "backoff"
)

// ErrorContext carries structured details such as the state uid or method name.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	str, ok := c[key].(string)
	return str, ok
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext, len(c)+len(other))
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}

// Keys returns the context keys in sorted order.
func (c ErrorContext) Keys() []string {
	return slices.Sorted(maps.Keys(c))
}

// Attrs renders the context as slog attributes in key order.
func (c ErrorContext) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(c))
	for _, k := range c.Keys() {
		attrs = append(attrs, slog.Any(k, c[k]))
	}
	return attrs
}
