package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifiedError_Accessors(t *testing.T) {
	err := NewError(CategoryConfig, "state class has no channel").
		WithSeverity(SeverityFatal).
		WithContext("uid", "UserState").
		Build()

	require.Equal(t, CategoryConfig, err.Category())
	require.Equal(t, SeverityFatal, err.Severity())
	require.Equal(t, "state class has no channel", err.Message())
	require.Equal(t, "UserState", err.UID())
	require.Equal(t, "[config:fatal] state class has no channel", err.Error())
	require.True(t, err.IsFatal())
	require.False(t, err.CanRetry())
}

func TestClassifiedError_Wrapping(t *testing.T) {
	cause := errors.New("connection refused")
	base := WrapError(cause, CategoryTransport, "publish failed").
		Warning().
		WithContext("subject", "statebridge.ctl").
		Build()
	wrapped := fmt.Errorf("flush counter: %w", base)

	require.ErrorIs(t, wrapped, cause)
	require.True(t, IsClassified(wrapped))
	require.True(t, HasCategory(wrapped, CategoryTransport))
	require.False(t, HasCategory(wrapped, CategoryRemote))
	require.Equal(t, CategoryTransport, GetCategory(wrapped))
	require.Equal(t, CategoryInternal, GetCategory(errors.New("plain")))
	require.Contains(t, base.Error(), ": connection refused")

	// Is matches on category and message, not identity.
	require.ErrorIs(t, wrapped, TransportError("publish failed").Build())
}

func TestErrorBuilder_Constructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
		retry    RetryStrategy
	}{
		{"ConfigurationError", ConfigurationError("x"), CategoryConfig, SeverityFatal, RetryNever},
		{"ValidationError", ValidationError("x"), CategoryValidation, SeverityFatal, RetryNever},
		{"NotFoundError", NotFoundError("x"), CategoryNotFound, SeverityError, RetryNever},
		{"ProtocolMisuseError", ProtocolMisuseError("x"), CategoryProtocol, SeverityFatal, RetryNever},
		{"RemoteExecutionError", RemoteExecutionError("x"), CategoryRemote, SeverityError, RetryNever},
		{"TransportError", TransportError("x"), CategoryTransport, SeverityError, RetryBackoff},
		{"JournalError", JournalError("x"), CategoryJournal, SeverityError, RetryBackoff},
		{"RuntimeError", RuntimeError("x"), CategoryRuntime, SeverityError, RetryNever},
		{"InternalError", InternalError("x"), CategoryInternal, SeverityFatal, RetryNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			require.Equal(t, tt.category, err.Category())
			require.Equal(t, tt.severity, err.Severity())
			require.Equal(t, tt.retry, err.RetryStrategy())
		})
	}
}

func TestErrorBuilder_BuildIsolatesContext(t *testing.T) {
	b := RuntimeError("call canceled").WithContext("method", "multiply")
	first := b.Build()
	second := b.WithContext("correlation_id", "7").Build()

	_, ok := first.Context().Get("correlation_id")
	require.False(t, ok)
	id, _ := second.Context().GetString("correlation_id")
	require.Equal(t, "7", id)

	derived := first.WithContext("uid", "counter")
	require.Empty(t, first.UID())
	require.Equal(t, "counter", derived.UID())
}

func TestErrorContext(t *testing.T) {
	var ctx ErrorContext
	ctx = ctx.Set("b", 42).Set("a", "value")

	v, ok := ctx.GetString("a")
	require.True(t, ok)
	require.Equal(t, "value", v)
	_, ok = ctx.GetString("b")
	require.False(t, ok)

	merged := ErrorContext{"shared": "original", "x": 1}.Merge(ErrorContext{"shared": "overridden"})
	require.Equal(t, "overridden", merged["shared"])
	require.Equal(t, 1, merged["x"])

	require.Equal(t, []string{"a", "b"}, ctx.Keys())
	attrs := ctx.Attrs()
	require.Len(t, attrs, 2)
	require.Equal(t, "a", attrs[0].Key)
}

func TestClassifiedError_LogAttrs(t *testing.T) {
	err := WrapError(errors.New("eof"), CategoryJournal, "record failed").
		Retryable().
		WithContext("uid", "counter").
		Build()

	keys := make([]string, 0)
	for _, a := range err.LogAttrs() {
		keys = append(keys, a.Key)
	}
	require.Equal(t, []string{"category", "retryable", "cause", "uid"}, keys)
}

func TestErrorSeverity_Level(t *testing.T) {
	require.Equal(t, slog.LevelInfo, SeverityInfo.Level())
	require.Equal(t, slog.LevelWarn, SeverityWarning.Level())
	require.Equal(t, slog.LevelError, SeverityError.Level())
	require.Equal(t, slog.LevelError, SeverityFatal.Level())
}
