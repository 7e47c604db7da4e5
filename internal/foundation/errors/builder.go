package errors

// ErrorBuilder assembles a ClassifiedError. Errors default to SeverityError and
// RetryNever.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of category.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
		context:  make(ErrorContext),
	}}
}

// WrapError starts an error of category caused by err.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(err)
}

func (b *ErrorBuilder) WithSeverity(severity ErrorSeverity) *ErrorBuilder {
	b.err.severity = severity
	return b
}

func (b *ErrorBuilder) WithRetry(strategy RetryStrategy) *ErrorBuilder {
	b.err.retry = strategy
	return b
}

func (b *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	b.err.cause = err
	return b
}

// WithContext records a detail such as "uid" or "method".
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder     { return b.WithSeverity(SeverityFatal) }
func (b *ErrorBuilder) Warning() *ErrorBuilder   { return b.WithSeverity(SeverityWarning) }
func (b *ErrorBuilder) Retryable() *ErrorBuilder { return b.WithRetry(RetryBackoff) }

// Build returns the error. The builder may be reused; later changes do not leak into
// errors already built.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	e.context = ErrorContext{}.Merge(b.err.context)
	return &e
}

// Convenience constructors for common error patterns

// ConfigurationError creates an error for a state class or setting that cannot be
// activated, e.g. a class without a bound channel or resolvable uid.
func ConfigurationError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError creates a validation error.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// NotFoundError creates a lookup failure.
func NotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message)
}

// ProtocolMisuseError creates an error for an invalid method pin or registration.
func ProtocolMisuseError(message string) *ErrorBuilder {
	return NewError(CategoryProtocol, message).Fatal()
}

// RemoteExecutionError creates an error describing a failure raised by the
// executing side of an RPC call.
func RemoteExecutionError(message string) *ErrorBuilder {
	return NewError(CategoryRemote, message)
}

// TransportError creates a message channel error (typically retryable).
func TransportError(message string) *ErrorBuilder {
	return NewError(CategoryTransport, message).Retryable()
}

// JournalError creates a journal persistence error.
func JournalError(message string) *ErrorBuilder {
	return NewError(CategoryJournal, message).Retryable()
}

// RuntimeError creates a runtime error.
func RuntimeError(message string) *ErrorBuilder {
	return NewError(CategoryRuntime, message)
}

// InternalError creates an internal error.
func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
