// Package foundation provides small generic building blocks shared by configuration and
// runtime option handling.
package foundation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"git.home.luguber.info/inful/statebridge/internal/foundation/errors"
)

// Validator represents a validation function.
type Validator[T any] func(T) ValidationResult

// ValidationResult contains the result of a validation operation.
type ValidationResult struct {
	Valid  bool
	Errors []FieldError
}

// FieldError represents a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// Error implements the error interface.
func (fe FieldError) Error() string {
	if fe.Field != "" {
		return fmt.Sprintf("field '%s': %s", fe.Field, fe.Message)
	}
	return fe.Message
}

// Valid creates a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid creates a failed validation result with errors.
func Invalid(errs ...FieldError) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// NewValidationError creates a validation error.
func NewValidationError(field, code, message string) FieldError {
	return FieldError{Field: field, Code: code, Message: message}
}

// Combine merges multiple validation results.
func (vr ValidationResult) Combine(other ValidationResult) ValidationResult {
	if vr.Valid && other.Valid {
		return Valid()
	}
	all := make([]FieldError, 0, len(vr.Errors)+len(other.Errors))
	all = append(all, vr.Errors...)
	all = append(all, other.Errors...)
	return Invalid(all...)
}

// ToError converts a validation result into a configuration error if invalid.
func (vr ValidationResult) ToError() error {
	if vr.Valid {
		return nil
	}
	messages := make([]string, 0, len(vr.Errors))
	fields := make([]string, 0, len(vr.Errors))
	for _, fe := range vr.Errors {
		messages = append(messages, fe.Error())
		if fe.Field != "" {
			fields = append(fields, fe.Field)
		}
	}
	return errors.ConfigurationError(strings.Join(messages, "; ")).
		WithContext("fields", fields).
		Build()
}

// ValidatorChain allows chaining multiple validators.
type ValidatorChain[T any] struct {
	validators []Validator[T]
}

// NewValidatorChain creates a new validator chain.
func NewValidatorChain[T any](validators ...Validator[T]) *ValidatorChain[T] {
	return &ValidatorChain[T]{validators: validators}
}

// Add appends a validator to the chain.
func (vc *ValidatorChain[T]) Add(validator Validator[T]) *ValidatorChain[T] {
	vc.validators = append(vc.validators, validator)
	return vc
}

// Validate runs all validators in the chain and collects every failure.
func (vc *ValidatorChain[T]) Validate(value T) ValidationResult {
	result := Valid()
	for _, validator := range vc.validators {
		result = result.Combine(validator(value))
	}
	return result
}

// Field adapts a validator of a field type to a validator of its parent.
func Field[P, T any](get func(P) T, v Validator[T]) Validator[P] {
	return func(parent P) ValidationResult {
		return v(get(parent))
	}
}

// OneOf validates that a value is in a set of allowed values.
func OneOf[T comparable](field string, allowed []T) Validator[T] {
	allowedSet := make(map[T]bool, len(allowed))
	for _, item := range allowed {
		allowedSet[item] = true
	}
	return func(value T) ValidationResult {
		if !allowedSet[value] {
			fe := NewValidationError(field, "one_of", fmt.Sprintf("field must be one of: %v", allowed))
			fe.Value = value
			return Invalid(fe)
		}
		return Valid()
	}
}

// Required validates that a string is not blank.
func Required(field string) Validator[string] {
	return func(value string) ValidationResult {
		if strings.TrimSpace(value) == "" {
			return Invalid(NewValidationError(field, "required", "field is required"))
		}
		return Valid()
	}
}

// PositiveDuration validates that a duration is strictly positive.
func PositiveDuration(field string) Validator[time.Duration] {
	return func(value time.Duration) ValidationResult {
		if value <= 0 {
			fe := NewValidationError(field, "positive", "duration must be greater than zero")
			fe.Value = value.String()
			return Invalid(fe)
		}
		return Valid()
	}
}

// NonNegativeDuration validates that a duration is zero or positive.
func NonNegativeDuration(field string) Validator[time.Duration] {
	return func(value time.Duration) ValidationResult {
		if value < 0 {
			fe := NewValidationError(field, "non_negative", "duration must not be negative")
			fe.Value = value.String()
			return Invalid(fe)
		}
		return Valid()
	}
}

// URLScheme validates that a string parses as a URL using one of the given schemes.
func URLScheme(field string, schemes ...string) Validator[string] {
	return func(value string) ValidationResult {
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return Invalid(NewValidationError(field, "url", fmt.Sprintf("invalid url %q", value)))
		}
		for _, s := range schemes {
			if strings.EqualFold(u.Scheme, s) {
				return Valid()
			}
		}
		return Invalid(NewValidationError(field, "url_scheme",
			fmt.Sprintf("url scheme must be one of: %v", schemes)))
	}
}
