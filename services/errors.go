package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeExhausted     ErrorType = "exhausted"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// ErrNoEnginesConfigured is returned when zero usable engines exist for
	// the requested capability. Fatal for that call; no attempts are made.
	ErrNoEnginesConfigured = NewDomainError(ErrorTypeConfiguration, "no engines configured for requested capability", nil)

	// ErrInvalidInput covers malformed inbound requests
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// ErrEmptyPrompt is returned for a generation request without a prompt
	ErrEmptyPrompt = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// ErrEmptyPayload is returned for an extraction request without a payload
	ErrEmptyPayload = NewDomainError(ErrorTypeValidation, "payload cannot be empty", nil)

	// ErrUnauthorized is returned for missing or invalid credentials
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)

	// ErrInternal covers unexpected internal failures
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// ExhaustionKind distinguishes the two router surfaces in exhaustion errors
type ExhaustionKind string

const (
	KindGeneration ExhaustionKind = "generation"
	KindExtraction ExhaustionKind = "extraction"
)

// Attempt records one failed engine attempt for diagnosability
type Attempt struct {
	// EngineID identifies the engine that was attempted
	EngineID string `json:"engine_id"`

	// Reason is the attempt's last error message
	Reason string `json:"reason"`
}

// ExhaustedError is returned when every viable engine was attempted and
// failed. It carries the ordered list of attempts so callers can tell
// misconfiguration from a transient outage across providers.
type ExhaustedError struct {
	Kind     ExhaustionKind
	Attempts []Attempt
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	if e.Kind == KindExtraction {
		b.WriteString("extraction failed: ")
	} else {
		b.WriteString("all engines failed: ")
	}
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", a.EngineID, a.Reason)
	}
	return b.String()
}

// NewAllEnginesFailed creates the generation exhaustion error
func NewAllEnginesFailed(attempts []Attempt) *ExhaustedError {
	return &ExhaustedError{Kind: KindGeneration, Attempts: attempts}
}

// NewExtractionFailed creates the extraction exhaustion error
func NewExtractionFailed(attempts []Attempt) *ExhaustedError {
	return &ExhaustedError{Kind: KindExtraction, Attempts: attempts}
}

// Error type checking helper functions

// IsNoEnginesConfigured checks if an error is the no-engines-configured error
func IsNoEnginesConfigured(err error) bool {
	return errors.Is(err, ErrNoEnginesConfigured)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsAllEnginesFailed checks if an error is a generation exhaustion error
func IsAllEnginesFailed(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted) && exhausted.Kind == KindGeneration
}

// IsExtractionFailed checks if an error is an extraction exhaustion error
func IsExtractionFailed(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted) && exhausted.Kind == KindExtraction
}

// IsExhausted checks if an error is either exhaustion error
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// ExhaustedAttempts returns the ordered attempt list of an exhaustion error,
// nil for any other error
func ExhaustedAttempts(err error) []Attempt {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return nil
}

// GetErrorType returns the ErrorType of an error, or empty string when it is
// neither a domain error nor an exhaustion error
func GetErrorType(err error) ErrorType {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return ErrorTypeExhausted
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external backend error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
