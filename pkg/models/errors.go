package models

import "fmt"

// ValidationError reports a rejected input field at the API boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a field-level validation failure.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UnauthorizedError signals a missing or unknown API key.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// ForbiddenError signals a surface that is administratively disabled.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}

// NotFoundError signals an unknown entity on a lookup surface.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ScmErrorKind classifies provider failures.
type ScmErrorKind string

const (
	ScmAuth        ScmErrorKind = "AUTH"
	ScmNotFound    ScmErrorKind = "NOT_FOUND"
	ScmRateLimited ScmErrorKind = "RATE_LIMITED"
	ScmMalformed   ScmErrorKind = "MALFORMED"
	ScmTransport   ScmErrorKind = "TRANSPORT"
)

// ScmError wraps a provider failure with enough context to log and map it.
type ScmError struct {
	Kind     ScmErrorKind
	Provider Provider
	Op       string
	Cause    error
}

func (e *ScmError) Error() string {
	return fmt.Sprintf("scm %s: %s %s: %v", e.Provider, e.Op, e.Kind, e.Cause)
}

func (e *ScmError) Unwrap() error {
	return e.Cause
}

// NewScmError builds a typed SCM failure.
func NewScmError(kind ScmErrorKind, provider Provider, op string, cause error) *ScmError {
	return &ScmError{Kind: kind, Provider: provider, Op: op, Cause: cause}
}

// LlmErrorKind classifies model-transport failures.
type LlmErrorKind string

const (
	LlmTransport LlmErrorKind = "TRANSPORT"
	LlmTimeout   LlmErrorKind = "TIMEOUT"
	LlmMalformed LlmErrorKind = "MALFORMED"
)

// LlmError wraps a failure talking to the model backend.
type LlmError struct {
	Kind  LlmErrorKind
	Cause error
}

func (e *LlmError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Kind, e.Cause)
}

func (e *LlmError) Unwrap() error {
	return e.Cause
}

// JsonValidationError reports a schema violation in the model's structured
// output, naming the offending field.
type JsonValidationError struct {
	Field   string
	Message string
}

func (e *JsonValidationError) Error() string {
	return fmt.Sprintf("invalid review payload: %s: %s", e.Field, e.Message)
}

// NonJsonResponseError reports a model response with no extractable JSON
// object at all.
type NonJsonResponseError struct {
	Hint string
}

func (e *NonJsonResponseError) Error() string {
	if e.Hint != "" {
		return "no JSON object in model response: " + e.Hint
	}
	return "no JSON object in model response"
}

// InvalidInputError reports a nil or unusable accumulator input.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// StreamError reports a dispatch-stream failure.
type StreamError struct {
	Stream string
	Cause  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Stream, e.Cause)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}
