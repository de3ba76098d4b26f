package reconcile

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a driver error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// retry. Examples: backend I/O hiccups.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a state conflict. Examples: lock
	// contention, a snapshot serial that moved under the plan. Conflicts are
	// resolved by re-planning, never by blind retry.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error. Examples:
	// malformed documents, missing credentials, permission denied.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes for programmatic handling.
const (
	// CodeParse marks unmarshalable rule or config documents.
	CodeParse = "PARSE_ERROR"
	// CodeSchema marks well-formed documents that violate the schema.
	CodeSchema = "SCHEMA_ERROR"
	// CodeAuth marks authentication failures, e.g. missing credentials.
	CodeAuth = "AUTH_ERROR"
	// CodePermissionDenied marks authorization failures. Never retried.
	CodePermissionDenied = "PERMISSION_DENIED"
	// CodeDependency marks unresolvable or violated resource dependencies.
	CodeDependency = "DEPENDENCY_ERROR"
	// CodeLockContention marks a scope lock held by another runner.
	CodeLockContention = "LOCK_CONTENTION"
	// CodeStaleSerial marks a snapshot that moved since the plan was taken.
	CodeStaleSerial = "STALE_SERIAL"
	// CodeGateDenied marks a plan blocked by a plan gate.
	CodeGateDenied = "GATE_DENIED"
	// CodeStateIO marks backend read or write failures.
	CodeStateIO = "STATE_IO"
)

// DriverError is a classified error with context about which resource and
// operation produced it.
type DriverError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the resource that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	msg := e.Message
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	}
	if e.Operation != "" {
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Class, e.Code, msg, e.Err)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Class, e.Code, msg)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two driver errors match when
// class and code agree.
func (e *DriverError) Is(target error) bool {
	t, ok := target.(*DriverError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a transient error.
func NewTransientError(message string, err error) *DriverError {
	return &DriverError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a conflict error.
func NewConflictError(message string, err error) *DriverError {
	return &DriverError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a permanent error.
func NewPermanentError(message string, err error) *DriverError {
	return &DriverError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithCode sets the error code.
func (e *DriverError) WithCode(code string) *DriverError {
	e.Code = code
	return e
}

// WithResource adds resource context.
func (e *DriverError) WithResource(resource string) *DriverError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context.
func (e *DriverError) WithOperation(operation string) *DriverError {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field.
func (e *DriverError) WithDetail(key string, value interface{}) *DriverError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HasCode reports whether err carries the given driver error code.
func HasCode(err error, code string) bool {
	var e *DriverError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTransient reports whether the error is classified transient.
func IsTransient(err error) bool {
	var e *DriverError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict reports whether the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *DriverError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent reports whether the error is classified permanent.
func IsPermanent(err error) bool {
	var e *DriverError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable reports whether the caller may retry. Only transient errors
// are; conflicts need a fresh plan and permanent errors need a human.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

// IsLockContention reports whether the error is a scope lock conflict.
func IsLockContention(err error) bool {
	return HasCode(err, CodeLockContention)
}

// IsStaleSerial reports whether the error is a snapshot serial conflict.
func IsStaleSerial(err error) bool {
	return HasCode(err, CodeStaleSerial)
}

// IsPermissionDenied reports whether the error is an authorization failure.
func IsPermissionDenied(err error) bool {
	return HasCode(err, CodePermissionDenied)
}

// IsGateDenied reports whether the error is a plan gate denial.
func IsGateDenied(err error) bool {
	return HasCode(err, CodeGateDenied)
}
