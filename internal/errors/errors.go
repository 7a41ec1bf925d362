package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data
	ErrorTypeValidation
	// Network errors - transport failures talking to the upstream API
	ErrorTypeNetwork
	// External errors - upstream returned a failure or unreadable payload
	ErrorTypeExternal
	// Authorization errors - upstream rejected the token (HTTP 401)
	ErrorTypeAuthorization
	// Forbidden errors - token lacks permission for the resource (HTTP 403)
	ErrorTypeForbidden
	// NotFound errors - the resource does not exist (HTTP 404)
	ErrorTypeNotFound
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	StatusCode int
	Transient  bool
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithStatus records the upstream HTTP status code
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		e.Type.String(),
		e.Message))

	if e.StatusCode != 0 {
		sb.WriteString(fmt.Sprintf("Status: %d\n", e.StatusCode))
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeNetwork:
		return "NETWORK"
	case ErrorTypeExternal:
		return "EXTERNAL"
	case ErrorTypeAuthorization:
		return "AUTHORIZATION"
	case ErrorTypeForbidden:
		return "FORBIDDEN"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// NetworkErrorf wraps a network error with formatting
func NetworkErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeNetwork, SeverityHigh, fmt.Sprintf(format, args...))
}

// ExternalErrorf wraps an external service error with formatting
func ExternalErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeExternal, SeverityMedium, fmt.Sprintf(format, args...))
}

// UpstreamError classifies a non-2xx upstream response by status code
func UpstreamError(status int, endpoint, body string) *Error {
	var e *Error
	switch {
	case status == 401:
		e = New(ErrorTypeAuthorization, SeverityCritical, "upstream rejected access token")
	case status == 403:
		e = New(ErrorTypeForbidden, SeverityCritical, "access token lacks permission")
	case status == 404:
		e = New(ErrorTypeNotFound, SeverityLow, "upstream resource not found")
	case status == 429 || status >= 500:
		e = New(ErrorTypeExternal, SeverityMedium, fmt.Sprintf("upstream unavailable (HTTP %d)", status))
		e.Transient = true
	default:
		e = New(ErrorTypeExternal, SeverityMedium, fmt.Sprintf("upstream request failed (HTTP %d)", status))
	}
	e.StatusCode = status
	e.WithContext("endpoint", endpoint)
	if body != "" {
		e.WithContext("body", body)
	}
	return e
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsAuthorization reports whether err is a 401 or 403 rejection anywhere in its chain.
// These are never absorbed by partial-failure isolation.
func IsAuthorization(err error) bool {
	return hasType(err, ErrorTypeAuthorization, ErrorTypeForbidden)
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// hasType walks the whole chain, so a classified error stays visible
// even when wrapped by another *Error
func hasType(err error, types ...ErrorType) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			for _, t := range types {
				if e.Type == t {
					return true
				}
			}
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsTransient reports whether a retry could succeed
func IsTransient(err error) bool {
	if e, ok := As(err); ok {
		return e.Transient
	}
	return false
}

// IsValidation reports whether err is a caller input error
func IsValidation(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrorTypeValidation
}

// TypeOf returns the type of the first structured error in the chain
func TypeOf(err error) (ErrorType, bool) {
	if e, ok := As(err); ok {
		return e.Type, true
	}
	return ErrorTypeInternal, false
}
