package internal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrOpenFailed ErrorType = iota
	ErrReadFailed
	ErrWriteFailed
	ErrShortWrite
	ErrInvalidState
	ErrInvalidURL
	ErrUnsupportedScheme
	ErrUnsupportedOperation
	ErrNetworkTimeout
	ErrPermissionDenied
	ErrFileLocked
	ErrAborted
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// TransferError represents a stream or transfer failure with detailed information
type TransferError struct {
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	Op         string                 `json:"op,omitempty"`
	Message    string                 `json:"message"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *TransferError) Error() string {
	var parts []string

	head := fmt.Sprintf("transfer error (type: %s)", e.Type.String())
	if e.Op != "" {
		head = fmt.Sprintf("transfer error (type: %s, op: %s)", e.Type.String(), e.Op)
	}
	parts = append(parts, head)

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, " - ")
}

// Unwrap returns the underlying cause
func (e *TransferError) Unwrap() error {
	return e.Err
}

// DetailedError returns a detailed error message with all available information
func (e *TransferError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("Operation: %s", e.Op))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}

	// URL is redacted, it may carry credentials
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		parts = append(parts, fmt.Sprintf("Context: %s", formatContext(e.Context)))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrOpenFailed:
		return "OpenFailed"
	case ErrReadFailed:
		return "ReadFailed"
	case ErrWriteFailed:
		return "WriteFailed"
	case ErrShortWrite:
		return "ShortWrite"
	case ErrInvalidState:
		return "InvalidState"
	case ErrInvalidURL:
		return "InvalidURL"
	case ErrUnsupportedScheme:
		return "UnsupportedScheme"
	case ErrUnsupportedOperation:
		return "UnsupportedOperation"
	case ErrNetworkTimeout:
		return "NetworkTimeout"
	case ErrPermissionDenied:
		return "PermissionDenied"
	case ErrFileLocked:
		return "FileLocked"
	case ErrAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewTransferError creates a new TransferError with default severity and suggestion
func NewTransferError(errorType ErrorType, op, message string) *TransferError {
	return &TransferError{
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Op:         op,
		Message:    message,
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WrapTransferError creates a TransferError caused by err
func WrapTransferError(errorType ErrorType, op string, err error) *TransferError {
	e := NewTransferError(errorType, op, "")
	e.Err = err
	return e
}

// WithSuggestion adds a custom suggestion to the error
func (e *TransferError) WithSuggestion(suggestion string) *TransferError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *TransferError) WithURL(url string) *TransferError {
	e.URL = url
	return e
}

// WithContext adds context information to the error
func (e *TransferError) WithContext(key string, value interface{}) *TransferError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsRetryable returns true if the failed operation may succeed when repeated.
// The engine itself never retries; this is for endpoint implementations.
func (e *TransferError) IsRetryable() bool {
	switch e.Type {
	case ErrNetworkTimeout, ErrFileLocked:
		return true
	default:
		return false
	}
}

// IsCritical returns true if the error is critical and should stop execution
func (e *TransferError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsType reports whether err is, or wraps, a TransferError of the given type
func IsType(err error, errorType ErrorType) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Type == errorType
	}
	return false
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		parts = append(parts, fmt.Sprintf("Context: %s", formatContext(e.Context)))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// formatContext renders context pairs in a stable order
func formatContext(ctx map[string]interface{}) string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	contextParts := make([]string, 0, len(keys))
	for _, k := range keys {
		contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return strings.Join(contextParts, ", ")
}

// getDefaultSuggestion returns a default suggestion based on error type
func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrOpenFailed:
		return "Check that the endpoint exists and is reachable"
	case ErrReadFailed:
		return "The input stream failed mid-transfer. Check the source and try again"
	case ErrWriteFailed:
		return "The output stream failed mid-transfer. Check available disk space and permissions"
	case ErrShortWrite:
		return "The output accepted fewer bytes than written. Check the destination capacity"
	case ErrInvalidState:
		return "The transfer is not in a state that allows this operation"
	case ErrInvalidURL:
		return "Use a path, file://, http(s)://, tcp://host:port or mem:// URL"
	case ErrUnsupportedScheme:
		return "Supported schemes: file, http, https, tcp, mem"
	case ErrUnsupportedOperation:
		return "This endpoint cannot be used in that direction"
	case ErrNetworkTimeout:
		return "Check your network connection and try again. Consider using a proxy if needed"
	case ErrPermissionDenied:
		return "Check file/directory permissions"
	case ErrFileLocked:
		return "Another transfer is writing the same file. Wait for it to finish"
	case ErrAborted:
		return ""
	default:
		return "Please check the error details and try again"
	}
}

// getDefaultSeverity returns the default severity for an error type
func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrAborted:
		return SeverityInfo
	case ErrNetworkTimeout, ErrFileLocked, ErrInvalidState:
		return SeverityWarning
	case ErrPermissionDenied:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts credentials and query parameters from URLs
func redactSensitiveURL(url string) string {
	if i := strings.Index(url, "://"); i != -1 {
		rest := url[i+3:]
		if at := strings.Index(rest, "@"); at != -1 {
			if slash := strings.Index(rest, "/"); slash == -1 || at < slash {
				url = url[:i+3] + "[REDACTED]@" + rest[at+1:]
			}
		}
	}
	if strings.Contains(url, "?") {
		parts := strings.SplitN(url, "?", 2)
		return parts[0] + "?[REDACTED]"
	}
	return url
}

// Common error constructors for frequently used errors

// NewOpenError creates an error for an endpoint that could not be opened
func NewOpenError(url string, err error) *TransferError {
	return WrapTransferError(ErrOpenFailed, "open", err).WithURL(url)
}

// NewInvalidStateError creates an error for a control call made in the wrong state
func NewInvalidStateError(op string, state fmt.Stringer) *TransferError {
	return NewTransferError(ErrInvalidState, op, fmt.Sprintf("not allowed in state %s", state)).
		WithContext("state", state.String())
}

// NewInvalidURLError creates an error for invalid URLs
func NewInvalidURLError(url string, reason string) *TransferError {
	return NewTransferError(ErrInvalidURL, "resolve", fmt.Sprintf("Invalid URL: %s", reason)).
		WithURL(url)
}

// NewUnsupportedSchemeError creates an error for URLs no endpoint can serve
func NewUnsupportedSchemeError(url, scheme string) *TransferError {
	return NewTransferError(ErrUnsupportedScheme, "resolve", fmt.Sprintf("unsupported scheme %q", scheme)).
		WithURL(url)
}

// NewShortWriteError creates an error for an output that accepted less than a chunk
func NewShortWriteError(written, want int) *TransferError {
	return NewTransferError(ErrShortWrite, "write", fmt.Sprintf("wrote %d of %d bytes", written, want)).
		WithContext("written", written).
		WithContext("want", want)
}
