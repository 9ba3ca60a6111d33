package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a noctfcli error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION"     // local schema or semantic failure, never touches the network
	ErrAuthentication ErrorCode = "AUTHENTICATION" // 401, or a failed login
	ErrNotFound       ErrorCode = "NOT_FOUND"      // 404
	ErrConflict       ErrorCode = "CONFLICT"       // 409 (stale version, duplicate slug)
	ErrAPI            ErrorCode = "API"            // any other remote failure
	ErrConfiguration  ErrorCode = "CONFIGURATION"  // process-level setup
	ErrInternal       ErrorCode = "INTERNAL"       // 500
)

// NoctfError is the root error kind. Every failure surfaced by the engine is one of these,
// carrying a human-readable message and optional structured details.
type NoctfError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *NoctfError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Field returns the dotted field path of a validation error, or "" if none was recorded.
func (e *NoctfError) Field() string {
	if f, ok := e.Details["field"].(string); ok {
		return f
	}
	return ""
}

// NewValidation creates an error for a definition that failed schema or semantic checks.
// field is a dotted path ("flags.1.strategy"); value is the offending input.
func NewValidation(msg, field string, value any) *NoctfError {
	details := map[string]any{}
	if field != "" {
		details["field"] = field
	}
	if value != nil {
		details["value"] = value
	}
	return &NoctfError{
		Code:    ErrValidation,
		Status:  400,
		Message: msg,
		Details: details,
	}
}

// NewMissingFiles creates a validation error listing every referenced file that does not exist.
func NewMissingFiles(missing []string) *NoctfError {
	return &NoctfError{
		Code:    ErrValidation,
		Status:  400,
		Message: fmt.Sprintf("missing challenge files: %s", strings.Join(missing, ", ")),
		Details: map[string]any{"field": "files", "missing_files": missing},
	}
}

// NewAuthentication creates a 401 error.
func NewAuthentication(msg string) *NoctfError {
	return &NoctfError{
		Code:    ErrAuthentication,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a remote resource.
func NewNotFound(identifier string) *NoctfError {
	return &NoctfError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("resource not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConflict creates a 409 error.
func NewConflict(msg string) *NoctfError {
	return &NoctfError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewAPI creates an error for a failed remote call. status is 0 for transport failures.
func NewAPI(msg string, status int, body map[string]any) *NoctfError {
	details := map[string]any{}
	if status != 0 {
		details["status_code"] = status
	}
	if len(body) > 0 {
		details["response"] = body
	}
	return &NoctfError{
		Code:    ErrAPI,
		Status:  status,
		Message: msg,
		Details: details,
	}
}

// NewConfiguration creates an error for invalid or missing process configuration.
func NewConfiguration(msg string) *NoctfError {
	return &NoctfError{
		Code:    ErrConfiguration,
		Status:  400,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected failures.
// The original message is kept in Details for logging.
func NewInternal(err error) *NoctfError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &NoctfError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// As returns the NoctfError in err's chain, if any.
func As(err error) (*NoctfError, bool) {
	var nErr *NoctfError
	if stderrors.As(err, &nErr) {
		return nErr, true
	}
	return nil, false
}

// Is checks if an error (or anything it wraps) is a NoctfError with the given code.
func Is(err error, code ErrorCode) bool {
	if nErr, ok := As(err); ok {
		return nErr.Code == code
	}
	return false
}

// Message returns the human-readable message of err without the code prefix.
// Internal errors report the wrapped cause, since they are only shown to the operator.
func Message(err error) string {
	if err == nil {
		return ""
	}
	nErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	if nErr.Code == ErrInternal {
		if cause, ok := nErr.Details["internal_error"].(string); ok && cause != "" {
			return cause
		}
	}
	return nErr.Message
}
