package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a gpsmap error code.
type ErrorCode string

const (
	ErrParse          ErrorCode = "PARSE_ERROR"      // 422
	ErrValidation     ErrorCode = "VALIDATION_ERROR" // 422
	ErrIO             ErrorCode = "IO_ERROR"         // 500
	ErrConfig         ErrorCode = "CONFIG_ERROR"     // 500
	ErrNotFound       ErrorCode = "NOT_FOUND"        // 404
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"  // 400
	ErrInternal       ErrorCode = "INTERNAL"         // 500
)

// GPSMapError represents a structured error with code, status, and details.
type GPSMapError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *GPSMapError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *GPSMapError) Unwrap() error {
	return e.Err
}

// NewParse creates a 422 error for a position file that is not valid JSON.
func NewParse(path string, err error) *GPSMapError {
	return &GPSMapError{
		Code:    ErrParse,
		Status:  422,
		Message: fmt.Sprintf("malformed JSON in %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewValidation creates a 422 error for a record that fails validation.
func NewValidation(path, msg string) *GPSMapError {
	return &GPSMapError{
		Code:    ErrValidation,
		Status:  422,
		Message: fmt.Sprintf("%s: %s", msg, path),
		Details: map[string]any{"path": path},
	}
}

// NewIO creates a 500 error for filesystem access failures.
func NewIO(path string, err error) *GPSMapError {
	return &GPSMapError{
		Code:    ErrIO,
		Status:  500,
		Message: fmt.Sprintf("cannot access %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewConfig creates a 500 error for unreadable potfiles or config files.
func NewConfig(path string, err error) *GPSMapError {
	return &GPSMapError{
		Code:    ErrConfig,
		Status:  500,
		Message: fmt.Sprintf("cannot load %s: %v", path, err),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewNotFound creates a 404 error for a missing handshakes directory.
func NewNotFound(path string) *GPSMapError {
	return &GPSMapError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("directory not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *GPSMapError {
	return &GPSMapError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the cause is kept in Details for logging.
func NewInternal(err error) *GPSMapError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &GPSMapError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err, or any error it wraps, is a GPSMapError with the given code.
func Is(err error, code ErrorCode) bool {
	var gErr *GPSMapError
	if stderrors.As(err, &gErr) {
		return gErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first GPSMapError in err's chain,
// or ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var gErr *GPSMapError
	if stderrors.As(err, &gErr) {
		return gErr.Code
	}
	return ErrInternal
}
