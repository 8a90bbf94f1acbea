package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Session lifecycle errors
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	ErrCodeNotRunning     ErrorCode = "NOT_RUNNING"

	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Command execution errors
	ErrCodeCommandTimeout  ErrorCode = "COMMAND_TIMEOUT"
	ErrCodeCommandNotFound ErrorCode = "COMMAND_NOT_FOUND"
	ErrCodeCommandFailed   ErrorCode = "COMMAND_FAILED"

	// Upload errors
	ErrCodeUploadFailed         ErrorCode = "UPLOAD_FAILED"
	ErrCodeUploadTimeout        ErrorCode = "UPLOAD_TIMEOUT"
	ErrCodeUploadRegionMismatch ErrorCode = "UPLOAD_REGION_MISMATCH"

	// Capture and platform errors
	ErrCodeCaptureFailed       ErrorCode = "CAPTURE_FAILED"
	ErrCodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"

	// General errors
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
)

// TrackerError represents a structured error with context
type TrackerError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *TrackerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *TrackerError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *TrackerError) WithDetail(key string, value interface{}) *TrackerError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *TrackerError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new TrackerError
func New(code ErrorCode, message string) *TrackerError {
	return &TrackerError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a TrackerError
func Wrap(err error, code ErrorCode, message string) *TrackerError {
	return &TrackerError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific TrackerError code
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode extracts the error code from an error, walking the Unwrap chain.
func GetCode(err error) ErrorCode {
	for err != nil {
		if trackerErr, ok := err.(*TrackerError); ok {
			return trackerErr.Code
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = unwrapper.Unwrap()
	}
	return ""
}
