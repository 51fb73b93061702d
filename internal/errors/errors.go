package errors

import (
	goerrors "errors"
	"fmt"
	"time"
)

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Admission errors
	ErrorUnauthorized         ErrorCode = "UNAUTHORIZED"
	ErrorPayloadTooLarge      ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrorUnsupportedMediaType ErrorCode = "UNSUPPORTED_MEDIA_TYPE"
	ErrorRateLimited          ErrorCode = "RATE_LIMITED"
	ErrorMissingUpload        ErrorCode = "MISSING_UPLOAD"

	// Extraction errors (per field, never fatal to the request)
	ErrorFieldNotFound ErrorCode = "FIELD_NOT_FOUND"
	ErrorFieldInvalid  ErrorCode = "FIELD_INVALID"

	// Processing errors
	ErrorEngineFailure ErrorCode = "ENGINE_FAILURE"
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// Error represents a structured service error
type Error struct {
	Code      ErrorCode
	Message   string
	Field     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsAdmission reports whether the error rejects a request before OCR runs.
func (e *Error) IsAdmission() bool {
	switch e.Code {
	case ErrorUnauthorized, ErrorPayloadTooLarge, ErrorUnsupportedMediaType,
		ErrorRateLimited, ErrorMissingUpload:
		return true
	}
	return false
}

// Factory functions for common errors

func NewUnauthorizedError(message string) *Error {
	return &Error{
		Code:      ErrorUnauthorized,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewPayloadTooLargeError(size, limit int64) *Error {
	return &Error{
		Code:      ErrorPayloadTooLarge,
		Message:   fmt.Sprintf("Uploaded file exceeds size limit of %d bytes", limit),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"size":  size,
			"limit": limit,
		},
	}
}

func NewUnsupportedMediaTypeError(mimeType string) *Error {
	return &Error{
		Code:      ErrorUnsupportedMediaType,
		Message:   fmt.Sprintf("Unsupported file format: %s", mimeType),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewRateLimitedError(clientID string, limit int, window time.Duration) *Error {
	return &Error{
		Code:      ErrorRateLimited,
		Message:   "Rate limit exceeded",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"client": clientID,
			"limit":  limit,
			"window": window.String(),
		},
	}
}

func NewMissingUploadError(cause error) *Error {
	return &Error{
		Code:      ErrorMissingUpload,
		Message:   "No image provided",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewFieldNotFoundError(field string, message string) *Error {
	return &Error{
		Code:      ErrorFieldNotFound,
		Message:   message,
		Field:     field,
		Timestamp: time.Now(),
	}
}

func NewFieldInvalidError(field string, value string, message string) *Error {
	return &Error{
		Code:      ErrorFieldInvalid,
		Message:   message,
		Field:     field,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"value": value,
		},
	}
}

func NewEngineFailureError(engine string, message string, cause error) *Error {
	return &Error{
		Code:      ErrorEngineFailure,
		Message:   message,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine": engine,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(cause error) *Error {
	return &Error{
		Code:      ErrorStorageFailed,
		Message:   "Failed to stage uploaded image",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if goerrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ToMap converts error to map for logging and audit storage
func (e *Error) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}
	if e.Field != "" {
		result["field"] = e.Field
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
