package recorder

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes recorder errors.
type ErrorCode string

const (
	// ErrCodeDuplicateField indicates a field name was added twice to one record.
	ErrCodeDuplicateField ErrorCode = "DUPLICATE_FIELD"

	// ErrCodeInvalidValue indicates a field value outside the supported kinds.
	ErrCodeInvalidValue ErrorCode = "INVALID_VALUE"

	// ErrCodeRecordFinalized indicates a mutation or commit after commit.
	ErrCodeRecordFinalized ErrorCode = "RECORD_FINALIZED"

	// ErrCodeSchemaMismatch indicates a record disagrees with its title's schema.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeInvalidConfig indicates a rejected configuration value.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// ErrCodeBackendIO indicates a backend failed during Notify, Flush or Close.
	ErrCodeBackendIO ErrorCode = "BACKEND_IO"

	// ErrCodeRecorderClosed indicates a commit after the recorder was closed.
	ErrCodeRecorderClosed ErrorCode = "RECORDER_CLOSED"
)

// Error is the error type returned by Record and Recorder operations.
//
// Title, Field and Backend are set when they apply to the failure. Err holds
// the underlying cause for BACKEND_IO errors.
type Error struct {
	Code    ErrorCode
	Message string
	Title   string
	Field   string
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Title != "" && e.Field != "" {
		msg = fmt.Sprintf("%s (title=%s, field=%s)", msg, e.Title, e.Field)
	} else if e.Title != "" {
		msg = fmt.Sprintf("%s (title=%s)", msg, e.Title)
	}
	if e.Backend != "" {
		msg = fmt.Sprintf("%s (backend=%s)", msg, e.Backend)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsDuplicateField reports whether err is a DUPLICATE_FIELD error.
func IsDuplicateField(err error) bool { return hasCode(err, ErrCodeDuplicateField) }

// IsInvalidValue reports whether err is an INVALID_VALUE error.
func IsInvalidValue(err error) bool { return hasCode(err, ErrCodeInvalidValue) }

// IsRecordFinalized reports whether err is a RECORD_FINALIZED error.
func IsRecordFinalized(err error) bool { return hasCode(err, ErrCodeRecordFinalized) }

// IsSchemaMismatch reports whether err is a SCHEMA_MISMATCH error.
func IsSchemaMismatch(err error) bool { return hasCode(err, ErrCodeSchemaMismatch) }

// IsInvalidConfig reports whether err is an INVALID_CONFIG error.
func IsInvalidConfig(err error) bool { return hasCode(err, ErrCodeInvalidConfig) }

// IsBackendIO reports whether err is a BACKEND_IO error.
func IsBackendIO(err error) bool { return hasCode(err, ErrCodeBackendIO) }

// IsRecorderClosed reports whether err is a RECORDER_CLOSED error.
func IsRecorderClosed(err error) bool { return hasCode(err, ErrCodeRecorderClosed) }

// Code returns the ErrorCode carried by err, or "" if err is not an *Error.
func Code(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func newDuplicateFieldError(title, field string) *Error {
	return &Error{
		Code:    ErrCodeDuplicateField,
		Message: "field already present in record",
		Title:   title,
		Field:   field,
	}
}

func newInvalidValueError(title, field string) *Error {
	return &Error{
		Code:    ErrCodeInvalidValue,
		Message: "value has no valid kind",
		Title:   title,
		Field:   field,
	}
}

func newRecordFinalizedError(title string) *Error {
	return &Error{
		Code:    ErrCodeRecordFinalized,
		Message: "record already committed",
		Title:   title,
	}
}

func newSchemaMismatchError(title, field, message string) *Error {
	return &Error{
		Code:    ErrCodeSchemaMismatch,
		Message: message,
		Title:   title,
		Field:   field,
	}
}

func newInvalidConfigError(message string) *Error {
	return &Error{
		Code:    ErrCodeInvalidConfig,
		Message: message,
	}
}

func newBackendIOError(backend, op string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackendIO,
		Message: op + " failed",
		Backend: backend,
		Err:     err,
	}
}

func newRecorderClosedError(title string) *Error {
	return &Error{
		Code:    ErrCodeRecorderClosed,
		Message: "recorder is closed",
		Title:   title,
	}
}
