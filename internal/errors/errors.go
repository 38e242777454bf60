// Package errors provides coded domain errors for the Lutrin reader core.
//
// Pipeline stages and library operations return *Error values so callers can
// branch on the code without string matching:
//
//	run, err := orchestrator.RunCycle(ctx, src, "tesseract", "piper")
//	if errors.Is(err, errors.ErrOcrFailed) {
//	    // run.Timings still holds capture and upload timings
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    log.Warn("stage failed", "code", domainErr.Code, "message", domainErr.Message)
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeCaptureUnready     Code = "CAPTURE_UNREADY"
	CodeUploadFailed       Code = "UPLOAD_FAILED"
	CodeOcrFailed          Code = "OCR_FAILED"
	CodeTtsFailed          Code = "TTS_FAILED"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeValidation         Code = "VALIDATION"
	CodeConflict           Code = "CONFLICT"
	CodeBusy               Code = "BUSY"
	CodeOffline            Code = "OFFLINE"
	CodeInternal           Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation, CodeCaptureUnready:
		return http.StatusBadRequest
	case CodeConflict, CodeBusy:
		return http.StatusConflict
	case CodeUploadFailed, CodeOcrFailed, CodeTtsFailed:
		return http.StatusBadGateway
	case CodeStorageUnavailable, CodeOffline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrCaptureUnready     = &Error{Code: CodeCaptureUnready, Message: "capture source has no usable frame"}
	ErrUploadFailed       = &Error{Code: CodeUploadFailed, Message: "image upload failed"}
	ErrOcrFailed          = &Error{Code: CodeOcrFailed, Message: "text recognition failed"}
	ErrTtsFailed          = &Error{Code: CodeTtsFailed, Message: "speech synthesis failed"}
	ErrStorageUnavailable = &Error{Code: CodeStorageUnavailable, Message: "library storage unavailable"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrBusy               = &Error{Code: CodeBusy, Message: "operation already in progress"}
	ErrOffline            = &Error{Code: CodeOffline, Message: "processing gateway is offline"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Busy creates a busy error.
func Busy(msg string) *Error {
	return &Error{Code: CodeBusy, Message: msg}
}

// StorageUnavailable wraps a storage open/upgrade failure.
func StorageUnavailable(err error) *Error {
	return &Error{Code: CodeStorageUnavailable, Message: ErrStorageUnavailable.Message, cause: err}
}

// Stage builds a pipeline stage failure. The gateway message, when present,
// becomes the error message verbatim.
func Stage(code Code, gatewayMessage string, cause error) *Error {
	msg := gatewayMessage
	if msg == "" {
		switch code {
		case CodeUploadFailed:
			msg = ErrUploadFailed.Message
		case CodeOcrFailed:
			msg = ErrOcrFailed.Message
		case CodeTtsFailed:
			msg = ErrTtsFailed.Message
		case CodeCaptureUnready:
			msg = ErrCaptureUnready.Message
		default:
			msg = string(code)
		}
	}
	return &Error{Code: code, Message: msg, cause: cause}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}
