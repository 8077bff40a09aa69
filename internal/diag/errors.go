package diag

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed, missing, or out-of-range input.
// Always recoverable; reported to the caller, never retried.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func ValidationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ModelLoadError is fatal to a load attempt. A later request re-attempts
// the load, so the gate stays retriable.
type ModelLoadError struct {
	msg   string
	cause error
}

func (e *ModelLoadError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *ModelLoadError) Unwrap() error { return e.cause }

func NewModelLoadError(msg string, cause error) error {
	return &ModelLoadError{msg: msg, cause: cause}
}

func IsModelLoadError(err error) bool {
	var le *ModelLoadError
	return errors.As(err, &le)
}

// InferenceError wraps any delegate-runtime failure during generation.
type InferenceError struct {
	msg   string
	cause error
}

func (e *InferenceError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *InferenceError) Unwrap() error { return e.cause }

func InferenceErrorf(format string, args ...any) error {
	return &InferenceError{msg: fmt.Sprintf(format, args...)}
}

func WrapInferenceError(msg string, cause error) error {
	return &InferenceError{msg: msg, cause: cause}
}

func IsInferenceError(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie)
}

// DeviceMemoryError signals device-memory exhaustion during generation.
// Cached device memory is released before this is reported.
type DeviceMemoryError struct{ msg string }

func (e *DeviceMemoryError) Error() string { return e.msg }

func NewDeviceMemoryError(msg string) error { return &DeviceMemoryError{msg: msg} }

func IsDeviceMemoryError(err error) bool {
	var me *DeviceMemoryError
	return errors.As(err, &me)
}

// NotReadyError means the model handle was requested before a load completed.
type NotReadyError struct{ msg string }

func (e *NotReadyError) Error() string { return e.msg }

func NewNotReadyError(msg string) error { return &NotReadyError{msg: msg} }

func IsNotReadyError(err error) bool {
	var ne *NotReadyError
	return errors.As(err, &ne)
}

// ErrorKind names the taxonomy class of err for the error envelope.
// Uncategorized errors report as UnexpectedError and are the only class
// whose envelope carries a traceback.
func ErrorKind(err error) string {
	switch {
	case IsValidationError(err):
		return "ValidationError"
	case IsDeviceMemoryError(err):
		return "GPUMemoryError"
	case IsModelLoadError(err):
		return "ModelLoadError"
	case IsInferenceError(err):
		return "InferenceError"
	case IsNotReadyError(err):
		return "ModelNotReadyError"
	default:
		return "UnexpectedError"
	}
}

// Categorized reports whether err belongs to a known taxonomy class.
func Categorized(err error) bool {
	return ErrorKind(err) != "UnexpectedError"
}
