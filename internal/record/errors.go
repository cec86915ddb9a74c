package record

import (
	"errors"
	"fmt"

	"github.com/roach88/samplerec/internal/ir"
)

// ErrorCode categorizes record failures.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates a request that could not start, such
	// as one naming an unknown handle.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeCaptureFailed indicates a dependency could not be captured as
	// a scalar, or the capture run itself failed.
	ErrCodeCaptureFailed ErrorCode = "CAPTURE_FAILED"

	// ErrCodeRenderFailed indicates the offline render failed.
	ErrCodeRenderFailed ErrorCode = "RENDER_FAILED"
)

// Error is a failed record invocation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description. It is what gets published
	// to listeners.
	Message string

	// Handle is the target sample handle.
	Handle ir.Handle

	// Slot is the offending capture slot for CAPTURE_FAILED, or -1.
	Slot int

	// Err is the underlying VM error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (handle=%s)", e.Code, e.Describe(), e.Handle)
}

// Unwrap returns the underlying VM error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Describe returns the message published to listeners.
func (e *Error) Describe() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// IsCaptureError returns true if err is a capture failure.
// Uses errors.As to handle wrapped errors.
func IsCaptureError(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == ErrCodeCaptureFailed
	}
	return false
}

// IsRenderError returns true if err is a render failure.
// Uses errors.As to handle wrapped errors.
func IsRenderError(err error) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == ErrCodeRenderFailed
	}
	return false
}

// NewNotScalarError reports a dependency slot whose captured value is NaN
// or was never written.
func NewNotScalarError(h ir.Handle, slot int) *Error {
	return &Error{
		Code:    ErrCodeCaptureFailed,
		Message: fmt.Sprintf("captured variable at slot %d is not a scalar", slot),
		Handle:  h,
		Slot:    slot,
	}
}

func newCaptureRunError(h ir.Handle, err error) *Error {
	return &Error{Code: ErrCodeCaptureFailed, Message: "capture failed", Handle: h, Slot: -1, Err: err}
}

func newRenderError(h ir.Handle, err error) *Error {
	return &Error{Code: ErrCodeRenderFailed, Message: "render failed", Handle: h, Slot: -1, Err: err}
}

func newTooLongError(h ir.Handle, n, limit int) *Error {
	return newInvalidRequestError(h, "recording of %d samples exceeds the limit of %d", n, limit)
}

func newInvalidRequestError(h ir.Handle, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf(format, args...), Handle: h, Slot: -1}
}
