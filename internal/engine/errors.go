package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/samplerec/internal/bridge"
	"github.com/roach88/samplerec/internal/ir"
)

// RuntimeError is a request the controller refused.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Kind is the message kind of the refused request.
	Kind bridge.Kind

	// Handle is the affected sample handle, if any.
	Handle ir.Handle
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownMessage indicates a message kind the controller does
	// not serve.
	ErrCodeUnknownMessage RuntimeErrorCode = "UNKNOWN_MESSAGE"

	// ErrCodeUnknownHandle indicates a write to a handle that was never
	// registered.
	ErrCodeUnknownHandle RuntimeErrorCode = "UNKNOWN_HANDLE"

	// ErrCodeHandleOutOfRange indicates a registration naming a handle the
	// store refused to create.
	ErrCodeHandleOutOfRange RuntimeErrorCode = "HANDLE_OUT_OF_RANGE"

	// ErrCodeStopped indicates the controller shut down before answering.
	ErrCodeStopped RuntimeErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Handle.Valid() {
		return fmt.Sprintf("%s: %s (kind=%s, handle=%s)", e.Code, e.Message, e.Kind, e.Handle)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownHandle returns true if err is a write to an unregistered handle.
// Uses errors.As to handle wrapped errors.
func IsUnknownHandle(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownHandle
	}
	return false
}

// IsUnknownMessage returns true if err is an unsupported message kind.
// Uses errors.As to handle wrapped errors.
func IsUnknownMessage(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownMessage
	}
	return false
}

// NewUnknownMessageError creates a RuntimeError for an unsupported kind.
func NewUnknownMessageError(kind bridge.Kind) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownMessage,
		Message: "controller does not serve this message",
		Kind:    kind,
	}
}

// NewUnknownHandleError creates a RuntimeError for a write to an
// unregistered handle.
func NewUnknownHandleError(kind bridge.Kind, h ir.Handle) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnknownHandle,
		Message: "handle is not registered",
		Kind:    kind,
		Handle:  h,
	}
}

// IsHandleOutOfRange returns true if err is a refused registration.
func IsHandleOutOfRange(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeHandleOutOfRange
	}
	return false
}

// NewHandleOutOfRangeError creates a RuntimeError for a registration the
// store refused. refused counts every refused registration of the request.
func NewHandleOutOfRangeError(kind bridge.Kind, h ir.Handle, refused int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeHandleOutOfRange,
		Message: fmt.Sprintf("%d registration(s) refused, handle outside the registration window", refused),
		Kind:    kind,
		Handle:  h,
	}
}

func newStoppedError() *RuntimeError {
	return &RuntimeError{Code: ErrCodeStopped, Message: "controller stopped"}
}
