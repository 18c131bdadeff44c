package capture

import (
	"errors"
	"fmt"
)

// Error is the error type returned by the capture engine.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind categorizes capture errors.
type ErrorKind string

const (
	// ErrConfiguration means a required credential or setting is missing.
	// Creation fails before any resource is acquired.
	ErrConfiguration ErrorKind = "configuration_error"
	// ErrDevice means the microphone could not be acquired.
	ErrDevice ErrorKind = "device_error"
	// ErrNetwork means the transcription stream failed to connect or dropped.
	ErrNetwork ErrorKind = "network_error"
	// ErrPersistence means a conversation or message write failed.
	ErrPersistence ErrorKind = "persistence_error"
	// ErrDuplicateSession means the session id is already registered.
	ErrDuplicateSession ErrorKind = "duplicate_session"
	// ErrNotFound means no session with the given id is registered.
	ErrNotFound ErrorKind = "not_found"
)

// NewConfigurationError creates a configuration error.
func NewConfigurationError(message string) *Error {
	return &Error{Kind: ErrConfiguration, Message: message}
}

// NewDeviceError creates a device error wrapping the underlying cause.
func NewDeviceError(message string, err error) *Error {
	return &Error{Kind: ErrDevice, Message: message, Err: err}
}

// NewNetworkError creates a network error wrapping the underlying cause.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: ErrNetwork, Message: message, Err: err}
}

// NewPersistenceError creates a persistence error wrapping the underlying cause.
func NewPersistenceError(message string, err error) *Error {
	return &Error{Kind: ErrPersistence, Message: message, Err: err}
}

// NewDuplicateSessionError creates a duplicate session error.
func NewDuplicateSessionError(sessionID string) *Error {
	return &Error{Kind: ErrDuplicateSession, Message: fmt.Sprintf("session %q already exists", sessionID)}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(sessionID string) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("session %q not found", sessionID)}
}

// KindOf returns the ErrorKind of err, or "" if err is not a capture Error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err is a capture Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
