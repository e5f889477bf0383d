// Package errors provides error types and error codes for the mailbox
// package. This is a leaf package with no internal dependencies, designed to
// be imported by both the lock package and the mailbox file layer without
// causing circular imports.
//
// Import graph: errors <- mailbox <- lock
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrConfiguration indicates an invalid lock method configuration.
	// Configuration errors are fatal at startup and never recoverable
	// per call.
	ErrConfiguration ErrorCode = iota + 1

	// ErrLockTimeout indicates a lock could not be obtained before the
	// deadline. Recoverable by the caller (retry later).
	ErrLockTimeout

	// ErrIOError indicates an unexpected syscall failure during lock
	// acquisition or release.
	ErrIOError

	// ErrNotFound indicates the mailbox file does not exist.
	ErrNotFound

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrNotSupported indicates the operation is not supported on this
	// platform.
	ErrNotSupported
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrConfiguration:
		return "Configuration"
	case ErrLockTimeout:
		return "LockTimeout"
	case ErrIOError:
		return "IOError"
	case ErrNotFound:
		return "NotFound"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrNotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("Unknown(%d)", int(e))
	}
}

// StorageError represents a mailbox storage error with an error code.
type StorageError struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err if it is (or wraps) a StorageError,
// or 0 otherwise.
func CodeOf(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsTimeout reports whether err is a lock wait timeout.
func IsTimeout(err error) bool {
	return CodeOf(err) == ErrLockTimeout
}

// NewConfigurationError creates a Configuration error.
func NewConfigurationError(format string, args ...any) *StorageError {
	return &StorageError{
		Code:    ErrConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewLockTimeoutError creates a LockTimeout error.
func NewLockTimeoutError(path string) *StorageError {
	return &StorageError{
		Code:    ErrLockTimeout,
		Message: "timeout while waiting for lock",
		Path:    path,
	}
}

// NewSyscallError creates an IOError wrapping a failed syscall.
func NewSyscallError(path, syscallName string, err error) *StorageError {
	return &StorageError{
		Code:    ErrIOError,
		Message: syscallName + " failed",
		Path:    path,
		Err:     err,
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path string) *StorageError {
	return &StorageError{
		Code:    ErrNotFound,
		Message: "mailbox not found",
		Path:    path,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *StorageError {
	return &StorageError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}
