// Package errors defines the error vocabulary shared by the promptreg packages:
// sentinel errors for errors.Is checks, typed errors carrying the offending
// field or resource, and small wrapping helpers.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Common error types.
var (
	// Lookup errors.
	ErrNotFound = fmt.Errorf("not found")

	// Configuration errors.
	ErrInvalidConfig = fmt.Errorf("invalid configuration")
	ErrInvalidPath   = fmt.Errorf("invalid path")

	// Lockfile errors.
	ErrRepositoryPathRequired = fmt.Errorf("repository path required")
	ErrRepositoryPathMismatch = fmt.Errorf("lockfile manager already initialized for a different repository path")

	// Profile errors.
	ErrProfileNotActive = fmt.Errorf("profile is not active")

	// Transfer errors.
	ErrDownloadFailed   = fmt.Errorf("download failed")
	ErrChecksumMismatch = fmt.Errorf("checksum mismatch")

	// Git errors.
	ErrNotGitRepository = fmt.Errorf("not a git repository")
)

// Resource kinds used by NotFoundError.
const (
	KindHub      = "hub"
	KindProfile  = "profile"
	KindBundle   = "bundle"
	KindSource   = "source"
	KindLockfile = "lockfile"
	KindEntry    = "history entry"
)

type (
	// NotFoundError is returned when a named resource does not exist.
	NotFoundError struct {
		Kind string
		ID   string
	}

	// ConfigError is returned when a source, hub reference or setting is malformed.
	ConfigError struct {
		Field  string
		Value  string
		Reason string
	}

	// OperationError pairs a user-facing operation name with its root cause.
	OperationError struct {
		Op  string
		Err error
	}
)

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Is reports ErrNotFound as a match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Is reports ErrInvalidConfig as a match.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, value, reason string) error {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}

// Error implements the error interface for OperationError.
func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for OperationError.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates a new OperationError, or returns nil if err is nil.
func NewOperationError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Op: op, Err: err}
}

// IsNotFound reports whether err is, or wraps, a not-found error.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
