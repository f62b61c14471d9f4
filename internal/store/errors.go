package store

import (
	"errors"
	"fmt"
)

// Error is a persistence error. Services translate these into ledger errors.
type Error struct {
	Kind    string // Stable identifier: not_found, already_exists, no_copies
	Message string
	Err     error // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped copies still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Kind:    "not_found",
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Kind:    "already_exists",
		Message: "resource already exists",
	}

	// ErrNoCopiesAvailable is returned by DecrementAvailable on an exhausted book.
	ErrNoCopiesAvailable = &Error{
		Kind:    "no_copies",
		Message: "no copies available",
	}

	// ErrInvalidInput rejects records that violate a storage constraint.
	ErrInvalidInput = &Error{
		Kind:    "invalid_input",
		Message: "invalid input",
	}
)

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
