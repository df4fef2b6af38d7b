// Package apperrors defines the typed error kinds shared by the record
// service, schema registry, query builder and rule evaluator. The HTTP
// layer maps each kind to a status code in exactly one place.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
)

// Error carries a kind and a message safe to show to API clients.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.err
}

// Kind returns the classification of the error.
func (e *Error) Kind() Kind {
	return e.kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Validation reports invalid client input.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

// Forbidden reports a rule denial or session mismatch.
func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

// NotFound reports a missing collection, record or file.
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflict reports a uniqueness or name-reuse violation.
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Internal wraps an unexpected error. The wrapped cause is preserved for
// logs; the message is what clients may see in development mode.
func Internal(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{kind: KindInternal, msg: err.Error(), err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for
// untyped errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind()
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
