// Package apperr defines the client-facing error kinds of the customers service. Every error that
// a caller can fix by changing its request is an *Error with one of the kinds below. Anything else
// is an internal failure.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of an error.
type Kind string

const (
	InvalidIdentifier       Kind = "InvalidIdentifier"
	InvalidPatchRequest     Kind = "InvalidPatchRequest"
	InvalidPatchPath        Kind = "InvalidPatchPath"
	InvalidPatchValue       Kind = "InvalidPatchValue"
	PatchPreconditionFailed Kind = "PatchPreconditionFailed"
	ValidationFailed        Kind = "ValidationFailed"
	DuplicateName           Kind = "DuplicateName"
	IdentifierMismatch      Kind = "IdentifierMismatch"
	NotFound                Kind = "NotFound"
)

// Sentinels for use with errors.Is. Two *Error values match when their kinds are equal.
var (
	ErrInvalidIdentifier       = &Error{Kind: InvalidIdentifier}
	ErrInvalidPatchRequest     = &Error{Kind: InvalidPatchRequest}
	ErrInvalidPatchPath        = &Error{Kind: InvalidPatchPath}
	ErrInvalidPatchValue       = &Error{Kind: InvalidPatchValue}
	ErrPatchPreconditionFailed = &Error{Kind: PatchPreconditionFailed}
	ErrValidationFailed        = &Error{Kind: ValidationFailed}
	ErrDuplicateName           = &Error{Kind: DuplicateName}
	ErrIdentifierMismatch      = &Error{Kind: IdentifierMismatch}
	ErrNotFound                = &Error{Kind: NotFound}
)

// Error is a client input error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that keeps cause in its chain.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
