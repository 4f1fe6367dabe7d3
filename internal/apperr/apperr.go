// Package apperr defines the error kinds shared by the domain services.
// Anything that is not an *Error is treated as unhandled.
package apperr

import "errors"

type Kind int

const (
	KindUnhandled Kind = iota
	KindValidation
	KindPrecondition
	KindNotFound
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrNotFound covers both missing resources and resources the caller may not see.
var ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Precondition(msg string) error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnhandled
}
