package domain

import "errors"

// Kind classifies failures by how the session recovers from them.
type Kind string

const (
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindAuth          Kind = "AUTH_ERROR"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindWrite         Kind = "WRITE_ERROR"
	KindSubscription  Kind = "SUBSCRIPTION_ERROR"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrWrite         = &Error{Kind: KindWrite}
	ErrSubscription  = &Error{Kind: KindSubscription}
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
