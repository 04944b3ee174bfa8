// Package apperr classifies failures into the kinds callers act on:
// validation problems are shown to the user, storage failures get a generic
// retry message, and lookup or notification failures never leave the server.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies how an error should be handled by the caller.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindStorage
	KindLookup
	KindNotification
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindStorage:
		return "storage"
	case KindLookup:
		return "lookup"
	case KindNotification:
		return "notification"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified error. Msg is safe to show to users; Err is the
// underlying cause and is only logged.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Op != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a user-facing validation failure.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// Auth wraps an authentication failure. msg is the generic text shown to
// users and must not reveal which credential was wrong.
func Auth(err error, msg string) error {
	return &Error{Kind: KindAuth, Msg: msg, Err: err}
}

// Storage wraps a document store failure.
func Storage(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Msg: "could not save, please try again", Err: err}
}

// Lookup wraps a product lookup failure.
func Lookup(op string, err error) error {
	return &Error{Kind: KindLookup, Op: op, Err: err}
}

// Notification wraps a notification scheduling failure.
func Notification(op string, err error) error {
	return &Error{Kind: KindNotification, Op: op, Err: err}
}

// NotFound reports a missing record.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Msg: msg}
}

// Conflict reports an operation rejected because of concurrent state.
func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message for err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
