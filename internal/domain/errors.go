package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for translation at the bot and HTTP boundaries.
type Kind string

const (
	KindNotRegistered     Kind = "not_registered"
	KindAlreadyRegistered Kind = "already_registered"
	KindInvalidMnemonic   Kind = "invalid_mnemonic"
	KindInvalidRequest    Kind = "invalid_request"
	KindNotAuthorized     Kind = "not_authorized"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindTransient         Kind = "transient"
	KindInternal          Kind = "internal"
)

// Error is the error type produced by all core operations. Adapters switch
// on Kind; Msg is safe to show to the user.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a kinded error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-safe message of err, or a generic fallback.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg
	}
	return "internal error"
}
