package shim

import (
	"errors"

	"github.com/rexliu/credrelay/pkg/messenger"
)

// DOMException names the page's caller sees.
const (
	NameNotAllowed = "NotAllowedError"
	NameAbort      = "AbortError"
	NameTypeError  = "TypeError"
	NameUnknown    = "UnknownError"
)

var (
	// ErrDenied rejects a creation the privileged side did not approve.
	ErrDenied = errors.New("credential creation denied")
	// ErrUnsupportedOptions rejects options that cannot be expressed as
	// registration parameters.
	ErrUnsupportedOptions = errors.New("unsupported credential options")
)

// Error is a rejected credential operation.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// mediationError maps a failed mediation to the rejection the caller sees.
func mediationError(err error) *Error {
	name := NameUnknown
	switch {
	case errors.Is(err, messenger.ErrTimeout),
		errors.Is(err, messenger.ErrRemote):
		name = NameNotAllowed
	case errors.Is(err, messenger.ErrCancelled):
		name = NameAbort
	case errors.Is(err, ErrUnsupportedOptions):
		name = NameTypeError
	}
	return &Error{Name: name, Err: err}
}
