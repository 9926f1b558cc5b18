package session

import (
	"errors"
	"fmt"
)

// Kind classifies a Session Client failure
type Kind int

const (
	KindAuth Kind = iota + 1
	KindNetwork
	KindProtocol
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error is returned by every Client operation that fails
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrProtocol) works
// regardless of operation or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind sentinels for errors.Is
var (
	ErrAuth         = &Error{Kind: KindAuth}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrProtocol     = &Error{Kind: KindProtocol}
	ErrPrecondition = &Error{Kind: KindPrecondition}
)

// Precondition causes
var (
	ErrNoSession    = errors.New("no active session")
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSessionChanged means the session was replaced while the request was in flight
	ErrSessionChanged = errors.New("session changed during request")
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind of a Session Client error, or 0 for other errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
