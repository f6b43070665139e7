package device

import (
	"errors"
	"fmt"
)

// Sentinel errors for device I/O.
//
// Every failure returned by a Link is an *Error whose Unwrap chain contains
// exactly one of ErrUnreachable or ErrRejected:
//
//	if errors.Is(err, device.ErrUnreachable) {
//	    // count toward offline detection
//	}
var (
	// ErrUnreachable covers timeouts, refused connections, an open circuit
	// breaker and replies that could not be decoded.
	ErrUnreachable = errors.New("device: unreachable")

	// ErrRejected means the device answered a command with a non-success status.
	ErrRejected = errors.New("device: rejected")

	// ErrInvalidMode is returned by ParseMode for values outside the mode set.
	ErrInvalidMode = errors.New("device: invalid mode")

	// ErrInvalidAddress is returned when re-targeting the link to a bad host.
	ErrInvalidAddress = errors.New("device: invalid address")
)

// ErrorKind classifies a device failure.
type ErrorKind string

// Error kinds.
const (
	KindUnreachable ErrorKind = "unreachable"
	KindRejected    ErrorKind = "rejected"
)

// Error is the structured failure returned by a Link.
type Error struct {
	Kind ErrorKind
	// Op is the device operation, e.g. "GET /angles" or "PATCH /config".
	Op string
	// Status is the HTTP status for rejected commands, zero otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("device %s %s: status %d", e.Kind, e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("device %s %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("device %s %s", e.Kind, e.Op)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	sentinel := ErrUnreachable
	if e.Kind == KindRejected {
		sentinel = ErrRejected
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func unreachable(op string, err error) *Error {
	return &Error{Kind: KindUnreachable, Op: op, Err: err}
}

func rejected(op string, status int) *Error {
	return &Error{Kind: KindRejected, Op: op, Status: status}
}
