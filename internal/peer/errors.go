package peer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies endpoint failures the way the rendezvous service reports them.
type ErrorKind string

const (
	KindUnavailableID   ErrorKind = "unavailable-id"
	KindInvalidID       ErrorKind = "invalid-id"
	KindPeerUnavailable ErrorKind = "peer-unavailable"
	KindNetwork         ErrorKind = "network"
	KindServerError     ErrorKind = "server-error"
	KindSocketError     ErrorKind = "socket-error"
	KindSocketClosed    ErrorKind = "socket-closed"
	KindDisconnected    ErrorKind = "disconnected"
	KindWebRTC          ErrorKind = "webrtc"
)

var (
	ErrDestroyed = errors.New("endpoint destroyed")
	ErrNotOpen   = errors.New("connection not open")
	ErrClosed    = errors.New("connection closed")
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds an Error with a formatted cause.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind of err, defaulting to KindNetwork for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindNetwork
}

// IsKind reports whether err is a peer Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
