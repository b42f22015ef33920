package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotHost       = errors.New("only the host can share")
	ErrNotGuest      = errors.New("only a guest can do this")
	ErrUnmounted     = errors.New("room view unmounted")
	ErrAlreadyShared = errors.New("already sharing")
	ErrEmptyRoom     = errors.New("room id is empty")
)

// SessionError records the failed operation and the room it concerned.
type SessionError struct {
	Op      string
	Room    string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewError wraps err for op.
func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

// NewRoomError wraps err for op on room.
func NewRoomError(op, room string, err error) *SessionError {
	return &SessionError{Op: op, Room: room, Err: err}
}

// WrapError wraps err for op with extra context.
func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
