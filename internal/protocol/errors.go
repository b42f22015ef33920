package protocol

import "errors"

var (
	ErrInvalidMessage       = errors.New("invalid control message")
	ErrUnknownSerialization = errors.New("unknown serialization")
)
