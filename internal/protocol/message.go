package protocol

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// Control channel message types
const (
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth-success"
	TypeAuthFail    = "auth-fail"
	TypeCursor      = "cursor"
)

// Message is one control channel message. On the wire each type carries
// only its own fields: auth always has password, cursor always has visible
// and color, and x/y only when known.
type Message struct {
	Type     string   `msgpack:"type" json:"type"`
	Password string   `msgpack:"password" json:"password"`
	X        *float64 `msgpack:"x,omitempty" json:"x,omitempty"`
	Y        *float64 `msgpack:"y,omitempty" json:"y,omitempty"`
	Visible  bool     `msgpack:"visible" json:"visible"`
	Color    string   `msgpack:"color,omitempty" json:"color,omitempty"`
}

// Auth is sent by the guest as soon as the channel opens.
func Auth(password string) Message {
	return Message{Type: TypeAuth, Password: password}
}

// AuthSuccess accepts the guest.
func AuthSuccess() Message {
	return Message{Type: TypeAuthSuccess}
}

// AuthFail rejects the guest; the host closes the channel shortly after.
func AuthFail() Message {
	return Message{Type: TypeAuthFail}
}

// Cursor reports a visible pointer at normalized coordinates.
func Cursor(x, y float64, color string) Message {
	return Message{Type: TypeCursor, X: &x, Y: &y, Visible: true, Color: color}
}

// CursorHidden hides the remote overlay; coordinates are not required.
func CursorHidden(color string) Message {
	return Message{Type: TypeCursor, Color: color}
}

// wire projects m onto the field set its type owns.
func (m Message) wire() map[string]any {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case TypeAuth:
		out["password"] = m.Password
	case TypeCursor:
		if x, y, ok := m.Coordinates(); ok {
			out["x"] = x
			out["y"] = y
		}
		out["visible"] = m.Visible
		out["color"] = m.Color
	}
	return out
}

// Coordinates returns the cursor position when both axes are present.
func (m Message) Coordinates() (x, y float64, ok bool) {
	if m.X == nil || m.Y == nil {
		return 0, 0, false
	}
	return *m.X, *m.Y, true
}

// Validate rejects messages no peer should ever send.
func (m Message) Validate() error {
	switch m.Type {
	case TypeAuth, TypeAuthSuccess, TypeAuthFail:
		return nil
	case TypeCursor:
		if x, y, ok := m.Coordinates(); ok && (!finite(x) || !finite(y)) {
			return fmt.Errorf("%w: non-finite cursor position", ErrInvalidMessage)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Codec converts messages to and from data channel frames.
type Codec interface {
	Name() string
	Marshal(Message) ([]byte, error)
	Unmarshal([]byte) (Message, error)
}

// CodecFor returns the codec for a negotiated serialization name.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", SerializationMsgpack:
		return msgpackCodec{}, nil
	case SerializationJSON:
		return jsonCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSerialization, name)
}

const (
	SerializationMsgpack = "msgpack"
	SerializationJSON    = "json"
)

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return SerializationMsgpack }

func (msgpackCodec) Marshal(m Message) ([]byte, error) {
	return msgpack.Marshal(m.wire())
}

func (msgpackCodec) Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return m, m.Validate()
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SerializationJSON }

func (jsonCodec) Marshal(m Message) ([]byte, error) {
	return json.Marshal(m.wire())
}

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return m, m.Validate()
}
