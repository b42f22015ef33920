package signaling

import (
	"encoding/json"

	pion "github.com/pion/webrtc/v4"
)

// Message is one frame on the rendezvous socket. The server fills Src on
// relayed frames; clients set Dst.
type Message struct {
	Type    string          `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message type constants.
const (
	// server -> client
	MessageTypeOpen    = "OPEN"
	MessageTypeIDTaken = "ID-TAKEN"
	MessageTypeError   = "ERROR"
	MessageTypeLeave   = "LEAVE"
	MessageTypeExpire  = "EXPIRE"

	// relayed between clients
	MessageTypeOffer     = "OFFER"
	MessageTypeAnswer    = "ANSWER"
	MessageTypeCandidate = "CANDIDATE"

	// client -> server
	MessageTypeHeartbeat = "HEARTBEAT"
)

// Connection types carried in relayed payloads.
const (
	ConnectionTypeData  = "data"
	ConnectionTypeMedia = "media"
)

// OfferPayload opens a data or media connection.
type OfferPayload struct {
	SDP           pion.SessionDescription `json:"sdp"`
	Type          string                  `json:"type"`
	ConnectionID  string                  `json:"connectionId"`
	Label         string                  `json:"label,omitempty"`
	Serialization string                  `json:"serialization,omitempty"`
	Reliable      bool                    `json:"reliable,omitempty"`
	Metadata      any                     `json:"metadata,omitempty"`
}

type AnswerPayload struct {
	SDP          pion.SessionDescription `json:"sdp"`
	Type         string                  `json:"type"`
	ConnectionID string                  `json:"connectionId"`
}

type CandidatePayload struct {
	Candidate    pion.ICECandidateInit `json:"candidate"`
	Type         string                `json:"type"`
	ConnectionID string                `json:"connectionId"`
}

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Msg string `json:"msg"`
}

// NewMessage encodes payload into a frame addressed to dst.
func NewMessage(typ, dst string, payload any) (*Message, error) {
	msg := &Message{Type: typ, Dst: dst}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return msg, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
