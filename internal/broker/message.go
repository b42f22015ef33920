package broker

import "encoding/json"

// Message is one frame on a client socket. Src is always set by the
// broker; clients address relayed frames with Dst.
type Message struct {
	Type    string          `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

const (
	TypeOpen      = "OPEN"
	TypeIDTaken   = "ID-TAKEN"
	TypeError     = "ERROR"
	TypeLeave     = "LEAVE"
	TypeExpire    = "EXPIRE"
	TypeOffer     = "OFFER"
	TypeAnswer    = "ANSWER"
	TypeCandidate = "CANDIDATE"
	TypeHeartbeat = "HEARTBEAT"
)

// relayed reports whether frames of this type are forwarded between clients.
func relayed(typ string) bool {
	switch typ {
	case TypeOffer, TypeAnswer, TypeCandidate, TypeLeave, TypeExpire:
		return true
	}
	return false
}

// queueable reports whether a frame for an absent client is held until it
// connects or the message expires.
func queueable(typ string) bool {
	switch typ {
	case TypeOffer, TypeAnswer, TypeCandidate:
		return true
	}
	return false
}

func errorMessage(msg string) *Message {
	payload, _ := json.Marshal(map[string]string{"msg": msg})
	return &Message{Type: TypeError, Payload: payload}
}
