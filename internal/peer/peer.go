// Package peer defines the signaling collaborator a session runs on: an
// endpoint registered under an identifier on a rendezvous service, the
// data connections it accepts or dials, and the media calls it places.
package peer

import (
	"context"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// Opener opens an endpoint under id, or under a service-assigned id when
// id is empty. It returns immediately; the outcome arrives as an Open or
// Error event.
type Opener func(ctx context.Context, id string) (Endpoint, error)

type EndpointHandlers struct {
	Open       func(id string)
	Connection func(conn DataConn)
	Call       func(call MediaCall)
	Error      func(err error)
}

type ConnHandlers struct {
	Open  func()
	Data  func(msg protocol.Message)
	Close func()
	Error func(err error)
}

type CallHandlers struct {
	Stream func(s *media.Stream)
	Close  func()
	Error  func(err error)
}

// Endpoint is this session's identity on the rendezvous service.
type Endpoint interface {
	ID() string
	IsOpen() bool
	Destroyed() bool
	// Subscribe replaces the current handler set. Events raised while no
	// handler set is attached are replayed to the next subscriber.
	Subscribe(h EndpointHandlers) *Subscription
	Connect(peerID string) (DataConn, error)
	Call(peerID string, stream *media.Stream) (MediaCall, error)
	Destroy()
}

// DataConn is a reliable ordered control channel to one remote endpoint.
type DataConn interface {
	ID() string
	Peer() string
	IsOpen() bool
	Send(msg protocol.Message) error
	Subscribe(h ConnHandlers) *Subscription
	Close() error
}

// MediaCall carries a stream from caller to callee.
type MediaCall interface {
	ID() string
	Peer() string
	// Answer accepts an inbound call, optionally sending a stream back.
	Answer(stream *media.Stream) error
	Subscribe(h CallHandlers) *Subscription
	Close() error
}
