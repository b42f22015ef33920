package peertest

import (
	"sync"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// Endpoint is an in-memory peer.Endpoint.
type Endpoint struct {
	broker   *Broker
	id       string
	dispatch *dispatcher
	events   peer.Slot[peer.EndpointHandlers]

	mu        sync.Mutex
	open      bool
	destroyed bool
	conns     map[string]*Conn
	calls     map[string]*Call
}

var _ peer.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) ID() string { return e.id }

func (e *Endpoint) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open && !e.destroyed
}

func (e *Endpoint) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

func (e *Endpoint) Subscribe(h peer.EndpointHandlers) *peer.Subscription {
	return e.events.Subscribe(h)
}

// Conns returns every data connection created on this endpoint.
func (e *Endpoint) Conns() []*Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

func (e *Endpoint) Connect(peerID string) (peer.DataConn, error) {
	if e.Destroyed() {
		return nil, peer.ErrDestroyed
	}
	id := e.broker.nextID("dc")
	local := newConn(e, id, peerID)
	e.track(local)

	remote := e.broker.Lookup(peerID)
	if remote == nil {
		e.dispatch.post(func() {
			err := peer.Errorf(peer.KindPeerUnavailable, "could not connect to peer %s", peerID)
			e.events.Emit(func(h peer.EndpointHandlers) { call1(h.Error, error(err)) })
		})
		return local, nil
	}

	other := newConn(remote, id, e.id)
	remote.track(other)
	local.remote, other.remote = other, local

	remote.dispatch.post(func() {
		remote.events.Emit(func(h peer.EndpointHandlers) { call1(h.Connection, peer.DataConn(other)) })
	})
	remote.dispatch.post(other.markOpen)
	e.dispatch.post(local.markOpen)
	return local, nil
}

func (e *Endpoint) Call(peerID string, stream *media.Stream) (peer.MediaCall, error) {
	if e.Destroyed() {
		return nil, peer.ErrDestroyed
	}
	remote := e.broker.Lookup(peerID)
	if remote == nil {
		return nil, peer.Errorf(peer.KindPeerUnavailable, "could not call peer %s", peerID)
	}

	id := e.broker.nextID("mc")
	local := &Call{ep: e, id: id, peer: peerID}
	other := &Call{ep: remote, id: id, peer: e.id, offered: stream}
	local.remote, other.remote = other, local
	e.trackCall(local)
	remote.trackCall(other)

	remote.dispatch.post(func() {
		remote.events.Emit(func(h peer.EndpointHandlers) { call1(h.Call, peer.MediaCall(other)) })
	})
	return local, nil
}

// Destroy releases the id and closes every connection and call.
func (e *Endpoint) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.open = false
	conns := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	calls := make([]*Call, 0, len(e.calls))
	for _, c := range e.calls {
		calls = append(calls, c)
	}
	e.mu.Unlock()

	e.broker.release(e)
	for _, c := range conns {
		c.Close()
	}
	for _, c := range calls {
		c.Close()
	}
	e.dispatch.close()
}

func (e *Endpoint) track(c *Conn) {
	e.mu.Lock()
	e.conns[c.id+"@"+c.peer] = c
	e.mu.Unlock()
}

func (e *Endpoint) trackCall(c *Call) {
	e.mu.Lock()
	e.calls[c.id] = c
	e.mu.Unlock()
}
