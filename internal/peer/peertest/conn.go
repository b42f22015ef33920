package peertest

import (
	"sync"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// Conn is one side of an in-memory data connection.
type Conn struct {
	ep     *Endpoint
	id     string
	peer   string
	remote *Conn
	events peer.Slot[peer.ConnHandlers]

	mu       sync.Mutex
	open     bool
	closed   bool
	closedAt time.Time
}

var _ peer.DataConn = (*Conn)(nil)

func newConn(ep *Endpoint, id, peerID string) *Conn {
	return &Conn{ep: ep, id: id, peer: peerID}
}

func (c *Conn) ID() string   { return c.id }
func (c *Conn) Peer() string { return c.peer }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

// ClosedAt reports when the connection closed, zero while open.
func (c *Conn) ClosedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}

func (c *Conn) Subscribe(h peer.ConnHandlers) *peer.Subscription {
	return c.events.Subscribe(h)
}

func (c *Conn) markOpen() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.open = true
	c.mu.Unlock()
	c.events.Emit(func(h peer.ConnHandlers) { call0(h.Open) })
}

// Send encodes msg and delivers it on the remote side's dispatcher.
func (c *Conn) Send(msg protocol.Message) error {
	if !c.IsOpen() || c.remote == nil {
		return peer.ErrNotOpen
	}
	codec := c.ep.broker.codec
	data, err := codec.Marshal(msg)
	if err != nil {
		return err
	}
	c.ep.broker.record(Delivery{From: c.ep.id, To: c.peer, Msg: msg, At: time.Now()})

	remote := c.remote
	remote.ep.dispatch.post(func() {
		if !remote.IsOpen() {
			return
		}
		got, err := codec.Unmarshal(data)
		if err != nil {
			remote.events.Emit(func(h peer.ConnHandlers) { call1(h.Error, err) })
			return
		}
		remote.events.Emit(func(h peer.ConnHandlers) { call1(h.Data, got) })
	})
	return nil
}

func (c *Conn) Close() error {
	c.closeLocal()
	if c.remote != nil {
		c.remote.closeLocal()
	}
	return nil
}

func (c *Conn) closeLocal() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	c.closedAt = time.Now()
	c.mu.Unlock()

	c.ep.dispatch.post(func() {
		c.events.Emit(func(h peer.ConnHandlers) { call0(h.Close) })
	})
}

// Call is one side of an in-memory media call.
type Call struct {
	ep      *Endpoint
	id      string
	peer    string
	remote  *Call
	offered *media.Stream
	events  peer.Slot[peer.CallHandlers]

	mu     sync.Mutex
	closed bool
}

var _ peer.MediaCall = (*Call)(nil)

func (c *Call) ID() string   { return c.id }
func (c *Call) Peer() string { return c.peer }

func (c *Call) Subscribe(h peer.CallHandlers) *peer.Subscription {
	return c.events.Subscribe(h)
}

// Answer accepts the call; the callee receives a mirror of the caller's
// stream whose tracks end when the originals do.
func (c *Call) Answer(stream *media.Stream) error {
	if c.offered == nil {
		return peer.Errorf(peer.KindWebRTC, "answer on outbound call")
	}
	mirror := mirrorStream(c.offered)
	c.ep.dispatch.post(func() {
		c.events.Emit(func(h peer.CallHandlers) { call1(h.Stream, mirror) })
	})
	if stream != nil && c.remote != nil {
		back := mirrorStream(stream)
		remote := c.remote
		remote.ep.dispatch.post(func() {
			remote.events.Emit(func(h peer.CallHandlers) { call1(h.Stream, back) })
		})
	}
	return nil
}

func (c *Call) Close() error {
	c.closeLocal()
	if c.remote != nil {
		c.remote.closeLocal()
	}
	return nil
}

func (c *Call) closeLocal() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.ep.dispatch.post(func() {
		c.events.Emit(func(h peer.CallHandlers) { call0(h.Close) })
	})
}

func mirrorStream(s *media.Stream) *media.Stream {
	out := media.NewStream(s.ID())
	for _, t := range s.Tracks() {
		m := media.NewTrack(t.ID(), t.Kind())
		out.AddTrack(m)
		go func(src, dst *media.Track) {
			<-src.Ended()
			dst.End()
		}(t, m)
	}
	return out
}
