package signaling

import (
	"sync"

	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
	pion "github.com/pion/webrtc/v4"
)

// DataConn is a control channel carried by a WebRTC data channel.
type DataConn struct {
	n      *negotiator
	label  string
	codec  protocol.Codec
	events peer.Slot[peer.ConnHandlers]

	mu       sync.Mutex
	dc       *pion.DataChannel
	open     bool
	closed   bool
	closeErr error
}

var _ peer.DataConn = (*DataConn)(nil)

func newDataConn(ep *Endpoint, id, peerID, label string, codec protocol.Codec) *DataConn {
	if label == "" {
		label = id
	}
	return &DataConn{
		n:     newNegotiator(ep, id, peerID, ConnectionTypeData),
		label: label,
		codec: codec,
	}
}

func (c *DataConn) ID() string   { return c.n.id }
func (c *DataConn) Peer() string { return c.n.peerID }

func (c *DataConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

func (c *DataConn) Subscribe(h peer.ConnHandlers) *peer.Subscription {
	return c.events.Subscribe(h)
}

// dial creates the data channel and offers it.
func (c *DataConn) dial(serialization string) {
	pc, err := c.n.start()
	if err != nil {
		c.closeWith(err)
		return
	}
	c.watch(pc)

	ordered := true
	dc, err := pc.CreateDataChannel(c.label, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		c.closeWith(peer.Errorf(peer.KindWebRTC, "create data channel: %w", err))
		return
	}
	c.bind(dc)

	err = c.n.offer(OfferPayload{
		Label:         c.label,
		Serialization: serialization,
		Reliable:      true,
	})
	if err != nil {
		c.closeWith(err)
	}
}

// accept answers an inbound offer and waits for the remote data channel.
func (c *DataConn) accept(offer OfferPayload) {
	pc, err := c.n.start()
	if err != nil {
		c.closeWith(err)
		return
	}
	c.watch(pc)
	pc.OnDataChannel(c.bind)

	if err := c.n.answer(offer.SDP); err != nil {
		c.closeWith(err)
	}
}

func (c *DataConn) watch(pc *pion.PeerConnection) {
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		c.n.log.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			c.closeWith(peer.Errorf(peer.KindWebRTC, "negotiation of connection to %s failed", c.Peer()))
		case pion.PeerConnectionStateClosed:
			c.closeWith(nil)
		}
	})
}

func (c *DataConn) bind(dc *pion.DataChannel) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		dc.Close()
		return
	}
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.mu.Lock()
		if c.closed || c.open {
			c.mu.Unlock()
			return
		}
		c.open = true
		c.mu.Unlock()
		c.n.log.Debug("data channel open", "label", dc.Label())
		c.events.Emit(func(h peer.ConnHandlers) { call0(h.Open) })
	})

	dc.OnMessage(func(raw pion.DataChannelMessage) {
		msg, err := c.codec.Unmarshal(raw.Data)
		if err != nil {
			c.events.Emit(func(h peer.ConnHandlers) { call1(h.Error, err) })
			return
		}
		c.events.Emit(func(h peer.ConnHandlers) { call1(h.Data, msg) })
	})

	dc.OnError(func(err error) {
		c.events.Emit(func(h peer.ConnHandlers) { call1(h.Error, err) })
	})

	dc.OnClose(func() { c.closeWith(nil) })
}

// Send encodes msg with the connection's serialization. JSON goes out as
// text frames, msgpack as binary.
func (c *DataConn) Send(msg protocol.Message) error {
	c.mu.Lock()
	dc, open := c.dc, c.open && !c.closed
	c.mu.Unlock()
	if !open || dc == nil {
		return peer.ErrNotOpen
	}

	data, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}
	if c.codec.Name() == protocol.SerializationJSON {
		return dc.SendText(string(data))
	}
	return dc.Send(data)
}

func (c *DataConn) Close() error {
	c.closeWith(nil)
	return nil
}

func (c *DataConn) handleAnswer(p AnswerPayload) {
	if err := c.n.handleAnswer(p.SDP); err != nil {
		c.closeWith(err)
	}
}

func (c *DataConn) handleCandidate(p CandidatePayload) {
	c.n.handleCandidate(p.Candidate)
}

// closeWith closes the connection once, reporting err first when set.
func (c *DataConn) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	c.closeErr = err
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		dc.Close()
	}
	c.n.close()
	c.n.ep.untrack(c.n.id)

	if err != nil {
		c.events.Emit(func(h peer.ConnHandlers) { call1(h.Error, err) })
	}
	c.events.Emit(func(h peer.ConnHandlers) { call0(h.Close) })
}
