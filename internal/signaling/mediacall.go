package signaling

import (
	"errors"
	"sync"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	pion "github.com/pion/webrtc/v4"
)

var errAnswerOutbound = errors.New("cannot answer an outbound call")

// MediaCall is a media connection. The caller adds its local tracks; the
// callee assembles the remote tracks into one stream.
type MediaCall struct {
	n      *negotiator
	offer  *OfferPayload
	events peer.Slot[peer.CallHandlers]

	mu       sync.Mutex
	remote   *media.Stream
	answered bool
	closed   bool
}

var _ peer.MediaCall = (*MediaCall)(nil)

func newMediaCall(ep *Endpoint, id, peerID string, offer *OfferPayload) *MediaCall {
	return &MediaCall{
		n:     newNegotiator(ep, id, peerID, ConnectionTypeMedia),
		offer: offer,
	}
}

func (c *MediaCall) ID() string   { return c.n.id }
func (c *MediaCall) Peer() string { return c.n.peerID }

func (c *MediaCall) Subscribe(h peer.CallHandlers) *peer.Subscription {
	return c.events.Subscribe(h)
}

// dial sends stream's tracks to the callee.
func (c *MediaCall) dial(stream *media.Stream) {
	pc, err := c.n.start()
	if err != nil {
		c.closeWith(err)
		return
	}
	c.watch(pc)

	if err := c.addTracks(pc, stream); err != nil {
		c.closeWith(err)
		return
	}
	if err := c.n.offer(OfferPayload{Metadata: map[string]string{"stream": stream.ID()}}); err != nil {
		c.closeWith(err)
	}
}

// Answer accepts an inbound call. stream may be nil for a receive-only answer.
func (c *MediaCall) Answer(stream *media.Stream) error {
	if c.offer == nil {
		return errAnswerOutbound
	}
	c.mu.Lock()
	if c.answered || c.closed {
		c.mu.Unlock()
		return peer.ErrClosed
	}
	c.answered = true
	c.mu.Unlock()

	pc, err := c.n.start()
	if err != nil {
		c.closeWith(err)
		return err
	}
	c.watch(pc)
	pc.OnTrack(c.onTrack)

	if stream != nil {
		if err := c.addTracks(pc, stream); err != nil {
			c.closeWith(err)
			return err
		}
	}

	go func() {
		if err := c.n.answer(c.offer.SDP); err != nil {
			c.closeWith(err)
		}
	}()
	return nil
}

func (c *MediaCall) addTracks(pc *pion.PeerConnection, stream *media.Stream) error {
	for _, t := range stream.Tracks() {
		local := t.Local()
		if local == nil {
			continue
		}
		sender, err := pc.AddTrack(local)
		if err != nil {
			return peer.Errorf(peer.KindWebRTC, "add %s track: %w", t.Kind(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads RTCP so that interceptors such as NACK keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *MediaCall) onTrack(remote *pion.TrackRemote, _ *pion.RTPReceiver) {
	track := media.NewRemoteTrack(remote)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		track.End()
		return
	}
	first := c.remote == nil
	if first {
		c.remote = media.NewStream(remote.StreamID(), track)
	} else {
		c.remote.AddTrack(track)
	}
	stream := c.remote
	c.mu.Unlock()

	c.n.log.Debug("remote track", "kind", track.Kind(), "codec", remote.Codec().MimeType)
	if first {
		c.events.Emit(func(h peer.CallHandlers) { call1(h.Stream, stream) })
	}
}

func (c *MediaCall) watch(pc *pion.PeerConnection) {
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		c.n.log.Debug("peer connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateFailed:
			c.closeWith(peer.Errorf(peer.KindWebRTC, "media connection to %s failed", c.Peer()))
		case pion.PeerConnectionStateClosed:
			c.closeWith(nil)
		}
	})
}

func (c *MediaCall) Close() error {
	c.closeWith(nil)
	return nil
}

func (c *MediaCall) handleAnswer(p AnswerPayload) {
	if err := c.n.handleAnswer(p.SDP); err != nil {
		c.closeWith(err)
	}
}

func (c *MediaCall) handleCandidate(p CandidatePayload) {
	c.n.handleCandidate(p.Candidate)
}

// closeWith closes the call once, ending every remote track.
func (c *MediaCall) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	remote := c.remote
	c.mu.Unlock()

	c.n.close()
	c.n.ep.untrack(c.n.id)
	if remote != nil {
		for _, t := range remote.Tracks() {
			t.End()
		}
	}

	if err != nil {
		c.events.Emit(func(h peer.CallHandlers) { call1(h.Error, err) })
	}
	c.events.Emit(func(h peer.CallHandlers) { call0(h.Close) })
}
