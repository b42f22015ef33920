package signaling

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/utils"
	pion "github.com/pion/webrtc/v4"
)

var errNoPeerConnection = errors.New("peer connection not started")

// NewPeerConnection builds a peer connection with the configured ICE servers.
func NewPeerConnection(cfg *config.Config, log *slog.Logger) (*pion.PeerConnection, error) {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil {
		if cfg.ForceRelay {
			policy = pion.ICETransportPolicyRelay
		} else if reason := utils.RelayReason(); reason != "" {
			log.Info("forcing relay", "reason", reason)
			policy = pion.ICETransportPolicyRelay
		}
	}

	pc, err := pion.NewPeerConnection(pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, peer.NewError(peer.KindWebRTC, err)
	}
	return pc, nil
}

// negotiator runs the offer/answer exchange of one connection over the
// rendezvous socket. Remote candidates that arrive before the remote
// description are held back and applied once it is set.
type negotiator struct {
	ep     *Endpoint
	id     string
	peerID string
	kind   string
	log    *slog.Logger

	mu        sync.Mutex
	pc        *pion.PeerConnection
	remoteSet bool
	pending   []pion.ICECandidateInit
	closed    bool
}

func newNegotiator(ep *Endpoint, id, peerID, kind string) *negotiator {
	return &negotiator{
		ep:     ep,
		id:     id,
		peerID: peerID,
		kind:   kind,
		log:    ep.log.With("connection", id, "peer", peerID),
	}
}

// start creates the peer connection and trickles local candidates to the
// remote side.
func (n *negotiator) start() (*pion.PeerConnection, error) {
	pc, err := NewPeerConnection(n.ep.cfg, n.log)
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		n.ep.send(MessageTypeCandidate, n.peerID, CandidatePayload{
			Candidate:    c.ToJSON(),
			Type:         n.kind,
			ConnectionID: n.id,
		})
	})

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		pc.Close()
		return nil, peer.ErrClosed
	}
	n.pc = pc
	n.mu.Unlock()
	return pc, nil
}

// offer sends an OFFER built from a fresh local description.
func (n *negotiator) offer(payload OfferPayload) error {
	pc := n.peerConnection()
	if pc == nil {
		return errNoPeerConnection
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return peer.Errorf(peer.KindWebRTC, "create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return peer.Errorf(peer.KindWebRTC, "set local description: %w", err)
	}

	payload.SDP = *pc.LocalDescription()
	payload.Type = n.kind
	payload.ConnectionID = n.id
	n.ep.send(MessageTypeOffer, n.peerID, payload)
	return nil
}

// answer applies the remote offer and replies with an ANSWER.
func (n *negotiator) answer(offer pion.SessionDescription) error {
	pc := n.peerConnection()
	if pc == nil {
		return errNoPeerConnection
	}
	if err := n.setRemote(offer); err != nil {
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return peer.Errorf(peer.KindWebRTC, "create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return peer.Errorf(peer.KindWebRTC, "set local description: %w", err)
	}

	n.ep.send(MessageTypeAnswer, n.peerID, AnswerPayload{
		SDP:          *pc.LocalDescription(),
		Type:         n.kind,
		ConnectionID: n.id,
	})
	return nil
}

// handleAnswer completes an exchange this side offered.
func (n *negotiator) handleAnswer(desc pion.SessionDescription) error {
	if desc.Type != pion.SDPTypeAnswer {
		return peer.Errorf(peer.KindWebRTC, "unexpected %s in answer", desc.Type)
	}
	return n.setRemote(desc)
}

func (n *negotiator) setRemote(desc pion.SessionDescription) error {
	pc := n.peerConnection()
	if pc == nil {
		return errNoPeerConnection
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return peer.Errorf(peer.KindWebRTC, "set remote description: %w", err)
	}

	n.mu.Lock()
	n.remoteSet = true
	pending := n.pending
	n.pending = nil
	n.mu.Unlock()

	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			n.log.Warn("add buffered ICE candidate", "error", err)
		}
	}
	return nil
}

// handleCandidate applies a remote candidate, or buffers it until the
// remote description is known.
func (n *negotiator) handleCandidate(c pion.ICECandidateInit) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	if n.pc == nil || !n.remoteSet {
		n.pending = append(n.pending, c)
		n.mu.Unlock()
		return
	}
	pc := n.pc
	n.mu.Unlock()

	if err := pc.AddICECandidate(c); err != nil {
		n.log.Warn("add ICE candidate", "error", err)
	}
}

func (n *negotiator) peerConnection() *pion.PeerConnection {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pc
}

// close tears the peer connection down. It reports false if it was already closed.
func (n *negotiator) close() bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.closed = true
	pc := n.pc
	n.pending = nil
	n.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			n.log.Debug("close peer connection", "error", err)
		}
	}
	return true
}
