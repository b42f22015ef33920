// Package signaling implements peer endpoints on a PeerJS-compatible
// rendezvous server: a websocket for signaling and pion peer connections
// for data channels and media calls.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/dns"
	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

const idFetchTimeout = 10 * time.Second

// httpClient fetches ids through the same resolver as the websocket.
var httpClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dns.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// connection is a data connection or media call routed by connection id.
type connection interface {
	Peer() string
	handleAnswer(p AnswerPayload)
	handleCandidate(p CandidatePayload)
	closeWith(err error)
}

// Endpoint is a peer.Endpoint registered on a rendezvous server.
type Endpoint struct {
	cfg    *config.Config
	codec  protocol.Codec
	log    *slog.Logger
	events peer.Slot[peer.EndpointHandlers]
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	id        string
	client    *Client
	open      bool
	aborted   bool
	destroyed bool
	conns     map[string]connection
}

var _ peer.Endpoint = (*Endpoint)(nil)

// Opener returns a peer.Opener that registers endpoints on the server
// described by cfg.
func Opener(cfg *config.Config, log *slog.Logger) peer.Opener {
	return func(ctx context.Context, id string) (peer.Endpoint, error) {
		return Open(ctx, cfg, id, log)
	}
}

// Open starts registering an endpoint under id, or under a server-assigned
// id when id is empty. The outcome is reported through Open or Error events.
func Open(ctx context.Context, cfg *config.Config, id string, log *slog.Logger) (*Endpoint, error) {
	codec, err := protocol.CodecFor(cfg.Peer.Serialization)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &Endpoint{
		cfg:    cfg,
		codec:  codec,
		log:    log.With("component", "signaling"),
		ctx:    ctx,
		cancel: cancel,
		id:     id,
		conns:  make(map[string]connection),
	}
	go e.connect(id)
	return e, nil
}

func (e *Endpoint) connect(id string) {
	if id == "" {
		fetched, err := e.fetchID()
		if err != nil {
			e.abort(peer.Errorf(peer.KindServerError, "could not get an ID from the server: %w", err))
			return
		}
		id = fetched
		e.mu.Lock()
		e.id = id
		e.mu.Unlock()
	}

	token := uuid.NewString()
	client, err := Dial(e.ctx, e.cfg.Peer.SocketURL(id, token), e.cfg.Heartbeat, e.log)
	if err != nil {
		e.abort(peer.NewError(peer.KindSocketError, err))
		return
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		client.Close()
		return
	}
	e.client = client
	e.mu.Unlock()

	e.log.Debug("socket connected", "id", id)
	for msg := range client.Incoming() {
		e.handle(msg)
	}

	e.mu.Lock()
	wasOpen, done := e.open, e.destroyed || e.aborted
	e.open = false
	e.mu.Unlock()
	if done {
		return
	}
	if wasOpen {
		e.emitError(peer.Errorf(peer.KindNetwork, "lost connection to server"))
		return
	}
	e.emitError(peer.Errorf(peer.KindSocketClosed, "underlying socket is already closed"))
}

// fetchID asks the server for a fresh endpoint id.
func (e *Endpoint) fetchID() (string, error) {
	ctx, cancel := context.WithTimeout(e.ctx, idFetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s%s/id?ts=%d", e.cfg.Peer.HTTPBase(), e.cfg.Peer.Key, time.Now().UnixNano())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", errors.New("empty id")
	}
	return id, nil
}

// handle routes one incoming frame.
func (e *Endpoint) handle(msg *Message) {
	switch msg.Type {
	case MessageTypeOpen:
		e.mu.Lock()
		e.open = true
		id := e.id
		e.mu.Unlock()
		e.log.Info("endpoint open", "id", id)
		e.events.Emit(func(h peer.EndpointHandlers) { call1(h.Open, id) })

	case MessageTypeIDTaken:
		e.abort(peer.Errorf(peer.KindUnavailableID, "ID %q is taken", e.ID()))

	case MessageTypeError:
		p, _ := decode[ErrorPayload](msg.Payload)
		e.abort(peer.Errorf(peer.KindServerError, "%s", p.Msg))

	case MessageTypeLeave:
		e.log.Debug("peer left", "peer", msg.Src)
		e.closePeer(msg.Src, nil)

	case MessageTypeExpire:
		err := peer.Errorf(peer.KindPeerUnavailable, "could not connect to peer %s", msg.Src)
		e.closePeer(msg.Src, err)
		e.emitError(err)

	case MessageTypeOffer:
		e.handleOffer(msg)

	case MessageTypeAnswer:
		p, err := decode[AnswerPayload](msg.Payload)
		if err != nil {
			e.log.Warn("malformed answer", "error", err)
			return
		}
		if c := e.lookup(p.ConnectionID); c != nil {
			c.handleAnswer(p)
			return
		}
		e.log.Debug("answer for unknown connection", "connection", p.ConnectionID)

	case MessageTypeCandidate:
		p, err := decode[CandidatePayload](msg.Payload)
		if err != nil {
			e.log.Warn("malformed candidate", "error", err)
			return
		}
		if c := e.lookup(p.ConnectionID); c != nil {
			c.handleCandidate(p)
			return
		}
		e.log.Debug("candidate for unknown connection", "connection", p.ConnectionID)

	default:
		e.log.Debug("ignoring frame", "type", msg.Type)
	}
}

func (e *Endpoint) handleOffer(msg *Message) {
	p, err := decode[OfferPayload](msg.Payload)
	if err != nil {
		e.log.Warn("malformed offer", "error", err)
		return
	}
	if e.lookup(p.ConnectionID) != nil {
		e.log.Warn("offer for existing connection", "connection", p.ConnectionID)
		return
	}

	switch p.Type {
	case ConnectionTypeData:
		codec, err := protocol.CodecFor(p.Serialization)
		if err != nil {
			codec = e.codec
		}
		conn := newDataConn(e, p.ConnectionID, msg.Src, p.Label, codec)
		e.track(p.ConnectionID, conn)
		e.events.Emit(func(h peer.EndpointHandlers) { call1(h.Connection, peer.DataConn(conn)) })
		go conn.accept(p)

	case ConnectionTypeMedia:
		call := newMediaCall(e, p.ConnectionID, msg.Src, &p)
		e.track(p.ConnectionID, call)
		e.events.Emit(func(h peer.EndpointHandlers) { call1(h.Call, peer.MediaCall(call)) })

	default:
		e.log.Warn("offer of unknown type", "type", p.Type)
	}
}

func (e *Endpoint) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

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

// Connect dials a data connection to peerID.
func (e *Endpoint) Connect(peerID string) (peer.DataConn, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	id := "dc_" + uuid.NewString()
	conn := newDataConn(e, id, peerID, id, e.codec)
	e.track(id, conn)
	go conn.dial(e.cfg.Peer.Serialization)
	return conn, nil
}

// Call places a media call to peerID carrying stream.
func (e *Endpoint) Call(peerID string, stream *media.Stream) (peer.MediaCall, error) {
	if err := e.usable(); err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, errors.New("call requires a stream")
	}
	id := "mc_" + uuid.NewString()
	call := newMediaCall(e, id, peerID, nil)
	e.track(id, call)
	go call.dial(stream)
	return call, nil
}

func (e *Endpoint) usable() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return peer.ErrDestroyed
	}
	if !e.open {
		return peer.NewError(peer.KindDisconnected, peer.ErrNotOpen)
	}
	return nil
}

// Destroy closes every connection and the socket. The id is released on
// the server once the socket is gone.
func (e *Endpoint) Destroy() {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.destroyed = true
	e.open = false
	client := e.client
	conns := make([]connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	e.mu.Unlock()

	for _, c := range conns {
		c.closeWith(nil)
	}
	if client != nil {
		client.Close()
	}
	e.cancel()
	e.events.Reset()
	e.log.Debug("endpoint destroyed", "id", e.ID())
}

// abort reports a fatal error and drops the socket.
func (e *Endpoint) abort(err error) {
	e.mu.Lock()
	e.open = false
	e.aborted = true
	client := e.client
	e.client = nil
	e.mu.Unlock()
	if client != nil {
		client.Close()
	}
	e.emitError(err)
}

func (e *Endpoint) emitError(err error) {
	if e.Destroyed() {
		return
	}
	e.log.Debug("endpoint error", "error", err)
	e.events.Emit(func(h peer.EndpointHandlers) { call1(h.Error, err) })
}

func (e *Endpoint) send(typ, dst string, payload any) {
	msg, err := NewMessage(typ, dst, payload)
	if err != nil {
		e.log.Error("encode frame", "type", typ, "error", err)
		return
	}
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client == nil || !client.SendMessage(msg) {
		e.log.Debug("dropping frame on closed socket", "type", typ, "dst", dst)
	}
}

func (e *Endpoint) track(id string, c connection) {
	e.mu.Lock()
	e.conns[id] = c
	e.mu.Unlock()
}

func (e *Endpoint) untrack(id string) {
	e.mu.Lock()
	delete(e.conns, id)
	e.mu.Unlock()
}

func (e *Endpoint) lookup(id string) connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[id]
}

// closePeer closes every connection to peerID.
func (e *Endpoint) closePeer(peerID string, err error) {
	e.mu.Lock()
	var matched []connection
	for _, c := range e.conns {
		if c.Peer() == peerID {
			matched = append(matched, c)
		}
	}
	e.mu.Unlock()

	for _, c := range matched {
		c.closeWith(err)
	}
}

func call0(fn func()) {
	if fn != nil {
		fn()
	}
}

func call1[T any](fn func(T), v T) {
	if fn != nil {
		fn(v)
	}
}
