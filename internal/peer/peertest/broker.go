// Package peertest provides an in-memory rendezvous broker whose endpoints
// implement the peer interfaces without any network or WebRTC stack.
package peertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// Delivery records one control message passing through the broker.
type Delivery struct {
	From string
	To   string
	Msg  protocol.Message
	At   time.Time
}

// Broker is a process-local rendezvous service.
type Broker struct {
	codec protocol.Codec

	mu        sync.Mutex
	endpoints map[string]*Endpoint
	opened    []*Endpoint
	anon      int
	seq       int
	failNext  peer.ErrorKind
	log       []Delivery
}

func NewBroker() *Broker {
	codec, _ := protocol.CodecFor(protocol.SerializationMsgpack)
	return &Broker{codec: codec, endpoints: make(map[string]*Endpoint)}
}

// Opener adapts the broker to the session layer.
func (b *Broker) Opener() peer.Opener {
	return func(ctx context.Context, id string) (peer.Endpoint, error) {
		return b.Open(ctx, id)
	}
}

// FailNextOpen makes the next Open report an error of the given kind.
func (b *Broker) FailNextOpen(kind peer.ErrorKind) {
	b.mu.Lock()
	b.failNext = kind
	b.mu.Unlock()
}

// Open registers an endpoint. The claim is decided synchronously so that
// racing opens for one id always produce exactly one owner; the outcome
// is delivered asynchronously.
func (b *Broker) Open(_ context.Context, id string) (*Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		b.anon++
		id = fmt.Sprintf("anon-%d", b.anon)
	}
	ep := &Endpoint{broker: b, id: id, dispatch: newDispatcher(), conns: make(map[string]*Conn), calls: make(map[string]*Call)}
	b.opened = append(b.opened, ep)

	if kind := b.failNext; kind != "" {
		b.failNext = ""
		ep.dispatch.post(func() {
			ep.events.Emit(func(h peer.EndpointHandlers) { call1(h.Error, error(peer.NewError(kind, nil))) })
		})
		return ep, nil
	}

	if _, taken := b.endpoints[id]; taken {
		ep.dispatch.post(func() {
			err := peer.Errorf(peer.KindUnavailableID, "ID %q is taken", id)
			ep.events.Emit(func(h peer.EndpointHandlers) { call1(h.Error, error(err)) })
		})
		return ep, nil
	}

	b.endpoints[id] = ep
	ep.dispatch.post(func() {
		ep.mu.Lock()
		ep.open = true
		ep.mu.Unlock()
		ep.events.Emit(func(h peer.EndpointHandlers) { call1(h.Open, id) })
	})
	return ep, nil
}

// Opened returns how many endpoints were ever opened.
func (b *Broker) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

// Lookup returns the registered endpoint for id.
func (b *Broker) Lookup(id string) *Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endpoints[id]
}

// Deliveries returns every control message relayed so far.
func (b *Broker) Deliveries() []Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Delivery(nil), b.log...)
}

func (b *Broker) record(d Delivery) {
	b.mu.Lock()
	b.log = append(b.log, d)
	b.mu.Unlock()
}

func (b *Broker) release(ep *Endpoint) {
	b.mu.Lock()
	if b.endpoints[ep.id] == ep {
		delete(b.endpoints, ep.id)
	}
	b.mu.Unlock()
}

func (b *Broker) nextID(prefix string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return fmt.Sprintf("%s_%d", prefix, b.seq)
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
