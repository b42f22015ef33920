package broker

import (
	"context"
	"log/slog"
	"time"
)

const registryTimeout = 3 * time.Second

type queued struct {
	msg      *Message
	deadline time.Time
}

// Hub is the central brain of the broker. It owns the client map and every
// routing decision; all of its state is touched only by Run.
type Hub struct {
	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast carries frames read from clients.
	Broadcast chan *Message

	remote chan *Message
	done   chan struct{}

	registry Registry
	relay    Relay
	expire   time.Duration
	log      *slog.Logger

	clients  map[string]*Client
	contacts map[string]map[string]struct{}
	queue    map[string][]queued
}

// NewHub creates a hub. relay may be nil for a single instance.
func NewHub(registry Registry, relay Relay, expire time.Duration, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message, 64),
		remote:     make(chan *Message, 64),
		done:       make(chan struct{}),
		registry:   registry,
		relay:      relay,
		expire:     expire,
		log:        log.With("component", "hub"),
		clients:    make(map[string]*Client),
		contacts:   make(map[string]map[string]struct{}),
		queue:      make(map[string][]queued),
	}
}

// Run processes hub events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if h.relay != nil {
		stop, err := h.relay.Subscribe(ctx, func(msg *Message) {
			select {
			case h.remote <- msg:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return err
		}
		defer stop()
	}

	sweep := time.NewTicker(h.sweepPeriod())
	defer sweep.Stop()

	for {
		select {
		case client := <-h.Register:
			h.register(ctx, client)

		case client := <-h.Unregister:
			h.unregister(ctx, client)

		case message := <-h.Broadcast:
			h.handle(ctx, message)

		case message := <-h.remote:
			if c := h.clients[message.Dst]; c != nil {
				h.deliver(c, message)
			}

		case now := <-sweep.C:
			h.expireQueued(ctx, now)

		case <-ctx.Done():
			for _, c := range h.clients {
				h.closeClient(c)
			}
			return ctx.Err()
		}
	}
}

func (h *Hub) sweepPeriod() time.Duration {
	if p := h.expire / 5; p > 0 {
		return p
	}
	return time.Second
}

func (h *Hub) register(ctx context.Context, c *Client) {
	rctx, cancel := context.WithTimeout(ctx, registryTimeout)
	ok, err := h.registry.Claim(rctx, c.ID, c.Token)
	cancel()
	if err != nil {
		h.log.Error("claim id", "id", c.ID, "error", err)
		h.deliver(c, errorMessage("Registry unavailable"))
		h.closeClient(c)
		return
	}
	if !ok {
		h.log.Info("id taken", "id", c.ID)
		h.deliver(c, &Message{Type: TypeIDTaken, Payload: []byte(`{"msg":"ID is taken"}`)})
		h.closeClient(c)
		return
	}

	// Same id and token: a reconnect replaces the old socket.
	if old := h.clients[c.ID]; old != nil && old != c {
		h.closeClient(old)
	}
	h.clients[c.ID] = c
	h.log.Info("client registered", "id", c.ID, "clients", len(h.clients))
	h.deliver(c, &Message{Type: TypeOpen})

	pending := h.queue[c.ID]
	delete(h.queue, c.ID)
	for _, q := range pending {
		h.deliver(c, q.msg)
	}
}

func (h *Hub) unregister(ctx context.Context, c *Client) {
	defer h.closeClient(c)
	if h.clients[c.ID] != c {
		return
	}
	delete(h.clients, c.ID)

	rctx, cancel := context.WithTimeout(ctx, registryTimeout)
	if err := h.registry.Release(rctx, c.ID, c.Token); err != nil {
		h.log.Warn("release id", "id", c.ID, "error", err)
	}
	cancel()

	for other := range h.contacts[c.ID] {
		h.route(ctx, &Message{Type: TypeLeave, Src: c.ID, Dst: other})
		delete(h.contacts[other], c.ID)
	}
	delete(h.contacts, c.ID)
	h.log.Info("client unregistered", "id", c.ID, "clients", len(h.clients))
}

func (h *Hub) handle(ctx context.Context, msg *Message) {
	c := msg.client
	if h.clients[c.ID] != c {
		return
	}

	switch {
	case msg.Type == TypeHeartbeat:
		rctx, cancel := context.WithTimeout(ctx, registryTimeout)
		if err := h.registry.Refresh(rctx, c.ID, c.Token); err != nil {
			h.log.Warn("refresh id", "id", c.ID, "error", err)
		}
		cancel()

	case relayed(msg.Type):
		if msg.Dst == "" {
			h.log.Debug("frame without destination", "type", msg.Type, "src", c.ID)
			return
		}
		h.remember(c.ID, msg.Dst)
		h.route(ctx, msg)

	default:
		h.log.Debug("unknown message type", "type", msg.Type, "src", c.ID)
	}
}

// route delivers msg locally, through the relay, or holds it for a client
// that has not connected yet.
func (h *Hub) route(ctx context.Context, msg *Message) {
	if c := h.clients[msg.Dst]; c != nil {
		h.deliver(c, msg)
		return
	}

	if h.relay != nil {
		rctx, cancel := context.WithTimeout(ctx, registryTimeout)
		exists, err := h.registry.Exists(rctx, msg.Dst)
		if err == nil && exists {
			err = h.relay.Publish(rctx, msg)
		}
		cancel()
		if err != nil {
			h.log.Warn("relay frame", "dst", msg.Dst, "error", err)
		}
		if exists {
			return
		}
	}

	if queueable(msg.Type) {
		h.queue[msg.Dst] = append(h.queue[msg.Dst], queued{msg: msg, deadline: time.Now().Add(h.expire)})
	}
}

// expireQueued answers frames that waited too long with EXPIRE.
func (h *Hub) expireQueued(ctx context.Context, now time.Time) {
	for dst, list := range h.queue {
		kept := list[:0]
		for _, q := range list {
			if now.Before(q.deadline) {
				kept = append(kept, q)
				continue
			}
			if q.msg.Type == TypeOffer {
				h.log.Debug("offer expired", "src", q.msg.Src, "dst", dst)
				h.route(ctx, &Message{Type: TypeExpire, Src: dst, Dst: q.msg.Src})
			}
		}
		if len(kept) == 0 {
			delete(h.queue, dst)
		} else {
			h.queue[dst] = kept
		}
	}
}

func (h *Hub) remember(a, b string) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		set := h.contacts[pair[0]]
		if set == nil {
			set = make(map[string]struct{})
			h.contacts[pair[0]] = set
		}
		set[pair[1]] = struct{}{}
	}
}

// deliver queues msg on c without blocking the hub. A client too slow to
// keep up is dropped.
func (h *Hub) deliver(c *Client, msg *Message) {
	if c.closed {
		return
	}
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("client send buffer full, dropping client", "id", c.ID)
		h.closeClient(c)
	}
}

func (h *Hub) closeClient(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// submit hands an event to Run. It reports false once the hub has stopped.
func submit[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.done:
		return false
	}
}
