package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// Registry caches signaling endpoints by room id so that a room view
// remounted within the grace window picks up the same endpoint. It is
// shared by every room view in the process and safe for concurrent use.
type Registry struct {
	open  peer.Opener
	grace time.Duration
	log   *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	orphans map[peer.Endpoint]*time.Timer
	closed  bool
}

type entry struct {
	ep    peer.Endpoint
	timer *time.Timer
	gen   uint64
}

// NewRegistry creates a registry that opens endpoints with open and destroys
// released ones after grace.
func NewRegistry(open peer.Opener, grace time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		open:    open,
		grace:   grace,
		log:     log.With("component", "registry"),
		entries: make(map[string]*entry),
		orphans: make(map[peer.Endpoint]*time.Timer),
	}
}

// Acquire returns the live endpoint cached for room, cancelling any pending
// destroy, or opens a new endpoint under room and caches it.
func (r *Registry) Acquire(ctx context.Context, room string) (ep peer.Endpoint, reused bool, err error) {
	if room == "" {
		return nil, false, ErrEmptyRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false, NewRoomError("acquire endpoint", room, ErrUnmounted)
	}

	if e := r.entries[room]; e != nil {
		if !e.ep.Destroyed() {
			r.cancelLocked(e)
			r.log.Debug("reusing endpoint", "room", room)
			return e.ep, true, nil
		}
		delete(r.entries, room)
	}

	// Openers return immediately, so holding the lock here only
	// serialises claims for the same process.
	ep, err = r.open(ctx, room)
	if err != nil {
		return nil, false, NewRoomError("open endpoint", room, err)
	}
	r.entries[room] = &entry{ep: ep}
	return ep, false, nil
}

// OpenAnonymous opens an uncached endpoint with a service-assigned id.
func (r *Registry) OpenAnonymous(ctx context.Context) (peer.Endpoint, error) {
	ep, err := r.open(ctx, "")
	if err != nil {
		return nil, NewError("open anonymous endpoint", err)
	}
	return ep, nil
}

// Get returns the cached endpoint for room.
func (r *Registry) Get(room string) (peer.Endpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[room]
	if !ok {
		return nil, false
	}
	return e.ep, true
}

// ScheduleDestroy destroys ep after the grace window. When ep is the cached
// endpoint for room, the cache entry is removed in the same callback unless
// the destroy was cancelled first.
func (r *Registry) ScheduleDestroy(room string, ep peer.Endpoint) {
	if ep == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		go ep.Destroy()
		return
	}

	if e := r.entries[room]; e != nil && e.ep == ep {
		r.cancelLocked(e)
		gen := e.gen
		e.timer = time.AfterFunc(r.grace, func() { r.expire(room, ep, gen) })
		return
	}

	if t := r.orphans[ep]; t != nil {
		t.Stop()
	}
	r.orphans[ep] = time.AfterFunc(r.grace, func() {
		r.mu.Lock()
		delete(r.orphans, ep)
		r.mu.Unlock()
		ep.Destroy()
	})
}

// CancelDestroy stops a pending destroy for room. It reports whether one was pending.
func (r *Registry) CancelDestroy(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[room]
	if e == nil || e.timer == nil {
		return false
	}
	r.cancelLocked(e)
	return true
}

func (r *Registry) cancelLocked(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// A timer that already fired sees a newer generation and backs off.
	e.gen++
}

func (r *Registry) expire(room string, ep peer.Endpoint, gen uint64) {
	r.mu.Lock()
	e := r.entries[room]
	if e == nil || e.ep != ep || e.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.entries, room)
	r.mu.Unlock()

	r.log.Debug("destroying endpoint after grace window", "room", room)
	ep.Destroy()
}

// Evict destroys ep now and drops the cache entry for room if it holds ep
// or a destroyed endpoint.
func (r *Registry) Evict(room string, ep peer.Endpoint) {
	r.mu.Lock()
	if e := r.entries[room]; e != nil && (e.ep == ep || e.ep.Destroyed()) {
		r.cancelLocked(e)
		delete(r.entries, room)
	}
	r.mu.Unlock()

	if ep != nil {
		ep.Destroy()
	}
}

// Len returns the number of cached endpoints.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close destroys every cached and pending endpoint immediately.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var eps []peer.Endpoint
	for room, e := range r.entries {
		r.cancelLocked(e)
		eps = append(eps, e.ep)
		delete(r.entries, room)
	}
	for ep, t := range r.orphans {
		t.Stop()
		eps = append(eps, ep)
		delete(r.orphans, ep)
	}
	r.mu.Unlock()

	for _, ep := range eps {
		ep.Destroy()
	}
}
