package peer

import "sync"

// maxPending bounds events queued while nobody is subscribed.
const maxPending = 64

// Subscription is an owned handler registration. Closing it detaches the
// handlers; closing twice, or after a newer subscriber took over, is a no-op.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Slot holds the single current handler set of an event source. Events
// emitted with no handler set attached are queued and replayed to the next
// subscriber in order.
type Slot[H any] struct {
	mu      sync.Mutex
	gen     uint64
	h       *H
	pending []func(H)
}

// Subscribe installs h, replacing any previous handler set.
func (s *Slot[H]) Subscribe(h H) *Subscription {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.h = &h
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range pending {
		fn(h)
	}

	return &Subscription{cancel: func() {
		s.mu.Lock()
		if s.gen == gen {
			s.h = nil
		}
		s.mu.Unlock()
	}}
}

// Emit delivers fn to the current handler set or queues it.
func (s *Slot[H]) Emit(fn func(H)) {
	s.mu.Lock()
	h := s.h
	if h == nil {
		if len(s.pending) < maxPending {
			s.pending = append(s.pending, fn)
		}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn(*h)
}

// Reset drops the handler set and anything queued.
func (s *Slot[H]) Reset() {
	s.mu.Lock()
	s.gen++
	s.h = nil
	s.pending = nil
	s.mu.Unlock()
}
