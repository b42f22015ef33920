package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one line of the diagnostic log.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   string
}

// String renders the entry the way the log panel shows it.
func (e Entry) String() string {
	s := fmt.Sprintf("%s %s", e.Time.Format("15:04:05"), e.Message)
	if e.Attrs != "" {
		s += " " + e.Attrs
	}
	return s
}

// Ring is a fixed-size buffer of the most recent log entries.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	min     slog.Level
	notify  func()
}

// NewRing keeps the last size entries at or above min.
func NewRing(size int, min slog.Level) *Ring {
	if size <= 0 {
		size = RecentCapacity
	}
	return &Ring{entries: make([]Entry, size), min: min}
}

// OnAppend registers a callback fired after every append.
func (r *Ring) OnAppend(fn func()) {
	r.mu.Lock()
	r.notify = fn
	r.mu.Unlock()
}

// Append stores e, evicting the oldest entry when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Entries returns the buffered entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]Entry(nil), r.entries[:r.next]...)
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Tee is a slog.Handler that forwards to another handler and copies
// records into a Ring.
type Tee struct {
	next   slog.Handler
	ring   *Ring
	prefix string
	attrs  []string
}

// NewTee wraps next so that records also land in ring.
func NewTee(next slog.Handler, ring *Ring) *Tee {
	return &Tee{next: next, ring: ring}
}

func (t *Tee) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= t.ring.min || t.next.Enabled(ctx, level)
}

func (t *Tee) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= t.ring.min {
		attrs := append([]string(nil), t.attrs...)
		r.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, t.prefix+a.Key+"="+a.Value.String())
			return true
		})
		t.ring.Append(Entry{
			Time:    r.Time,
			Level:   r.Level,
			Message: r.Message,
			Attrs:   strings.Join(attrs, " "),
		})
	}
	if t.next.Enabled(ctx, r.Level) {
		return t.next.Handle(ctx, r)
	}
	return nil
}

func (t *Tee) WithAttrs(as []slog.Attr) slog.Handler {
	attrs := append([]string(nil), t.attrs...)
	for _, a := range as {
		attrs = append(attrs, t.prefix+a.Key+"="+a.Value.String())
	}
	return &Tee{next: t.next.WithAttrs(as), ring: t.ring, prefix: t.prefix, attrs: attrs}
}

func (t *Tee) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	return &Tee{next: t.next.WithGroup(name), ring: t.ring, prefix: t.prefix + name + ".", attrs: t.attrs}
}
