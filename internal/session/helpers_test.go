package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer/peertest"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type recorder struct {
	events chan Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan Event, 4096)}
}

func (r *recorder) OnEvent(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}

// waitFor drains events until one satisfies match.
func (r *recorder) waitFor(t *testing.T, what string, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.events:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
			return nil
		}
	}
}

func (r *recorder) waitStatus(t *testing.T, want Status) State {
	t.Helper()
	ev := r.waitFor(t, "status "+Display(stateFor(want)), func(ev Event) bool {
		se, ok := ev.(StateEvent)
		return ok && se.State.Status() == want
	})
	return ev.(StateEvent).State
}

func (r *recorder) waitCursor(t *testing.T, match func(Cursor) bool) Cursor {
	t.Helper()
	ev := r.waitFor(t, "cursor", func(ev Event) bool {
		ce, ok := ev.(CursorEvent)
		return ok && match(ce.Cursor)
	})
	return ev.(CursorEvent).Cursor
}

func (r *recorder) waitStream(t *testing.T, match func(StreamEvent) bool) StreamEvent {
	t.Helper()
	ev := r.waitFor(t, "stream", func(ev Event) bool {
		se, ok := ev.(StreamEvent)
		return ok && match(se)
	})
	return ev.(StreamEvent)
}

// stateFor returns a representative state for a status, for messages only.
func stateFor(s Status) State {
	switch s {
	case StatusWaitingForGuest:
		return Hosting{}
	case StatusVerifyingGuest:
		return Hosting{Phase: HostVerifying}
	case StatusConnectingToHost:
		return GuestPending{}
	case StatusConnected:
		return GuestAccepted{}
	case StatusAuthFailed:
		return GuestRejected{}
	case StatusConnectionClosed:
		return GuestDisconnected{}
	case StatusConnectionError:
		return GuestDisconnected{Err: errors.New("x")}
	case StatusError:
		return Failed{Kind: "any"}
	}
	return Unresolved{}
}

type fakeRenderer struct {
	mu      sync.Mutex
	streams []*media.Stream
}

func (f *fakeRenderer) Render(s *media.Stream) {
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
}

func (f *fakeRenderer) rendered() []*media.Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*media.Stream(nil), f.streams...)
}

type fakeSource struct {
	stream *media.Stream
	err    error
}

func (f fakeSource) Capture(context.Context) (*media.Stream, error) {
	return f.stream, f.err
}

func newCapture(id string) (*media.Stream, fakeSource) {
	s := media.NewStream(id, media.NewTrack(id+"-video", media.KindVideo))
	return s, fakeSource{stream: s}
}

// process stands in for one running p2pshare instance: its own registry
// on a shared broker.
func newProcess(t *testing.T, b *peertest.Broker, grace time.Duration) *Registry {
	t.Helper()
	reg := NewRegistry(b.Opener(), grace, nil)
	t.Cleanup(reg.Close)
	return reg
}

type mounted struct {
	view     *RoomView
	rec      *recorder
	renderer *fakeRenderer
}

func mount(t *testing.T, reg *Registry, room, password string, tweak ...func(*Options)) *mounted {
	t.Helper()
	m := &mounted{rec: newRecorder(), renderer: &fakeRenderer{}}
	opts := Options{
		Room:           room,
		Password:       password,
		Registry:       reg,
		Renderer:       m.renderer,
		OnEvent:        m.rec.OnEvent,
		FailCloseDelay: 500 * time.Millisecond,
		RetryDelay:     50 * time.Millisecond,
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	v, err := Mount(context.Background(), opts)
	require.NoError(t, err)
	m.view = v
	t.Cleanup(v.Unmount)
	return m
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 10*time.Millisecond, what)
}
