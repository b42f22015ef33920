package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/peer/peertest"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const grace = 50 * time.Millisecond

func TestHostClaimsFreeRoom(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")

	st := host.rec.waitStatus(t, StatusWaitingForGuest)
	assert.Equal(t, RoleHost, st.Role())
	assert.Equal(t, "Waiting for guest...", Display(st))
	eventually(t, "snapshot", func() bool { return host.view.Snapshot().Endpoint == "room1" })
}

func TestCorrectPasswordConnects(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "secret123")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	guest := mount(t, newProcess(t, b, grace), "room1", "secret123")

	host.rec.waitStatus(t, StatusVerifyingGuest)
	assert.Equal(t, "Connected to Host", Display(host.rec.waitStatus(t, StatusConnected)))
	st := guest.rec.waitStatus(t, StatusConnected)
	assert.Equal(t, "Connected to Host", Display(st))
	assert.Equal(t, GuestAccepted{Host: "room1"}, st)
}

func TestWrongPasswordRejectedAndClosed(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "secret123")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	guest := mount(t, newProcess(t, b, grace), "room1", "wrongpass")

	st := guest.rec.waitStatus(t, StatusAuthFailed)
	assert.Equal(t, "Authentication Failed", Display(st))
	guest.rec.waitFor(t, "prompt", func(ev Event) bool {
		pe, ok := ev.(PromptEvent)
		return ok && pe.Show
	})
	host.rec.waitStatus(t, StatusAuthFailed)

	var failAt time.Time
	for _, d := range b.Deliveries() {
		if d.Msg.Type == protocol.TypeAuthFail {
			failAt = d.At
		}
	}
	require.False(t, failAt.IsZero())

	guestEp := b.Lookup(guest.view.Snapshot().Endpoint)
	require.NotNil(t, guestEp)
	var closedAt time.Time
	eventually(t, "guest connection closed", func() bool {
		for _, c := range guestEp.Conns() {
			if at := c.ClosedAt(); !at.IsZero() {
				closedAt = at
				return true
			}
		}
		return false
	})
	elapsed := closedAt.Sub(failAt)
	assert.GreaterOrEqual(t, elapsed, 400*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)

	// Closing after a rejection is not a dropped session.
	assert.Equal(t, StatusAuthFailed, guest.view.Snapshot().State.Status())
	assert.True(t, guest.view.Snapshot().ShowPrompt)
}

func TestRetryWithCorrectPassword(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "secret123")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	guest := mount(t, newProcess(t, b, grace), "room1", "wrongpass")
	guest.rec.waitStatus(t, StatusAuthFailed)
	first := guest.view.Snapshot().Endpoint

	require.NoError(t, guest.view.Retry("secret123"))

	guest.rec.waitStatus(t, StatusConnected)
	host.rec.waitStatus(t, StatusConnected)
	assert.NotEqual(t, first, guest.view.Snapshot().Endpoint)
	assert.False(t, guest.view.Snapshot().ShowPrompt)
	eventually(t, "old guest endpoint destroyed", func() bool { return b.Lookup(first) == nil })
}

func TestNoPasswordAcceptsOnOpen(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	guest := mount(t, newProcess(t, b, grace), "room1", "")

	guest.rec.waitStatus(t, StatusConnected)
	host.rec.waitStatus(t, StatusConnected)

	var sawSuccess bool
	for _, d := range b.Deliveries() {
		if d.Msg.Type == protocol.TypeAuthSuccess {
			sawSuccess = true
		}
	}
	assert.True(t, sawSuccess)
}

func TestRoleExclusivity(t *testing.T) {
	b := peertest.NewBroker()
	first := mount(t, newProcess(t, b, grace), "room1", "")
	second := mount(t, newProcess(t, b, grace), "room1", "")

	first.rec.waitStatus(t, StatusConnected)
	second.rec.waitStatus(t, StatusConnected)

	roles := map[Role]int{}
	roles[first.view.Snapshot().State.Role()]++
	roles[second.view.Snapshot().State.Role()]++
	assert.Equal(t, 1, roles[RoleHost])
	assert.Equal(t, 1, roles[RoleGuest])
}

func TestRemountWithinGraceReusesEndpoint(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, 500*time.Millisecond)

	first := mount(t, reg, "room1", "")
	first.rec.waitStatus(t, StatusWaitingForGuest)
	ep, ok := reg.Get("room1")
	require.True(t, ok)
	first.view.Unmount()

	second := mount(t, reg, "room1", "")
	second.rec.waitStatus(t, StatusWaitingForGuest)

	again, ok := reg.Get("room1")
	require.True(t, ok)
	assert.Same(t, ep, again)
	assert.Equal(t, 1, b.Opened())

	// Outlives the first grace window.
	time.Sleep(700 * time.Millisecond)
	assert.False(t, again.Destroyed())
}

func TestUnmountDestroysAfterGrace(t *testing.T) {
	b := peertest.NewBroker()
	reg := newProcess(t, b, grace)

	host := mount(t, reg, "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)
	ep, _ := reg.Get("room1")

	host.view.Unmount()
	assert.False(t, ep.Destroyed())
	eventually(t, "endpoint destroyed", ep.Destroyed)
	assert.Zero(t, reg.Len())
	assert.Nil(t, b.Lookup("room1"))
}

func TestUnmountStopsLocalTracks(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	stream, src := newCapture("s1")
	require.NoError(t, host.view.StartShare(context.Background(), src))
	host.view.Unmount()

	assert.False(t, stream.Active())
	assert.ErrorIs(t, host.view.StopShare(), ErrUnmounted)
}

// blockingSource holds Capture until release is closed.
type blockingSource struct {
	stream  *media.Stream
	started chan struct{}
	release chan struct{}
}

func (b blockingSource) Capture(context.Context) (*media.Stream, error) {
	close(b.started)
	<-b.release
	return b.stream, nil
}

func TestUnmountDuringCaptureStopsStream(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	stream, _ := newCapture("s1")
	src := blockingSource{stream: stream, started: make(chan struct{}), release: make(chan struct{})}
	errc := make(chan error, 1)
	go func() { errc <- host.view.StartShare(context.Background(), src) }()

	<-src.started
	host.view.Unmount()
	close(src.release)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrUnmounted)
	case <-time.After(waitTimeout):
		t.Fatal("StartShare did not return")
	}
	assert.False(t, stream.Active())
}

func TestSignalingErrorIsTerminal(t *testing.T) {
	b := peertest.NewBroker()
	b.FailNextOpen(peer.KindServerError)
	host := mount(t, newProcess(t, b, grace), "room1", "")

	st := host.rec.waitStatus(t, StatusError)
	assert.Equal(t, "Error: server-error", Display(st))
	assert.Equal(t, 1, b.Opened())
}

func TestHostSeesGuestLeave(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)
	guestReg := newProcess(t, b, grace)
	guest := mount(t, guestReg, "room1", "")
	host.rec.waitStatus(t, StatusConnected)
	guest.rec.waitStatus(t, StatusConnected)

	guest.view.Unmount()
	host.rec.waitStatus(t, StatusWaitingForGuest)
}

func TestGuestSeesHostLeave(t *testing.T) {
	b := peertest.NewBroker()
	hostReg := newProcess(t, b, grace)
	host := mount(t, hostReg, "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)
	guest := mount(t, newProcess(t, b, grace), "room1", "")
	guest.rec.waitStatus(t, StatusConnected)

	host.view.Unmount()
	st := guest.rec.waitStatus(t, StatusConnectionClosed)
	assert.Equal(t, "Connection closed", Display(st))
}

func TestAuthTimeoutRejectsSilentGuest(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "secret123", func(o *Options) {
		o.AuthTimeout = 100 * time.Millisecond
	})
	host.rec.waitStatus(t, StatusWaitingForGuest)

	silent, err := b.Open(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(silent.Destroy)
	conn, err := silent.Connect("room1")
	require.NoError(t, err)
	got := make(chan protocol.Message, 4)
	closed := make(chan struct{})
	conn.Subscribe(peer.ConnHandlers{
		Data:  func(m protocol.Message) { got <- m },
		Close: func() { close(closed) },
	})

	host.rec.waitStatus(t, StatusVerifyingGuest)
	host.rec.waitStatus(t, StatusAuthFailed)
	select {
	case m := <-got:
		assert.Equal(t, protocol.TypeAuthFail, m.Type)
	case <-time.After(waitTimeout):
		t.Fatal("no auth-fail")
	}
	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Fatal("silent guest not closed")
	}
	host.rec.waitStatus(t, StatusWaitingForGuest)
}

func TestNewestGuestTakesSlot(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	first := mount(t, newProcess(t, b, grace), "room1", "")
	first.rec.waitStatus(t, StatusConnected)
	host.rec.waitStatus(t, StatusConnected)

	second := mount(t, newProcess(t, b, grace), "room1", "")
	second.rec.waitStatus(t, StatusConnected)

	first.rec.waitStatus(t, StatusConnectionClosed)
	eventually(t, "host serves the newest guest", func() bool {
		st, ok := host.view.Snapshot().State.(Hosting)
		return ok && st.Phase == HostConnected && st.Guest == second.view.Snapshot().Endpoint
	})
}

func TestGuestCannotShare(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)
	guest := mount(t, newProcess(t, b, grace), "room1", "")
	guest.rec.waitStatus(t, StatusConnected)

	_, src := newCapture("s1")
	assert.ErrorIs(t, guest.view.StartShare(context.Background(), src), ErrNotHost)
	assert.ErrorIs(t, host.view.Retry("x"), ErrNotGuest)
}

func TestCaptureErrorKeepsPreShareState(t *testing.T) {
	b := peertest.NewBroker()
	host := mount(t, newProcess(t, b, grace), "room1", "")
	host.rec.waitStatus(t, StatusWaitingForGuest)

	denied := errors.New("permission denied")
	err := host.view.StartShare(context.Background(), fakeSource{err: denied})
	require.ErrorIs(t, err, denied)

	snap := host.view.Snapshot()
	assert.False(t, snap.Sharing)
	assert.Equal(t, StatusWaitingForGuest, snap.State.Status())
}

func TestMountValidation(t *testing.T) {
	_, err := Mount(context.Background(), Options{Registry: NewRegistry(peertest.NewBroker().Opener(), grace, nil)})
	assert.ErrorIs(t, err, ErrEmptyRoom)

	_, err = Mount(context.Background(), Options{Room: "room1"})
	assert.Error(t, err)
}
