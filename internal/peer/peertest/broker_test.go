package peertest

import (
	"context"
	"testing"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = 2 * time.Second

func TestSecondClaimGetsUnavailableID(t *testing.T) {
	b := NewBroker()
	first, _ := b.Open(context.Background(), "room1")
	second, _ := b.Open(context.Background(), "room1")

	opened := make(chan string, 1)
	first.Subscribe(peer.EndpointHandlers{Open: func(id string) { opened <- id }})
	errs := make(chan error, 1)
	second.Subscribe(peer.EndpointHandlers{Error: func(err error) { errs <- err }})

	select {
	case id := <-opened:
		assert.Equal(t, "room1", id)
	case <-time.After(wait):
		t.Fatal("no open")
	}
	select {
	case err := <-errs:
		assert.True(t, peer.IsKind(err, peer.KindUnavailableID))
	case <-time.After(wait):
		t.Fatal("no error")
	}
	assert.True(t, first.IsOpen())
	assert.False(t, second.IsOpen())
	assert.Equal(t, 2, b.Opened())
}

func TestConnectionCarriesMessagesInOrder(t *testing.T) {
	b := NewBroker()
	host, _ := b.Open(context.Background(), "room1")
	guest, _ := b.Open(context.Background(), "")

	inbound := make(chan peer.DataConn, 1)
	host.Subscribe(peer.EndpointHandlers{Connection: func(c peer.DataConn) { inbound <- c }})

	conn, err := guest.Connect("room1")
	require.NoError(t, err)
	opened := make(chan struct{})
	conn.Subscribe(peer.ConnHandlers{Open: func() { close(opened) }})
	<-opened

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.Send(protocol.Cursor(float64(i)/10, 0, "#ef4444")))
	}
	require.NoError(t, conn.Send(protocol.CursorHidden("#ef4444")))

	var remote peer.DataConn
	select {
	case remote = <-inbound:
	case <-time.After(wait):
		t.Fatal("no inbound connection")
	}
	assert.Equal(t, guest.ID(), remote.Peer())

	got := make(chan protocol.Message, 10)
	remote.Subscribe(peer.ConnHandlers{Data: func(m protocol.Message) { got <- m }})
	for i := 0; i < 5; i++ {
		m := <-got
		x, _, _ := m.Coordinates()
		assert.Equal(t, float64(i)/10, x)
	}
	last := <-got
	assert.False(t, last.Visible)
	assert.Len(t, b.Deliveries(), 6)
}

func TestConnectToMissingPeer(t *testing.T) {
	b := NewBroker()
	guest, _ := b.Open(context.Background(), "")
	errs := make(chan error, 1)
	guest.Subscribe(peer.EndpointHandlers{Error: func(err error) { errs <- err }})

	_, err := guest.Connect("nobody")
	require.NoError(t, err)
	assert.True(t, peer.IsKind(<-errs, peer.KindPeerUnavailable))
}

func TestCallMirrorsStream(t *testing.T) {
	b := NewBroker()
	host, _ := b.Open(context.Background(), "room1")
	guest, _ := b.Open(context.Background(), "")

	calls := make(chan peer.MediaCall, 1)
	guest.Subscribe(peer.EndpointHandlers{Call: func(c peer.MediaCall) { calls <- c }})

	video := media.NewTrack("v", media.KindVideo)
	_, err := host.Call(guest.ID(), media.NewStream("s1", video))
	require.NoError(t, err)

	call := <-calls
	streams := make(chan *media.Stream, 1)
	call.Subscribe(peer.CallHandlers{Stream: func(s *media.Stream) { streams <- s }})
	require.NoError(t, call.Answer(nil))

	s := <-streams
	assert.Equal(t, "s1", s.ID())
	video.End()
	select {
	case <-s.Ended():
	case <-time.After(wait):
		t.Fatal("mirror did not end")
	}
}

func TestDestroyReleasesIDAndClosesConns(t *testing.T) {
	b := NewBroker()
	host, _ := b.Open(context.Background(), "room1")
	guest, _ := b.Open(context.Background(), "")
	conn, _ := guest.Connect("room1")
	closed := make(chan struct{})
	conn.Subscribe(peer.ConnHandlers{Close: func() { close(closed) }})

	host.Destroy()
	assert.True(t, host.Destroyed())
	assert.Nil(t, b.Lookup("room1"))
	select {
	case <-closed:
	case <-time.After(wait):
		t.Fatal("guest conn not closed")
	}

	again, _ := b.Open(context.Background(), "room1")
	opened := make(chan struct{})
	again.Subscribe(peer.EndpointHandlers{Open: func(string) { close(opened) }})
	<-opened
}
