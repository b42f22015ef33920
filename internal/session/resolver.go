package session

import (
	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// resolve claims the room id, reusing a cached endpoint when one is live.
func (v *RoomView) resolve() {
	ep, reused, err := v.registry.Acquire(v.ctx, v.room)
	if err != nil {
		v.fail(err)
		return
	}
	if reused {
		v.log.Info("reusing signaling endpoint", "id", ep.ID())
	}

	v.endpoint = ep
	v.endpointSub = ep.Subscribe(peer.EndpointHandlers{
		Open: func(id string) {
			v.post(func() { v.onRoomOpen(ep, id) })
		},
		Connection: func(conn peer.DataConn) {
			v.post(func() { v.onGuestConnection(ep, conn) })
		},
		Call: func(call peer.MediaCall) {
			v.log.Warn("host ignores inbound call", "peer", call.Peer())
			call.Close()
		},
		Error: func(err error) {
			v.post(func() { v.onRoomError(ep, err) })
		},
	})
	if ep.IsOpen() {
		v.onRoomOpen(ep, ep.ID())
	}
}

func (v *RoomView) onRoomOpen(ep peer.Endpoint, id string) {
	if ep != v.endpoint || v.unmounted {
		return
	}
	if _, ok := v.state.(Hosting); ok {
		return
	}
	if id != v.room {
		v.fail(peer.Errorf(peer.KindInvalidID, "opened as %q instead of %q", id, v.room))
		return
	}
	v.log.Info("opened as host")
	if v.password != "" {
		v.log.Info("room is password protected")
	}
	v.setState(Hosting{Phase: HostWaiting})
}

// onRoomError falls back to the guest role when the id is already claimed.
// Any other error ends the session.
func (v *RoomView) onRoomError(ep peer.Endpoint, err error) {
	if ep != v.endpoint || v.unmounted {
		return
	}
	if peer.IsKind(err, peer.KindUnavailableID) {
		if _, unresolved := v.state.(Unresolved); unresolved {
			v.log.Info("room id taken, joining as guest")
			v.endpointSub.Close()
			v.endpointSub = nil
			v.endpoint = nil
			v.registry.Evict(v.room, ep)
			v.initializeGuest()
			return
		}
	}
	v.fail(err)
}
