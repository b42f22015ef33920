package session

import (
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// initializeGuest opens an anonymous endpoint and dials the room once it is open.
func (v *RoomView) initializeGuest() {
	if v.unmounted {
		return
	}
	ep, err := v.registry.OpenAnonymous(v.ctx)
	if err != nil {
		v.fail(err)
		return
	}
	v.endpoint = ep
	v.setState(GuestPending{Auth: AuthNotSent})

	v.endpointSub = ep.Subscribe(peer.EndpointHandlers{
		Open: func(string) {
			v.post(func() { v.onGuestOpen(ep) })
		},
		Connection: func(conn peer.DataConn) {
			v.log.Warn("guest ignores inbound connection", "peer", conn.Peer())
			conn.Close()
		},
		Call: func(call peer.MediaCall) {
			v.post(func() { v.onIncomingCall(ep, call) })
		},
		Error: func(err error) {
			v.post(func() {
				if ep == v.endpoint && !v.unmounted {
					v.fail(err)
				}
			})
		},
	})
	if ep.IsOpen() {
		v.onGuestOpen(ep)
	}
}

func (v *RoomView) onGuestOpen(ep peer.Endpoint) {
	if ep != v.endpoint || v.conn != nil || v.unmounted {
		return
	}
	v.log.Info("opened as guest", "id", ep.ID())

	conn, err := ep.Connect(v.room)
	if err != nil {
		v.fail(err)
		return
	}
	v.conn = conn
	v.connSub = conn.Subscribe(peer.ConnHandlers{
		Open: func() {
			v.post(func() { v.onGuestConnOpen(conn) })
		},
		Data: func(msg protocol.Message) {
			v.post(func() { v.onGuestData(conn, msg) })
		},
		Close: func() {
			v.post(func() { v.onGuestConnClose(conn) })
		},
		Error: func(err error) {
			v.post(func() { v.onGuestConnError(conn, err) })
		},
	})
	if conn.IsOpen() {
		v.onGuestConnOpen(conn)
	}
}

// onGuestConnOpen starts the handshake.
func (v *RoomView) onGuestConnOpen(conn peer.DataConn) {
	if conn != v.conn {
		return
	}
	st, ok := v.state.(GuestPending)
	if !ok || st.Auth != AuthNotSent {
		return
	}
	v.log.Info("connected to host, sending handshake")
	if err := conn.Send(protocol.Auth(v.password)); err != nil {
		v.onGuestConnError(conn, err)
		return
	}
	v.setState(GuestPending{Auth: AuthSent})
}

func (v *RoomView) onGuestData(conn peer.DataConn, msg protocol.Message) {
	if conn != v.conn {
		return
	}
	switch msg.Type {
	case protocol.TypeAuthSuccess:
		v.log.Info("authentication successful")
		v.setPrompt(false)
		v.setState(GuestAccepted{Host: conn.Peer()})
	case protocol.TypeAuthFail:
		v.log.Error("authentication failed")
		v.setState(GuestRejected{})
		v.setPrompt(true)
		v.after(v.opts.FailCloseDelay, func() { conn.Close() })
	default:
		v.log.Debug("ignoring message", "type", msg.Type)
	}
}

func (v *RoomView) onGuestConnClose(conn peer.DataConn) {
	if conn != v.conn {
		return
	}
	v.connSub.Close()
	v.connSub = nil
	v.conn = nil
	if _, ok := v.state.(GuestAccepted); ok {
		v.setState(GuestDisconnected{})
	}
}

func (v *RoomView) onGuestConnError(conn peer.DataConn, err error) {
	if conn != v.conn {
		return
	}
	v.log.Error("connection error", "error", err)
	v.setState(GuestDisconnected{Err: err})
}

// Retry re-dials the room with a new password after a rejection. The
// current guest endpoint is destroyed and a fresh one opened after the
// retry delay.
func (v *RoomView) Retry(password string) error {
	return v.do(func() error {
		if v.state.Role() != RoleGuest {
			return ErrNotGuest
		}
		v.password = password
		v.setPrompt(false)
		v.dropGuestEndpoint()
		v.setState(GuestPending{Auth: AuthNotSent})

		stopTimer(v.retryTimer)
		v.retryTimer = v.after(v.opts.RetryDelay, v.initializeGuest)
		return nil
	})
}

func (v *RoomView) dropGuestEndpoint() {
	v.connSub.Close()
	v.connSub = nil
	if v.conn != nil {
		v.conn.Close()
		v.conn = nil
	}
	v.closeCall()
	v.clearRemote()
	v.endpointSub.Close()
	v.endpointSub = nil
	if v.endpoint != nil {
		v.endpoint.Destroy()
		v.endpoint = nil
	}
}

// Pointer feeds a guest pointer event through the cursor tracker and sends
// the resulting message once the guest is accepted.
func (v *RoomView) Pointer(ev PointerEvent) {
	v.post(func() {
		msg, ok := v.tracker.Apply(ev)
		if !ok {
			return
		}
		if _, accepted := v.state.(GuestAccepted); !accepted || v.conn == nil {
			return
		}
		if err := v.conn.Send(msg); err != nil {
			v.log.Debug("send cursor", "error", err)
		}
	})
}

// SetPointerMode switches between always and click cursor sharing.
func (v *RoomView) SetPointerMode(m PointerMode) {
	v.post(func() { v.tracker.Mode = m })
}

// SetCursorColor changes the colour sent with cursor messages.
func (v *RoomView) SetCursorColor(color string) {
	v.post(func() { v.tracker.Color = color })
}
