package session

import (
	"github.com/myooken/p2pShareDisplay/internal/peer"
	"github.com/myooken/p2pShareDisplay/internal/protocol"
)

// onGuestConnection takes an inbound connection into the single guest slot.
// A newer connection replaces the previous guest.
func (v *RoomView) onGuestConnection(ep peer.Endpoint, conn peer.DataConn) {
	if ep != v.endpoint || v.unmounted {
		conn.Close()
		return
	}
	v.log.Info("received connection", "peer", conn.Peer())

	if v.conn != nil {
		v.log.Warn("replacing guest connection", "previous", v.conn.Peer(), "peer", conn.Peer())
		v.releaseGuest()
	}

	v.conn = conn
	v.accepted = false
	v.connSub = conn.Subscribe(peer.ConnHandlers{
		Open: func() {
			v.post(func() { v.onHostConnOpen(conn) })
		},
		Data: func(msg protocol.Message) {
			v.post(func() { v.onHostData(conn, msg) })
		},
		Close: func() {
			v.post(func() { v.onHostConnClose(conn) })
		},
		Error: func(err error) {
			v.post(func() { v.log.Warn("guest connection error", "peer", conn.Peer(), "error", err) })
		},
	})

	if v.password == "" {
		if conn.IsOpen() {
			v.onHostConnOpen(conn)
		}
		return
	}

	v.setState(Hosting{Phase: HostVerifying, Guest: conn.Peer()})
	if v.opts.AuthTimeout > 0 {
		v.authTimer = v.after(v.opts.AuthTimeout, func() { v.onAuthTimeout(conn) })
	}
}

// onHostConnOpen admits the guest straight away when the room has no password.
func (v *RoomView) onHostConnOpen(conn peer.DataConn) {
	if conn != v.conn || v.password != "" || v.accepted {
		return
	}
	v.accept(conn)
}

func (v *RoomView) onHostData(conn peer.DataConn, msg protocol.Message) {
	if conn != v.conn {
		return
	}
	switch msg.Type {
	case protocol.TypeAuth:
		if v.accepted {
			return
		}
		if v.password == "" || msg.Password == v.password {
			v.log.Info("password verified, access granted", "peer", conn.Peer())
			v.accept(conn)
			return
		}
		v.log.Warn("invalid password attempt", "peer", conn.Peer())
		v.reject(conn)
	case protocol.TypeCursor:
		if !v.accepted {
			v.log.Debug("dropping cursor from unauthenticated guest", "peer", conn.Peer())
			return
		}
		v.cursor = applyCursor(v.cursor, msg)
		v.emit(CursorEvent{Cursor: v.cursor})
	default:
		v.log.Debug("ignoring message", "type", msg.Type)
	}
}

func (v *RoomView) accept(conn peer.DataConn) {
	stopTimer(v.authTimer)
	v.authTimer = nil
	if err := conn.Send(protocol.AuthSuccess()); err != nil {
		v.log.Error("send auth-success", "error", err)
		return
	}
	v.accepted = true
	v.setState(Hosting{Phase: HostConnected, Guest: conn.Peer()})
	if v.stream != nil {
		v.callGuest()
	}
}

// reject answers auth-fail and closes the connection once the message had
// time to flush.
func (v *RoomView) reject(conn peer.DataConn) {
	stopTimer(v.authTimer)
	v.authTimer = nil
	if err := conn.Send(protocol.AuthFail()); err != nil {
		v.log.Warn("send auth-fail", "error", err)
	}
	v.setState(Hosting{Phase: HostRejected, Guest: conn.Peer()})
	v.after(v.opts.FailCloseDelay, func() { conn.Close() })
}

func (v *RoomView) onAuthTimeout(conn peer.DataConn) {
	if conn != v.conn || v.accepted || v.unmounted {
		return
	}
	v.log.Warn("guest sent no credentials in time", "peer", conn.Peer(), "timeout", v.opts.AuthTimeout)
	v.reject(conn)
}

func (v *RoomView) onHostConnClose(conn peer.DataConn) {
	if conn != v.conn {
		return
	}
	v.log.Info("guest disconnected", "peer", conn.Peer())
	v.releaseGuest()
	if v.cursor.Visible {
		v.cursor.Visible = false
		v.emit(CursorEvent{Cursor: v.cursor})
	}
	v.setState(Hosting{Phase: HostWaiting})
}

// releaseGuest frees the guest slot, closing its connection and call.
func (v *RoomView) releaseGuest() {
	stopTimer(v.authTimer)
	v.authTimer = nil
	v.connSub.Close()
	v.connSub = nil
	if v.conn != nil {
		v.conn.Close()
		v.conn = nil
	}
	v.accepted = false
	v.closeCall()
}
