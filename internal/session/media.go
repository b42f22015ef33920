package session

import (
	"context"

	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// StartShare captures from src and shares the stream with the accepted
// guest, now or as soon as one is accepted. A capture error leaves the view
// as it was.
func (v *RoomView) StartShare(ctx context.Context, src media.Source) error {
	err := v.do(func() error {
		if v.state.Role() != RoleHost {
			return ErrNotHost
		}
		if v.stream != nil {
			return ErrAlreadyShared
		}
		return nil
	})
	if err != nil {
		return err
	}

	stream, err := src.Capture(ctx)
	if err != nil {
		v.log.Error("error sharing screen", "error", err)
		return WrapError("start share", err, v.room)
	}

	err = v.do(func() error {
		if v.unmounted {
			return ErrUnmounted
		}
		if v.stream != nil {
			return ErrAlreadyShared
		}
		v.stream = stream
		v.log.Info("sharing started", "stream", stream.ID())
		v.emit(StreamEvent{Stream: stream, Local: true})

		go func() {
			<-stream.Ended()
			v.post(func() { v.onCaptureEnded(stream) })
		}()

		if v.conn != nil && v.accepted {
			v.callGuest()
		}
		return nil
	})
	if err != nil {
		// The view went away or another share won while capturing.
		stream.Stop()
	}
	return err
}

// StopShare stops the local capture and hangs up the guest's call.
func (v *RoomView) StopShare() error {
	return v.do(func() error {
		v.stopShare()
		return nil
	})
}

func (v *RoomView) stopShare() {
	if v.stream == nil {
		return
	}
	s := v.stream
	v.stream = nil
	s.Stop()
	v.closeCall()
	v.log.Info("sharing stopped", "stream", s.ID())
	v.emit(StreamEvent{Local: true})
}

// onCaptureEnded handles a capture that ended on its own.
func (v *RoomView) onCaptureEnded(s *media.Stream) {
	if s != v.stream {
		return
	}
	v.log.Info("capture track ended")
	v.stopShare()
}

// callGuest places a call carrying the current stream. Failures are logged
// and never retried.
func (v *RoomView) callGuest() {
	if v.endpoint == nil || v.conn == nil || v.stream == nil {
		return
	}
	v.closeCall()

	guest := v.conn.Peer()
	v.log.Info("calling guest", "peer", guest)
	call, err := v.endpoint.Call(guest, v.stream)
	if err != nil {
		v.log.Error("call guest", "peer", guest, "error", err)
		return
	}
	v.call = call
	v.callSub = call.Subscribe(peer.CallHandlers{
		Error: func(err error) {
			v.post(func() { v.log.Error("call error", "peer", guest, "error", err) })
		},
		Close: func() {
			v.post(func() {
				if v.call == call {
					v.callSub.Close()
					v.call, v.callSub = nil, nil
				}
			})
		},
	})
}

// onIncomingCall answers a host call and publishes its stream.
func (v *RoomView) onIncomingCall(ep peer.Endpoint, call peer.MediaCall) {
	if ep != v.endpoint || v.unmounted {
		call.Close()
		return
	}
	v.log.Info("received call", "peer", call.Peer())
	v.closeCall()

	v.call = call
	v.callSub = call.Subscribe(peer.CallHandlers{
		Stream: func(s *media.Stream) {
			v.post(func() { v.onRemoteStream(call, s) })
		},
		Error: func(err error) {
			v.post(func() { v.log.Error("call error", "error", err) })
		},
		Close: func() {
			v.post(func() {
				if v.call == call {
					v.callSub.Close()
					v.call, v.callSub = nil, nil
					v.clearRemote()
				}
			})
		},
	})
	if err := call.Answer(nil); err != nil {
		v.log.Error("answer call", "error", err)
	}
}

func (v *RoomView) onRemoteStream(call peer.MediaCall, s *media.Stream) {
	if call != v.call || v.remote == s {
		return
	}
	v.log.Info("received stream", "stream", s.ID())
	v.remote = s
	if v.opts.Renderer != nil {
		v.opts.Renderer.Render(s)
	}
	v.emit(StreamEvent{Stream: s})
}

func (v *RoomView) clearRemote() {
	if v.remote == nil {
		return
	}
	v.remote = nil
	v.emit(StreamEvent{})
}

func (v *RoomView) closeCall() {
	if v.call == nil {
		return
	}
	v.callSub.Close()
	v.call.Close()
	v.call, v.callSub = nil, nil
}
