package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/myooken/p2pShareDisplay/internal/config"
	"github.com/myooken/p2pShareDisplay/internal/media"
	"github.com/myooken/p2pShareDisplay/internal/peer"
)

// Event is published to the UI after every change a room view makes.
type Event interface {
	isEvent()
}

// StateEvent reports a session state transition.
type StateEvent struct {
	State State
}

// StreamEvent reports the stream shown in the view. Local is true for the
// host's own capture; a nil Stream clears the view.
type StreamEvent struct {
	Stream *media.Stream
	Local  bool
}

// CursorEvent carries the guest cursor as the host last saw it.
type CursorEvent struct {
	Cursor Cursor
}

// PromptEvent asks the UI to show or hide the password prompt.
type PromptEvent struct {
	Show bool
}

func (StateEvent) isEvent()  {}
func (StreamEvent) isEvent() {}
func (CursorEvent) isEvent() {}
func (PromptEvent) isEvent() {}

// Options configures a room view. Registry is required; zero durations
// fall back to the defaults in package config.
type Options struct {
	Room     string
	Password string
	Registry *Registry
	Renderer media.Renderer
	OnEvent  func(Event)
	Log      *slog.Logger

	// AuthTimeout bounds how long a host waits for a guest's auth message.
	// Zero disables the deadline.
	AuthTimeout    time.Duration
	FailCloseDelay time.Duration
	RetryDelay     time.Duration

	PointerMode PointerMode
	CursorColor string
}

// Snapshot is a copy of a room view's state, safe to read from any goroutine.
type Snapshot struct {
	State      State
	Endpoint   string
	Sharing    bool
	Remote     *media.Stream
	Cursor     Cursor
	ShowPrompt bool
}

// RoomView is one mounted view of a room. All of its state is owned by a
// single event loop goroutine; transport callbacks are posted onto it.
type RoomView struct {
	opts     Options
	room     string
	registry *Registry
	log      *slog.Logger
	ctx      context.Context

	loop     chan func()
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	snap Snapshot

	// Owned by the loop goroutine.
	state       State
	password    string
	unmounted   bool
	endpoint    peer.Endpoint
	endpointSub *peer.Subscription
	conn        peer.DataConn
	connSub     *peer.Subscription
	accepted    bool
	authTimer   *time.Timer
	retryTimer  *time.Timer
	stream      *media.Stream
	call        peer.MediaCall
	callSub     *peer.Subscription
	remote      *media.Stream
	cursor      Cursor
	tracker     CursorTracker
	prompt      bool
}

// Mount starts a room view and begins resolving its role.
func Mount(ctx context.Context, opts Options) (*RoomView, error) {
	if opts.Room == "" {
		return nil, ErrEmptyRoom
	}
	if opts.Registry == nil {
		return nil, NewError("mount room view", errors.New("registry is required"))
	}
	if opts.FailCloseDelay == 0 {
		opts.FailCloseDelay = config.DefaultFailCloseDelay
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = config.DefaultRetryDelay
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	v := &RoomView{
		opts:     opts,
		room:     opts.Room,
		registry: opts.Registry,
		log:      log.With("component", "room", "room", opts.Room),
		ctx:      context.WithoutCancel(ctx),
		loop:     make(chan func(), 256),
		done:     make(chan struct{}),
		state:    Unresolved{},
		password: opts.Password,
		cursor:   Cursor{Color: DefaultCursorColor},
		tracker:  CursorTracker{Mode: opts.PointerMode, Color: opts.CursorColor},
	}
	v.snap = Snapshot{State: v.state, Cursor: v.cursor}

	go v.run()
	v.post(func() {
		v.emit(StateEvent{State: v.state})
		v.resolve()
	})
	return v, nil
}

// Room returns the room id the view was mounted with.
func (v *RoomView) Room() string {
	return v.room
}

func (v *RoomView) run() {
	for {
		select {
		case fn := <-v.loop:
			fn()
			v.publish()
		case <-v.done:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the view is unmounted.
func (v *RoomView) post(fn func()) bool {
	select {
	case <-v.done:
		return false
	default:
	}
	select {
	case v.loop <- fn:
		return true
	case <-v.done:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (v *RoomView) do(fn func() error) error {
	result := make(chan error, 1)
	if !v.post(func() { result <- fn() }) {
		return ErrUnmounted
	}
	select {
	case err := <-result:
		return err
	case <-v.done:
		return ErrUnmounted
	}
}

// after runs fn on the loop once d has elapsed.
func (v *RoomView) after(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { v.post(fn) })
}

func (v *RoomView) publish() {
	v.mu.Lock()
	v.snap = Snapshot{
		State:      v.state,
		Sharing:    v.stream != nil,
		Remote:     v.remote,
		Cursor:     v.cursor,
		ShowPrompt: v.prompt,
	}
	if v.endpoint != nil {
		v.snap.Endpoint = v.endpoint.ID()
	}
	v.mu.Unlock()
}

// Snapshot returns the state as of the last processed event.
func (v *RoomView) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

func (v *RoomView) emit(ev Event) {
	if v.opts.OnEvent != nil {
		v.opts.OnEvent(ev)
	}
}

func (v *RoomView) setState(s State) {
	v.state = s
	v.log.Info(Display(s), "role", s.Role().String())
	v.emit(StateEvent{State: s})
}

func (v *RoomView) setPrompt(show bool) {
	if v.prompt == show {
		return
	}
	v.prompt = show
	v.emit(PromptEvent{Show: show})
}

func (v *RoomView) fail(err error) {
	kind := peer.KindOf(err)
	v.log.Error("session error", "kind", string(kind), "error", err)
	v.setState(Failed{Kind: kind, Err: err})
}

// Unmount stops local media, disposes every subscription and hands the
// endpoint back to the registry for deferred destruction.
func (v *RoomView) Unmount() {
	done := make(chan struct{})
	if v.post(func() {
		v.teardown()
		close(done)
	}) {
		<-done
	}
	v.stopOnce.Do(func() { close(v.done) })
}

func (v *RoomView) teardown() {
	if v.unmounted {
		return
	}
	v.unmounted = true
	stopTimer(v.authTimer)
	stopTimer(v.retryTimer)

	if v.stream != nil {
		v.stream.Stop()
		v.stream = nil
	}
	v.closeCall()
	v.connSub.Close()
	v.endpointSub.Close()
	if v.endpoint != nil {
		v.registry.ScheduleDestroy(v.room, v.endpoint)
	}
	v.log.Debug("room view unmounted")
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
