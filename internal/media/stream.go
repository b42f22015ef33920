package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Kind is the media type of a track.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// Track is one media track, either produced locally by a capture source or
// received from a remote peer. A track ends exactly once.
type Track struct {
	id     string
	kind   Kind
	local  webrtc.TrackLocal
	remote *webrtc.TrackRemote

	ended   chan struct{}
	endOnce sync.Once
	stop    func()
}

// NewTrack returns a track without a transport binding.
func NewTrack(id string, kind Kind) *Track {
	return &Track{id: id, kind: kind, ended: make(chan struct{})}
}

// NewLocalTrack wraps a sendable track. stop releases the producer and may be nil.
func NewLocalTrack(local webrtc.TrackLocal, kind Kind, stop func()) *Track {
	t := NewTrack(local.ID(), kind)
	t.local = local
	t.stop = stop
	return t
}

// NewRemoteTrack wraps a received track.
func NewRemoteTrack(remote *webrtc.TrackRemote) *Track {
	kind := KindVideo
	if remote.Kind() == webrtc.RTPCodecTypeAudio {
		kind = KindAudio
	}
	t := NewTrack(remote.ID(), kind)
	t.remote = remote
	return t
}

func (t *Track) ID() string                  { return t.id }
func (t *Track) Kind() Kind                  { return t.kind }
func (t *Track) Local() webrtc.TrackLocal    { return t.local }
func (t *Track) Remote() *webrtc.TrackRemote { return t.remote }

// Ended is closed once the track has ended.
func (t *Track) Ended() <-chan struct{} {
	return t.ended
}

func (t *Track) IsEnded() bool {
	select {
	case <-t.ended:
		return true
	default:
		return false
	}
}

// End marks the track ended without touching its producer. Producers call
// it when they run dry.
func (t *Track) End() {
	t.endOnce.Do(func() { close(t.ended) })
}

// Stop releases the producer and ends the track.
func (t *Track) Stop() {
	if t.stop != nil && !t.IsEnded() {
		t.stop()
	}
	t.End()
}

// Stream groups the tracks shared in one call.
type Stream struct {
	id string

	mu     sync.Mutex
	tracks []*Track
}

func NewStream(id string, tracks ...*Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string {
	return s.id
}

// AddTrack appends a track, used when remote tracks arrive one by one.
func (s *Stream) AddTrack(t *Track) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *Stream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Track(nil), s.tracks...)
}

// Video returns the first video track, or nil.
func (s *Stream) Video() *Track {
	for _, t := range s.Tracks() {
		if t.Kind() == KindVideo {
			return t
		}
	}
	return nil
}

// Ended is closed when the stream's video track ends. A stream without
// video ends with its first track; an empty stream is already ended.
func (s *Stream) Ended() <-chan struct{} {
	if v := s.Video(); v != nil {
		return v.Ended()
	}
	if tracks := s.Tracks(); len(tracks) > 0 {
		return tracks[0].Ended()
	}
	done := make(chan struct{})
	close(done)
	return done
}

// Active reports whether any track is still live.
func (s *Stream) Active() bool {
	for _, t := range s.Tracks() {
		if !t.IsEnded() {
			return true
		}
	}
	return false
}

// Stop stops every track.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
