package media

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
)

// Renderer receives streams published by the guest side of a session.
type Renderer interface {
	Render(s *Stream)
}

// PlaybackStats describes the stream currently rendered.
type PlaybackStats struct {
	StreamID  string
	Playing   bool
	Packets   uint64
	Bytes     uint64
	StartedAt time.Time
	Recording string
}

// Player consumes remote video tracks, optionally recording them to IVF
// files. A stream counts as playing once its first packet arrives.
type Player struct {
	recordPath string
	log        *slog.Logger

	mu       sync.Mutex
	stats    PlaybackStats
	count    int
	onChange func(PlaybackStats)
}

// NewPlayer returns a player; recordPath may be empty.
func NewPlayer(recordPath string, log *slog.Logger) *Player {
	if log == nil {
		log = slog.Default()
	}
	return &Player{recordPath: recordPath, log: log}
}

// OnChange registers a callback fired when playback starts or stops.
func (p *Player) OnChange(fn func(PlaybackStats)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

func (p *Player) Stats() PlaybackStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Render switches playback to s. Tracks without a remote transport are ignored.
func (p *Player) Render(s *Stream) {
	p.mu.Lock()
	p.count++
	p.stats = PlaybackStats{StreamID: s.ID(), Recording: p.nextRecordingLocked()}
	stats := p.stats
	p.mu.Unlock()

	for _, t := range s.Tracks() {
		if t.Remote() == nil || t.Kind() != KindVideo {
			continue
		}
		go p.consume(s.ID(), t, stats.Recording)
	}
}

func (p *Player) nextRecordingLocked() string {
	if p.recordPath == "" {
		return ""
	}
	if p.count == 1 {
		return p.recordPath
	}
	ext := filepath.Ext(p.recordPath)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(p.recordPath, ext), p.count, ext)
}

func (p *Player) consume(streamID string, t *Track, recording string) {
	defer t.End()

	var w *ivfwriter.IVFWriter
	if recording != "" {
		var err error
		if w, err = ivfwriter.New(recording); err != nil {
			p.log.Error("open recording", "path", recording, "error", err)
		} else {
			defer w.Close()
		}
	}

	for {
		pkt, _, err := t.Remote().ReadRTP()
		if err != nil {
			p.update(streamID, func(s *PlaybackStats) { s.Playing = false })
			return
		}
		p.update(streamID, func(s *PlaybackStats) {
			if !s.Playing {
				s.Playing = true
				s.StartedAt = time.Now()
			}
			s.Packets++
			s.Bytes += uint64(len(pkt.Payload))
		})
		if w != nil {
			if err := w.WriteRTP(pkt); err != nil {
				p.log.Debug("record packet", "error", err)
			}
		}
	}
}

func (p *Player) update(streamID string, fn func(*PlaybackStats)) {
	p.mu.Lock()
	if p.stats.StreamID != streamID {
		p.mu.Unlock()
		return
	}
	was := p.stats.Playing
	fn(&p.stats)
	stats := p.stats
	notify := p.onChange
	p.mu.Unlock()

	if notify != nil && was != stats.Playing {
		notify(stats)
	}
}
