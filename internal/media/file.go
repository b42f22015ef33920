package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// FileSource shares a VP8 IVF file as if it were a screen capture.
type FileSource struct {
	Path string
	Loop bool
	Log  *slog.Logger
}

func (s FileSource) Capture(ctx context.Context) (*Stream, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	reader, frame, err := openIVF(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	id := newStreamID()
	local, err := newVideoTrack(id)
	if err != nil {
		f.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	track := NewLocalTrack(local, KindVideo, cancel)

	go func() {
		defer track.End()
		defer cancel()
		file := f
		for {
			err := pump(runCtx, reader, frame, local, log)
			file.Close()
			if !errors.Is(err, io.EOF) || !s.Loop {
				if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
					log.Warn("capture file stopped", "path", s.Path, "error", err)
				}
				return
			}
			if file, err = os.Open(s.Path); err != nil {
				log.Warn("reopen capture file", "path", s.Path, "error", err)
				return
			}
			if reader, frame, err = openIVF(file); err != nil {
				file.Close()
				log.Warn("reopen capture file", "path", s.Path, "error", err)
				return
			}
		}
	}()

	return NewStream(id, track), nil
}
