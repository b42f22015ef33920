package media

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

// ScreenSource captures the display with ffmpeg and encodes it to VP8.
type ScreenSource struct {
	FFmpeg  string
	Display string
	FPS     int
	Bitrate string
	Log     *slog.Logger
}

func (s ScreenSource) args() []string {
	fps := s.FPS
	if fps <= 0 {
		fps = 15
	}
	bitrate := s.Bitrate
	if bitrate == "" {
		bitrate = "1M"
	}

	var input []string
	switch runtime.GOOS {
	case "darwin":
		display := s.Display
		if display == "" {
			display = "1:none"
		}
		input = []string{"-f", "avfoundation", "-capture_cursor", "1", "-framerate", strconv.Itoa(fps), "-i", display}
	case "windows":
		display := s.Display
		if display == "" {
			display = "desktop"
		}
		input = []string{"-f", "gdigrab", "-framerate", strconv.Itoa(fps), "-i", display}
	default:
		display := s.Display
		if display == "" {
			display = ":0.0"
		}
		input = []string{"-f", "x11grab", "-framerate", strconv.Itoa(fps), "-i", display}
	}

	args := append([]string{"-hide_banner", "-loglevel", "error"}, input...)
	return append(args,
		"-c:v", "libvpx",
		"-deadline", "realtime",
		"-cpu-used", "8",
		"-b:v", bitrate,
		"-g", strconv.Itoa(fps*2),
		"-f", "ivf",
		"pipe:1",
	)
}

func (s ScreenSource) Capture(ctx context.Context) (*Stream, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	bin := s.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(runCtx, bin, s.args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", bin, err)
	}

	fail := func(err error) (*Stream, error) {
		cancel()
		_ = cmd.Wait()
		return nil, err
	}

	// The header only arrives once ffmpeg has access to the display.
	type opened struct {
		reader *ivfreader.IVFReader
		frame  time.Duration
		err    error
	}
	ready := make(chan opened, 1)
	go func() {
		r, f, err := openIVF(stdout)
		ready <- opened{r, f, err}
	}()

	var ivf opened
	select {
	case ivf = <-ready:
	case <-ctx.Done():
		return fail(ctx.Err())
	}
	if ivf.err != nil {
		return fail(fmt.Errorf("screen capture: %w", ivf.err))
	}

	id := newStreamID()
	local, err := newVideoTrack(id)
	if err != nil {
		return fail(err)
	}
	track := NewLocalTrack(local, KindVideo, cancel)

	go func() {
		defer track.End()
		err := pump(runCtx, ivf.reader, ivf.frame, local, log)
		cancel()
		werr := cmd.Wait()
		log.Info("screen capture ended", "error", err, "exit", werr)
	}()

	return NewStream(id, track), nil
}
