package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

var (
	ErrUnsupportedCodec = errors.New("unsupported codec")
	ErrNoFrames         = errors.New("source produced no frames")
)

const defaultFrameDuration = 33 * time.Millisecond

// Source starts a capture and returns the live stream. Capture fails
// without side effects when the source cannot be started.
type Source interface {
	Capture(ctx context.Context) (*Stream, error)
}

func newStreamID() string {
	return "screen-" + uuid.NewString()[:8]
}

func newVideoTrack(streamID string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		streamID,
	)
}

// openIVF parses the IVF header and checks the codec.
func openIVF(r io.Reader) (*ivfreader.IVFReader, time.Duration, error) {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, ErrNoFrames
		}
		return nil, 0, fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedCodec, header.FourCC)
	}

	frame := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		frame = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	return reader, frame, nil
}

// pump writes IVF frames to track at the source frame rate until the
// reader runs dry or ctx is cancelled.
func pump(ctx context.Context, reader *ivfreader.IVFReader, frame time.Duration, track *webrtc.TrackLocalStaticSample, log *slog.Logger) error {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		data, _, err := reader.ParseNextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return io.EOF
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if err := track.WriteSample(pionmedia.Sample{Data: data, Duration: frame}); err != nil {
			log.Debug("write sample", "error", err)
		}
	}
}
