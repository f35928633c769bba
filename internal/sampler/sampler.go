// Package sampler turns a video of any length and framerate into a
// fixed-shape RGB clip, zero-padding short videos.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

// DefaultMaxClipBytes caps a single clip buffer at 1 GiB.
const DefaultMaxClipBytes = 1 << 30

type Sampler struct {
	decoder  port.VideoDecoder
	logger   *zap.Logger
	intn     func(n int) int
	maxBytes int
}

type Option func(*Sampler)

// WithIntN replaces the source of random chunk offsets. fn must be safe for
// concurrent use if the sampler is shared between goroutines.
func WithIntN(fn func(n int) int) Option {
	return func(s *Sampler) {
		s.intn = fn
	}
}

// WithMaxClipBytes bounds the clip buffer a single call may allocate.
// Values <= 0 keep DefaultMaxClipBytes.
func WithMaxClipBytes(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func New(decoder port.VideoDecoder, logger *zap.Logger, opts ...Option) *Sampler {
	s := &Sampler{
		decoder:  decoder,
		logger:   logger,
		intn:     rand.IntN,
		maxBytes: DefaultMaxClipBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample decodes the window described by req into a new clip. Each call opens
// its own decoder stream and closes it before returning.
func (s *Sampler) Sample(ctx context.Context, req entity.SampleRequest) (*entity.Clip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stream, err := s.decoder.Open(ctx, req.Path, req.TargetFPS)
	if err != nil {
		return nil, &DecodeError{Path: req.Path, Op: "open", Err: err}
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Warn("close decoder stream", zap.String("path", req.Path), zap.Error(err))
		}
	}()

	probe, err := stream.Probe(ctx)
	if err != nil {
		return nil, &DecodeError{Path: req.Path, Op: "probe", Err: err}
	}
	if probe.FPS <= 0 || probe.FrameCount <= 0 || probe.Width <= 0 || probe.Height <= 0 {
		return nil, &InvalidVideoError{Path: req.Path, Probe: probe}
	}

	window, clamped := PlanWindow(probe, req, s.intn)
	log := s.logger.With(zap.String("path", req.Path))
	if clamped {
		log.Warn("random chunk covers whole video, starting at frame 0",
			zap.Int("corrected_length", window.CorrectedLength),
			zap.Int("num_frames", req.NumFrames),
		)
	}
	log.Debug("sample window",
		zap.Float64("native_fps", probe.FPS),
		zap.Int("native_frames", probe.FrameCount),
		zap.Float64("fps", window.EffectiveFPS),
		zap.Int("corrected_length", window.CorrectedLength),
		zap.Int("tensor_frames", window.TensorFrames),
		zap.Int("read_count", window.ReadCount),
		zap.Int("start_frame", window.StartFrame),
	)

	if size, ok := entity.ClipBytes(window.TensorFrames, probe.Height, probe.Width); !ok || size > s.maxBytes {
		return nil, &ClipTooLargeError{
			Path:  req.Path,
			Shape: [4]int{window.TensorFrames, probe.Height, probe.Width, 3},
			Limit: s.maxBytes,
		}
	}

	if window.Seek {
		if err := stream.Seek(ctx, window.StartSeconds(), window.EffectiveFPS); err != nil {
			return nil, &DecodeError{Path: req.Path, Op: "seek", Err: err}
		}
	}

	clip := entity.NewClip(window.TensorFrames, probe.Height, probe.Width, window.EffectiveFPS)
	for i := 0; i < window.ReadCount; i++ {
		frame, err := stream.ReadFrame(ctx)
		if err != nil {
			return nil, &DecodeError{Path: req.Path, Op: "read", Frame: i, Err: err}
		}
		if err := copyRGB(clip.Frame(i), frame, probe); err != nil {
			return nil, &DecodeError{Path: req.Path, Op: "read", Frame: i, Err: err}
		}
	}
	clip.Length = window.ReadCount

	return clip, nil
}

var errFrameShape = errors.New("frame shape mismatch")

// copyRGB writes the first three channels of frame into dst.
func copyRGB(dst []uint8, frame entity.Frame, probe entity.VideoProbe) error {
	if frame.Width != probe.Width || frame.Height != probe.Height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d",
			errFrameShape, frame.Width, frame.Height, probe.Width, probe.Height)
	}
	if frame.Channels < 3 {
		return fmt.Errorf("%w: %d channels", errFrameShape, frame.Channels)
	}
	pixels := frame.Width * frame.Height
	if len(frame.Pix) < pixels*frame.Channels {
		return fmt.Errorf("%w: %d bytes for %d pixels", errFrameShape, len(frame.Pix), pixels)
	}

	if frame.Channels == 3 {
		copy(dst, frame.Pix[:pixels*3])
		return nil
	}
	for p := 0; p < pixels; p++ {
		src := frame.Pix[p*frame.Channels : p*frame.Channels+3]
		copy(dst[p*3:p*3+3], src)
	}
	return nil
}
