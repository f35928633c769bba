// Package vidio decodes videos through github.com/AlexEidt/Vidio and
// converts framerates by duplicating or skipping native frames.
package vidio

import (
	"context"
	"fmt"
	"io"
	"math"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"go.uber.org/zap"
)

type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{logger: logger}
}

func (d *Decoder) Open(_ context.Context, path string, targetFPS *float64) (port.VideoStream, error) {
	v, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	s := &stream{path: path, video: v, logger: d.logger}
	if targetFPS != nil {
		s.fps = *targetFPS
	}
	return s, nil
}

type stream struct {
	path   string
	video  *vidio.Video
	logger *zap.Logger

	fps   float64
	start float64
	out   int

	// next is the native index Read() will produce; last holds the most
	// recently decoded native frame
	next int
	last []byte
}

func (s *stream) Probe(_ context.Context) (entity.VideoProbe, error) {
	return entity.VideoProbe{
		FPS:        s.video.FPS(),
		FrameCount: s.video.Frames(),
		Width:      s.video.Width(),
		Height:     s.video.Height(),
	}, nil
}

func (s *stream) Seek(_ context.Context, seconds float64, fps float64) error {
	if seconds < 0 {
		return fmt.Errorf("negative seek offset %v", seconds)
	}
	if fps > 0 {
		s.fps = fps
	}
	s.start = seconds
	s.out = 0

	// Vidio only reads forward, so seeking backwards reopens the file.
	if nativeIndex(seconds, 0, s.fps, s.video.FPS()) < s.next-1 {
		v, err := vidio.NewVideo(s.path)
		if err != nil {
			return fmt.Errorf("reopen video: %w", err)
		}
		s.video.Close()
		s.video = v
		s.next = 0
		s.last = nil
	}
	return nil
}

func (s *stream) ReadFrame(_ context.Context) (entity.Frame, error) {
	native := s.video.FPS()
	want := nativeIndex(s.start, s.out, s.fps, native)

	for s.next <= want {
		if !s.video.Read() {
			return entity.Frame{}, fmt.Errorf("native frame %d: %w", s.next, io.EOF)
		}
		buf := s.video.FrameBuffer()
		if cap(s.last) < len(buf) {
			s.last = make([]byte, len(buf))
		}
		s.last = s.last[:len(buf)]
		copy(s.last, buf)
		s.next++
	}
	if s.last == nil {
		return entity.Frame{}, fmt.Errorf("no frame decoded at %d: %w", want, io.EOF)
	}
	s.out++

	w, h := s.video.Width(), s.video.Height()
	pix := make([]byte, len(s.last))
	copy(pix, s.last)
	return entity.Frame{
		Width:    w,
		Height:   h,
		Channels: len(pix) / (w * h),
		Pix:      pix,
	}, nil
}

func (s *stream) Close() error {
	s.video.Close()
	return nil
}

// nativeIndex maps output frame k of a stream starting at start seconds and
// running at fps onto the native frame shown at that instant. fps <= 0 means
// no conversion.
func nativeIndex(start float64, k int, fps, native float64) int {
	if fps <= 0 {
		fps = native
	}
	t := start + float64(k)/fps
	return int(math.Floor(t*native + 1e-6))
}
