package entity

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRequest is returned when a SampleRequest fails validation.
var ErrInvalidRequest = errors.New("invalid sample request")

// MaxNumFrames bounds SampleRequest.NumFrames so it fits the job table's
// 32-bit column.
const MaxNumFrames = math.MaxInt32

// SampleRequest describes one sampling call. Build it with NewSampleRequest.
type SampleRequest struct {
	Path        string
	NumFrames   int
	TargetFPS   *float64
	RandomChunk bool
}

// NewSampleRequest builds and validates a request. A nil targetFPS keeps the
// native framerate; numFrames == 0 asks for the whole video.
func NewSampleRequest(path string, numFrames int, targetFPS *float64, randomChunk bool) (SampleRequest, error) {
	if targetFPS != nil {
		fps := *targetFPS
		targetFPS = &fps
	}
	req := SampleRequest{
		Path:        path,
		NumFrames:   numFrames,
		TargetFPS:   targetFPS,
		RandomChunk: randomChunk,
	}
	if err := req.Validate(); err != nil {
		return SampleRequest{}, err
	}
	return req, nil
}

func (r SampleRequest) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidRequest)
	}
	if r.NumFrames < 0 {
		return fmt.Errorf("%w: negative frame count %d", ErrInvalidRequest, r.NumFrames)
	}
	if r.NumFrames > MaxNumFrames {
		return fmt.Errorf("%w: frame count %d above %d", ErrInvalidRequest, r.NumFrames, MaxNumFrames)
	}
	if r.TargetFPS != nil {
		fps := *r.TargetFPS
		if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
			return fmt.Errorf("%w: target fps %v", ErrInvalidRequest, fps)
		}
	}
	return nil
}

// FPSOrNative maps the "<= 0 means native" convention used by queue
// messages and CLI flags onto an optional framerate.
func FPSOrNative(fps float64) *float64 {
	if fps <= 0 {
		return nil
	}
	return &fps
}

// VideoProbe is what the decoder reports about a source once per call.
type VideoProbe struct {
	FPS        float64
	FrameCount int
	Width      int
	Height     int
}

// FrameWindow is the portion of the video a sample call reads.
type FrameWindow struct {
	CorrectedLength int
	EffectiveFPS    float64
	TensorFrames    int
	ReadCount       int
	StartFrame      int
	Seek            bool
}

// StartSeconds is the playback offset of the first frame in the window.
func (w FrameWindow) StartSeconds() float64 {
	if w.EffectiveFPS <= 0 {
		return 0
	}
	return float64(w.StartFrame) / w.EffectiveFPS
}

// Frame is a single decoded picture. Pix is row-major with Channels bytes per
// pixel; the first three channels are R, G and B.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Clip is a fixed-shape [TensorFrames, Height, Width, 3] RGB buffer. Frames
// at index Length and beyond are zero padding.
type Clip struct {
	Frames       []uint8
	TensorFrames int
	Height       int
	Width        int
	Length       int
	FPS          float64
}

// ClipBytes is the size of a [tensorFrames, height, width, 3] buffer. ok is
// false for negative dimensions or when the size overflows int.
func ClipBytes(tensorFrames, height, width int) (size int, ok bool) {
	if tensorFrames < 0 || height < 0 || width < 0 {
		return 0, false
	}
	size = 3
	for _, d := range []int{width, height, tensorFrames} {
		if d != 0 && size > math.MaxInt/d {
			return 0, false
		}
		size *= d
	}
	return size, true
}

// NewClip allocates a zeroed clip buffer. Callers bound the size with
// ClipBytes first.
func NewClip(tensorFrames, height, width int, fps float64) *Clip {
	return &Clip{
		Frames:       make([]uint8, tensorFrames*height*width*3),
		TensorFrames: tensorFrames,
		Height:       height,
		Width:        width,
		FPS:          fps,
	}
}

func (c *Clip) Shape() [4]int {
	return [4]int{c.TensorFrames, c.Height, c.Width, 3}
}

// FrameSize is the number of bytes in one RGB frame.
func (c *Clip) FrameSize() int {
	return c.Height * c.Width * 3
}

// Frame returns the slice backing frame i. It aliases the clip buffer.
func (c *Clip) Frame(i int) []uint8 {
	size := c.FrameSize()
	return c.Frames[i*size : (i+1)*size]
}

// PaddingFrames is the number of trailing zero frames.
func (c *Clip) PaddingFrames() int {
	return c.TensorFrames - c.Length
}

func (c *Clip) Padded() bool {
	return c.Length < c.TensorFrames
}
