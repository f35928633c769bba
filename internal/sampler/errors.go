package sampler

import (
	"fmt"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

// ErrInvalidRequest is re-exported so callers only need this package to
// classify sampling failures.
var ErrInvalidRequest = entity.ErrInvalidRequest

// DecodeError reports a decoder failure while opening, probing, seeking or
// reading a video.
type DecodeError struct {
	Path  string
	Op    string
	Frame int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Op == "read" {
		return fmt.Sprintf("decode %s: %s frame %d: %v", e.Path, e.Op, e.Frame, e.Err)
	}
	return fmt.Sprintf("decode %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// InvalidVideoError reports a probe whose framerate, frame count or frame
// size cannot be sampled.
type InvalidVideoError struct {
	Path  string
	Probe entity.VideoProbe
}

func (e *InvalidVideoError) Error() string {
	return fmt.Sprintf("invalid video %s: fps=%v frames=%d size=%dx%d",
		e.Path, e.Probe.FPS, e.Probe.FrameCount, e.Probe.Width, e.Probe.Height)
}

// ClipTooLargeError reports a clip whose buffer would exceed the sampler's
// memory limit, or overflow int.
type ClipTooLargeError struct {
	Path  string
	Shape [4]int
	Limit int
}

func (e *ClipTooLargeError) Error() string {
	return fmt.Sprintf("clip %s too large: shape %v exceeds %d bytes", e.Path, e.Shape, e.Limit)
}
