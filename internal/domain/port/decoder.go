package port

import (
	"context"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

// VideoDecoder opens a fresh stream per call. targetFPS is nil to decode at
// the native framerate.
type VideoDecoder interface {
	Open(ctx context.Context, path string, targetFPS *float64) (VideoStream, error)
}

// VideoStream is a stateful, sequential frame reader. It is not safe for
// concurrent use.
type VideoStream interface {
	Probe(ctx context.Context) (entity.VideoProbe, error)
	Seek(ctx context.Context, seconds float64, fps float64) error
	ReadFrame(ctx context.Context) (entity.Frame, error)
	Close() error
}
