package sampler

import (
	"math"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

// CorrectedLength is the video's duration in frames of the effective
// framerate: floor(frames * effectiveFPS / nativeFPS).
func CorrectedLength(probe entity.VideoProbe, effectiveFPS float64) int {
	if probe.FPS <= 0 {
		return 0
	}
	return int(math.Floor(float64(probe.FrameCount) * effectiveFPS / probe.FPS))
}

// EffectiveFPS returns the request's target framerate, or the native one
// when none was asked for.
func EffectiveFPS(probe entity.VideoProbe, req entity.SampleRequest) float64 {
	if req.TargetFPS != nil && *req.TargetFPS > 0 {
		return *req.TargetFPS
	}
	return probe.FPS
}

// PlanWindow decides which frames a call reads and how large the output
// tensor is. intn must return a value in [0, n). The second return value is
// true when a random chunk was asked for but the chunk spans the whole
// video, in which case the start is clamped to 0 and no seek is issued.
func PlanWindow(probe entity.VideoProbe, req entity.SampleRequest, intn func(n int) int) (entity.FrameWindow, bool) {
	fps := EffectiveFPS(probe, req)
	corrected := CorrectedLength(probe, fps)

	w := entity.FrameWindow{
		CorrectedLength: corrected,
		EffectiveFPS:    fps,
		TensorFrames:    req.NumFrames,
		ReadCount:       req.NumFrames,
	}

	switch {
	case req.NumFrames <= 0:
		w.TensorFrames = corrected
		w.ReadCount = corrected
	case corrected < req.NumFrames:
		// tensor keeps the requested shape, the tail stays zero
		w.ReadCount = corrected
	case req.RandomChunk:
		last := corrected - req.NumFrames - 1
		if last < 0 {
			return w, true
		}
		w.StartFrame = intn(last + 1)
		w.Seek = true
	}
	return w, false
}
