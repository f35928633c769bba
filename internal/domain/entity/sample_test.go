package entity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleRequest(t *testing.T) {
	fps := 12.5
	req, err := NewSampleRequest("in.mp4", 16, &fps, true)
	require.NoError(t, err)
	assert.Equal(t, "in.mp4", req.Path)
	assert.Equal(t, 16, req.NumFrames)
	assert.True(t, req.RandomChunk)
	require.NotNil(t, req.TargetFPS)
	assert.Equal(t, 12.5, *req.TargetFPS)

	// the request keeps its own copy of the framerate
	fps = 99
	assert.Equal(t, 12.5, *req.TargetFPS)
}

func TestNewSampleRequestRejectsBadInput(t *testing.T) {
	zero, nan := 0.0, math.NaN()
	tests := []struct {
		name      string
		path      string
		numFrames int
		fps       *float64
	}{
		{"empty path", "", 1, nil},
		{"negative frames", "in.mp4", -1, nil},
		{"zero fps", "in.mp4", 1, &zero},
		{"nan fps", "in.mp4", 1, &nan},
		{"frames above column range", "in.mp4", MaxNumFrames + 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSampleRequest(tt.path, tt.numFrames, tt.fps, false)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestClipBytes(t *testing.T) {
	size, ok := ClipBytes(30, 224, 224)
	assert.True(t, ok)
	assert.Equal(t, 30*224*224*3, size)

	size, ok = ClipBytes(0, 1080, 1920)
	assert.True(t, ok)
	assert.Zero(t, size)

	_, ok = ClipBytes(math.MaxInt/2, 1080, 1920)
	assert.False(t, ok)

	_, ok = ClipBytes(-1, 2, 2)
	assert.False(t, ok)
}

func TestFPSOrNative(t *testing.T) {
	assert.Nil(t, FPSOrNative(-1))
	assert.Nil(t, FPSOrNative(0))
	got := FPSOrNative(24)
	require.NotNil(t, got)
	assert.Equal(t, 24.0, *got)
}

func TestClipFrameAliasesBuffer(t *testing.T) {
	c := NewClip(3, 2, 2, 25)
	assert.Equal(t, [4]int{3, 2, 2, 3}, c.Shape())
	assert.Len(t, c.Frames, 36)

	c.Frame(1)[0] = 7
	assert.Equal(t, uint8(7), c.Frames[12])

	c.Length = 2
	assert.True(t, c.Padded())
	assert.Equal(t, 1, c.PaddingFrames())
}

func TestSampleJobLifecycle(t *testing.T) {
	job := NewSampleJob(SampleJobMessage{UserID: "u", VideoKey: "u/a.mp4", NumFrames: 8}, 2)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.CanRetry())

	job.MarkProcessing()
	job.MarkProcessing()
	assert.Equal(t, 2, job.Attempt)
	assert.False(t, job.CanRetry())

	clip := NewClip(8, 4, 4, 25)
	clip.Length = 5
	job.MarkCompleted("u/clip.npz", clip)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 5, job.ValidLength)
	assert.Equal(t, 8, job.TensorFrames)
	assert.NotNil(t, job.CompletedAt)
}
