package vidio

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNativeIndexDownsample(t *testing.T) {
	// 50 fps source read at 25 fps keeps every second frame
	got := make([]int, 5)
	for k := range got {
		got[k] = nativeIndex(0, k, 25, 50)
	}
	assert.Equal(t, []int{0, 2, 4, 6, 8}, got)
}

func TestNativeIndexUpsampleDuplicates(t *testing.T) {
	got := make([]int, 6)
	for k := range got {
		got[k] = nativeIndex(0, k, 30, 10)
	}
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, got)
}

func TestNativeIndexWithStartOffset(t *testing.T) {
	assert.Equal(t, 50, nativeIndex(2, 0, 25, 25))
	assert.Equal(t, 51, nativeIndex(2, 1, 25, 25))
	// native rate when no target is set
	assert.Equal(t, 7, nativeIndex(0, 7, 0, 29.97))
}

func TestNativeIndexNTSC(t *testing.T) {
	native := 30000.0 / 1001.0
	assert.Equal(t, 0, nativeIndex(0, 0, 24, native))
	assert.Equal(t, 29, nativeIndex(0, 24, 24, native))
}

// makeTestVideo renders 2 seconds of a 32x24 test pattern at 10 fps, one
// distinct frame per native index.
func makeTestVideo(t *testing.T) string {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
	path := filepath.Join(t.TempDir(), "testsrc.mkv")
	out, err := exec.Command("ffmpeg", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=duration=2:size=32x24:rate=10",
		"-c:v", "ffv1", "-y", path,
	).CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func openStream(t *testing.T, path string, fps *float64) *stream {
	t.Helper()
	vs, err := NewDecoder(zap.NewNop()).Open(context.Background(), path, fps)
	require.NoError(t, err)
	t.Cleanup(func() { vs.Close() })
	return vs.(*stream)
}

func readFrames(t *testing.T, s *stream, n int) []entity.Frame {
	t.Helper()
	frames := make([]entity.Frame, n)
	for i := range frames {
		f, err := s.ReadFrame(context.Background())
		require.NoError(t, err, "frame %d", i)
		frames[i] = f
	}
	return frames
}

func TestStreamReadsUntilEOF(t *testing.T) {
	s := openStream(t, makeTestVideo(t), nil)

	frames := readFrames(t, s, 20)
	assert.Equal(t, 32, frames[0].Width)
	assert.Equal(t, 24, frames[0].Height)
	assert.Equal(t, 3, frames[0].Channels)
	assert.NotEqual(t, frames[0].Pix, frames[1].Pix)

	_, err := s.ReadFrame(context.Background())
	assert.True(t, errors.Is(err, io.EOF), "got %v", err)
}

func TestStreamUpsampleRepeatsLastFrame(t *testing.T) {
	path := makeTestVideo(t)
	native := readFrames(t, openStream(t, path, nil), 2)

	fps := 30.0
	frames := readFrames(t, openStream(t, path, &fps), 6)
	for k := 0; k < 3; k++ {
		assert.Equal(t, native[0].Pix, frames[k].Pix, "output %d", k)
	}
	for k := 3; k < 6; k++ {
		assert.Equal(t, native[1].Pix, frames[k].Pix, "output %d", k)
	}
}

func TestStreamSeekBackwardsReopens(t *testing.T) {
	path := makeTestVideo(t)
	native := readFrames(t, openStream(t, path, nil), 20)

	s := openStream(t, path, nil)
	readFrames(t, s, 10)
	require.Equal(t, 10, s.next)
	before := s.video

	require.NoError(t, s.Seek(context.Background(), 0.2, 0))
	assert.NotSame(t, before, s.video)
	assert.Zero(t, s.next)

	got := readFrames(t, s, 2)
	assert.Equal(t, native[2].Pix, got[0].Pix)
	assert.Equal(t, native[3].Pix, got[1].Pix)
}

func TestStreamSeekForwardKeepsDecoding(t *testing.T) {
	path := makeTestVideo(t)
	native := readFrames(t, openStream(t, path, nil), 20)

	s := openStream(t, path, nil)
	readFrames(t, s, 10)
	before := s.video

	require.NoError(t, s.Seek(context.Background(), 1.5, 0))
	assert.Same(t, before, s.video)

	got := readFrames(t, s, 1)
	assert.Equal(t, native[15].Pix, got[0].Pix)

	assert.Error(t, s.Seek(context.Background(), -1, 0))
}
