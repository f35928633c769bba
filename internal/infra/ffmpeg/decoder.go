package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

// Decoder reads raw RGB frames from an ffmpeg child process writing
// rgb24 rawvideo to its stdout.
type Decoder struct {
	ffmpegPath string
	threads    int
	logger     *zap.Logger
}

func NewDecoder(ffmpegPath string, threads int, logger *zap.Logger) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Decoder{ffmpegPath: ffmpegPath, threads: threads, logger: logger}
}

func (d *Decoder) Open(_ context.Context, path string, targetFPS *float64) (port.VideoStream, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat video: %w", err)
	}
	s := &stream{dec: d, path: path}
	if targetFPS != nil {
		s.fps = *targetFPS
	}
	return s, nil
}

type stream struct {
	dec   *Decoder
	path  string
	probe *entity.VideoProbe

	// position of the next ffmpeg run; the process is started lazily so a
	// seek before the first read costs nothing
	start float64
	fps   float64

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	frame  []byte
	ended  error
}

func (s *stream) Probe(_ context.Context) (entity.VideoProbe, error) {
	if s.probe != nil {
		return *s.probe, nil
	}
	raw, err := ffmpeggo.Probe(s.path)
	if err != nil {
		return entity.VideoProbe{}, fmt.Errorf("ffprobe: %w", err)
	}
	probe, err := parseProbe(raw)
	if err != nil {
		return entity.VideoProbe{}, err
	}
	s.probe = &probe
	return probe, nil
}

func (s *stream) Seek(_ context.Context, seconds float64, fps float64) error {
	if seconds < 0 {
		return fmt.Errorf("negative seek offset %v", seconds)
	}
	s.stop()
	s.ended = nil
	s.start = seconds
	if fps > 0 {
		s.fps = fps
	}
	return nil
}

func (s *stream) ReadFrame(ctx context.Context) (entity.Frame, error) {
	if s.ended != nil {
		return entity.Frame{}, s.ended
	}
	if s.cmd == nil {
		if err := s.run(ctx); err != nil {
			return entity.Frame{}, err
		}
	}

	if _, err := io.ReadFull(s.stdout, s.frame); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			// stderr is only safe to read once the process has been waited on
			s.stop()
			s.ended = fmt.Errorf("ffmpeg stream ended: %w%s", err, s.stderrTail())
			return entity.Frame{}, s.ended
		}
		return entity.Frame{}, fmt.Errorf("read frame: %w", err)
	}

	pix := make([]byte, len(s.frame))
	copy(pix, s.frame)
	return entity.Frame{
		Width:    s.probe.Width,
		Height:   s.probe.Height,
		Channels: 3,
		Pix:      pix,
	}, nil
}

func (s *stream) Close() error {
	s.stop()
	return nil
}

func (s *stream) run(ctx context.Context) error {
	probe, err := s.Probe(ctx)
	if err != nil {
		return err
	}

	args := buildArgs(s.path, s.start, s.fps, s.dec.threads)
	cmd := exec.CommandContext(ctx, s.dec.ffmpegPath, args...)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	s.dec.logger.Debug("ffmpeg started",
		zap.String("path", s.path),
		zap.Float64("start", s.start),
		zap.Float64("fps", s.fps),
	)

	s.cmd = cmd
	s.stdout = stdout
	s.frame = make([]byte, probe.Width*probe.Height*3)
	return nil
}

func (s *stream) stop() {
	if s.cmd == nil {
		return
	}
	s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	s.cmd = nil
	s.stdout = nil
}

func (s *stream) stderrTail() string {
	out := strings.TrimSpace(s.stderr.String())
	if out == "" {
		return ""
	}
	if len(out) > 512 {
		out = out[len(out)-512:]
	}
	return ", output: " + out
}

// buildArgs returns the ffmpeg arguments (without the binary) that decode
// path from start seconds, resampled to fps when fps > 0.
func buildArgs(path string, start, fps float64, threads int) []string {
	// frames keep the coded orientation so they match the probed size
	in := ffmpeggo.KwArgs{"noautorotate": ""}
	if start > 0 {
		in["ss"] = strconv.FormatFloat(start, 'f', -1, 64)
	}
	if threads > 0 {
		in["threads"] = strconv.Itoa(threads)
	}

	node := ffmpeggo.Input(path, in)
	if fps > 0 {
		node = node.Filter("fps", ffmpeggo.Args{strconv.FormatFloat(fps, 'f', -1, 64)})
	}
	node = node.Output("pipe:", ffmpeggo.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgb24",
	})

	return append([]string{"-nostdin", "-loglevel", "error"}, node.GetArgs()...)
}
