package ffmpeg

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

var ErrNoVideoStream = errors.New("no video stream")

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// parseProbe reads ffprobe's JSON (-show_format -show_streams) for the first
// video stream. When the container has no frame count it is derived from the
// duration.
func parseProbe(raw string) (entity.VideoProbe, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return entity.VideoProbe{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps := parseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(s.RFrameRate)
		}

		frames, err := strconv.Atoi(s.NbFrames)
		if err != nil || frames <= 0 {
			duration := parseSeconds(s.Duration)
			if duration <= 0 {
				duration = parseSeconds(out.Format.Duration)
			}
			frames = int(math.Round(duration * fps))
		}

		return entity.VideoProbe{
			FPS:        fps,
			FrameCount: frames,
			Width:      s.Width,
			Height:     s.Height,
		}, nil
	}
	return entity.VideoProbe{}, ErrNoVideoStream
}

// parseRate parses ffprobe rationals such as "30000/1001" or "25/1".
// Unknown rates ("0/0") yield 0.
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
