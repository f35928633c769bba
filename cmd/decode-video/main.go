// Command decode-video samples a clip from a local video file and reports
// what was loaded. It is the manual counterpart of the worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/npy"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/vidio"
	"github.com/fiapx/fiapx-sampling-service/internal/sampler"
	"github.com/fiapx/fiapx-sampling-service/pkg/logger"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	app := &cli.Command{
		Name:  "decode-video",
		Usage: "Sample a fixed-length RGB clip from a video file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input_file",
				Aliases:  []string{"i"},
				Usage:    "Video file to sample",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output_file",
				Aliases: []string{"o"},
				Usage:   "Optional .npy or .npz destination",
			},
			&cli.IntFlag{
				Name:  "num_frames",
				Usage: "Frames to load, 0 loads the whole video",
				Value: 30,
			},
			&cli.Float64Flag{
				Name:  "fps",
				Usage: "Target framerate, <= 0 keeps the native rate",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "random_chunks",
				Usage: "Start the clip at a random frame",
			},
			&cli.StringFlag{
				Name:  "decoder",
				Usage: "Decoder backend: ffmpeg or vidio",
				Value: "ffmpeg",
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: "ffmpeg binary",
				Value: "ffmpeg",
			},
			&cli.StringFlag{
				Name:  "dtype",
				Usage: "Output dtype: float32 or uint8",
				Value: "float32",
			},
			&cli.StringFlag{
				Name:  "log_level",
				Usage: "Log level",
				Value: "info",
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "decode-video:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log, err := logger.NewConsole(cmd.String("log_level"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer log.Sync()

	dtype, err := npy.ParseDType(cmd.String("dtype"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	var dec port.VideoDecoder
	switch backend := cmd.String("decoder"); backend {
	case "ffmpeg":
		dec = ffmpeg.NewDecoder(cmd.String("ffmpeg"), 0, log)
	case "vidio":
		dec = vidio.NewDecoder(log)
	default:
		return cli.Exit(fmt.Sprintf("unknown decoder %q", backend), 2)
	}

	req, err := entity.NewSampleRequest(
		cmd.String("input_file"),
		cmd.Int("num_frames"),
		entity.FPSOrNative(cmd.Float64("fps")),
		cmd.Bool("random_chunks"),
	)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	start := time.Now()
	clip, err := sampler.New(dec, log).Sample(ctx, req)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Printf("Video dimensions: %dx%d\n", clip.Width, clip.Height)
	fmt.Printf("Time taken: %v\n", elapsed)
	fmt.Printf("Loaded frames: %d of %d (fps %.3f)\n", clip.Length, clip.TensorFrames, clip.FPS)

	if out := cmd.String("output_file"); out != "" {
		if err := npy.WriteFile(out, clip, dtype); err != nil {
			return err
		}
		shape := clip.Shape()
		log.Info("clip written", zap.String("path", out), zap.Ints("shape", shape[:]))
	}
	return nil
}
