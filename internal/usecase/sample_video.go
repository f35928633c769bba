package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/metrics"
	"github.com/fiapx/fiapx-sampling-service/internal/sampler"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type SampleVideoUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	sampler   port.ClipSampler
	encoder   port.ClipEncoder
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
}

type SampleVideoConfig struct {
	TempDir    string
	MaxRetries int
}

func NewSampleVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	clipSampler port.ClipSampler,
	encoder port.ClipEncoder,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg SampleVideoConfig,
) *SampleVideoUseCase {
	return &SampleVideoUseCase{
		repo:      repo,
		storage:   storage,
		sampler:   clipSampler,
		encoder:   encoder,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

// Execute handles one clip.sampling delivery. A nil return acks the message,
// including permanent failures that were routed to the DLQ.
func (uc *SampleVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "SampleVideoUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.SampleJobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		metrics.SamplesTotal.WithLabelValues("dlq").Inc()
		return nil
	}
	if msg.JobID == uuid.Nil || msg.VideoKey == "" {
		uc.logger.Error("message missing job_id or video_key", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "invalid_message: missing job_id or video_key")
		metrics.SamplesTotal.WithLabelValues("dlq").Inc()
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
		attribute.Int("job.num_frames", msg.NumFrames),
		attribute.Float64("job.fps", msg.FPS),
		attribute.Bool("job.random_chunk", msg.RandomChunk),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	// The request is checked before the job record is touched, so values the
	// job table cannot hold never reach the repository.
	workDir := filepath.Join(uc.tempDir, msg.JobID.String())
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	req, err := entity.NewSampleRequest(videoPath, msg.NumFrames, entity.FPSOrNative(msg.FPS), msg.RandomChunk)
	if err != nil {
		log.Warn("rejecting sample request", zap.Error(err))
		return uc.rejectRequest(ctx, msg, rawMsg, "invalid_request: "+err.Error(), log)
	}

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	switch {
	case errors.Is(err, entity.ErrJobNotFound):
		job = entity.NewSampleJob(msg, uc.maxRetry)
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	case err != nil:
		log.Error("failed to load job record", zap.Error(err))
		return fmt.Errorf("find job: %w", err)
	case job.Completed():
		log.Info("job already completed, skipping redelivery", zap.String("clip_key", job.ClipKey))
		metrics.SamplesTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded", log)
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.samplePipeline(ctx, job, req, workDir, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.SampleDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())
	return nil
}

func (uc *SampleVideoUseCase) samplePipeline(
	ctx context.Context,
	job *entity.SampleJob,
	req entity.SampleRequest,
	workDir string,
	msg entity.SampleJobMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, req.Path); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.SampleDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Sample frames
	smStart := time.Now()
	ctx3, spanSm := tracer.Start(ctx, "sample_clip")
	clip, err := uc.sampler.Sample(ctx3, req)
	spanSm.End()
	if err != nil {
		log.Error("clip sampling failed", zap.Error(err))
		if isPermanent(err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "sample_clip: "+err.Error(), log)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "sample_clip: "+err.Error(), log)
	}
	metrics.SampleDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())
	metrics.FramesDecodedTotal.Add(float64(clip.Length))
	metrics.PaddingFramesTotal.Add(float64(clip.PaddingFrames()))

	// Encode clip
	encStart := time.Now()
	_, spanEnc := tracer.Start(ctx, "encode_clip")
	clipPath := filepath.Join(workDir, "clip"+uc.encoder.Extension())
	if err := uc.writeClip(clipPath, clip); err != nil {
		spanEnc.End()
		log.Error("clip encoding failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "encode_clip: "+err.Error(), log)
	}
	spanEnc.End()
	metrics.SampleDuration.WithLabelValues("encode").Observe(time.Since(encStart).Seconds())

	// Upload clip
	upStart := time.Now()
	ctx5, spanUp := tracer.Start(ctx, "upload_clip")
	clipKey := fmt.Sprintf("%s/clip_%s%s", msg.UserID, job.ID.String(), uc.encoder.Extension())
	if err := uc.uploadClip(ctx5, clipKey, clipPath); err != nil {
		spanUp.End()
		log.Error("clip upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_clip: "+err.Error(), log)
	}
	spanUp.End()
	metrics.SampleDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(clipKey, clip)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)
	metrics.SamplesTotal.WithLabelValues("completed").Inc()

	log.Info("clip sampled",
		zap.Ints("shape", shapeOf(job)),
		zap.Int("valid_length", clip.Length),
		zap.String("clip_key", clipKey),
	)
	return nil
}

func (uc *SampleVideoUseCase) writeClip(path string, clip *entity.Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := uc.encoder.Encode(f, clip); err != nil {
		return err
	}
	return f.Close()
}

func (uc *SampleVideoUseCase) uploadClip(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	return uc.storage.UploadClip(ctx, key, f, stat.Size(), uc.encoder.ContentType())
}

// isPermanent reports sampling failures that would fail the same way on
// every retry.
func isPermanent(err error) bool {
	var invalid *sampler.InvalidVideoError
	var tooLarge *sampler.ClipTooLargeError
	return errors.As(err, &invalid) || errors.As(err, &tooLarge) || errors.Is(err, sampler.ErrInvalidRequest)
}

// RetryableError asks the consumer to requeue the delivery. Attempt comes
// from the job record and drives the redelivery backoff.
type RetryableError struct {
	Attempt     int
	MaxAttempts int
	Reason      string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable failure (attempt %d/%d): %s", e.Attempt, e.MaxAttempts, e.Reason)
}

func (e *RetryableError) RetryAttempt() int {
	return e.Attempt
}

func (uc *SampleVideoUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.SampleJob,
	msg entity.SampleJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg, log)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	metrics.SamplesTotal.WithLabelValues("retry").Inc()
	uc.publishStatus(ctx, job, log)

	return &RetryableError{Attempt: job.Attempt, MaxAttempts: job.MaxAttempts, Reason: errMsg}
}

func (uc *SampleVideoUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.SampleJob,
	msg entity.SampleJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	job.ExhaustRetries()
	_ = uc.repo.Update(ctx, job)

	uc.deadLetter(ctx, job, msg, rawMsg, errMsg, log)
	return nil
}

// rejectRequest dead-letters a message whose request is invalid. No job
// record is written for it.
func (uc *SampleVideoUseCase) rejectRequest(
	ctx context.Context,
	msg entity.SampleJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job := entity.NewSampleJob(msg, uc.maxRetry)
	job.MarkFailed(errMsg)
	job.ExhaustRetries()

	uc.deadLetter(ctx, job, msg, rawMsg, errMsg, log)
	return nil
}

func (uc *SampleVideoUseCase) deadLetter(
	ctx context.Context,
	job *entity.SampleJob,
	msg entity.SampleJobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) {
	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, log)

	metrics.SamplesTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, port.FailureNotice{
			UserEmail: msg.UserEmail,
			JobID:     job.ID.String(),
			VideoKey:  msg.VideoKey,
			Reason:    errMsg,
		})
	}
}

func (uc *SampleVideoUseCase) publishStatus(ctx context.Context, job *entity.SampleJob, log *zap.Logger) {
	statusMsg := entity.SampleStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		ClipKey:      job.ClipKey,
		ValidLength:  job.ValidLength,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	if job.Status == entity.JobStatusCompleted {
		statusMsg.Shape = shapeOf(job)
	}
	if err := uc.publisher.PublishStatus(ctx, statusMsg); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

func shapeOf(job *entity.SampleJob) []int {
	return []int{job.TensorFrames, job.Height, job.Width, 3}
}
