package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by job repositories for unknown ids.
var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// SampleJob tracks one clip sampling request through the worker.
type SampleJob struct {
	ID           uuid.UUID
	UserID       string
	VideoKey     string
	ClipKey      string
	Status       JobStatus
	NumFrames    int
	TargetFPS    float64
	RandomChunk  bool
	TensorFrames int
	ValidLength  int
	Height       int
	Width        int
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewSampleJob(msg SampleJobMessage, maxAttempts int) *SampleJob {
	now := time.Now().UTC()
	return &SampleJob{
		ID:          msg.JobID,
		UserID:      msg.UserID,
		VideoKey:    msg.VideoKey,
		NumFrames:   msg.NumFrames,
		TargetFPS:   msg.FPS,
		RandomChunk: msg.RandomChunk,
		Status:      JobStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *SampleJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.UpdatedAt = time.Now().UTC()
}

func (j *SampleJob) MarkCompleted(clipKey string, clip *Clip) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ClipKey = clipKey
	j.TensorFrames = clip.TensorFrames
	j.ValidLength = clip.Length
	j.Height = clip.Height
	j.Width = clip.Width
	j.ErrorMessage = ""
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *SampleJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// ExhaustRetries makes the job ineligible for further attempts.
func (j *SampleJob) ExhaustRetries() {
	j.Attempt = j.MaxAttempts
}

func (j *SampleJob) Completed() bool {
	return j.Status == JobStatusCompleted
}

func (j *SampleJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
