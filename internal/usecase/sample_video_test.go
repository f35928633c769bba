package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/fiapx/fiapx-sampling-service/internal/domain/port"
	"github.com/fiapx/fiapx-sampling-service/internal/infra/npy"
	"github.com/fiapx/fiapx-sampling-service/internal/sampler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]entity.SampleJob
	findErr error
	creates int
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[uuid.UUID]entity.SampleJob{}}
}

func (r *memRepo) Create(_ context.Context, job *entity.SampleJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.SampleJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.SampleJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	job, ok := r.jobs[id]
	if !ok {
		return nil, entity.ErrJobNotFound
	}
	return &job, nil
}

type memStorage struct {
	downloadErr error
	downloaded  []string
	uploads     map[string][]byte
	contentType string
}

func (s *memStorage) DownloadVideo(_ context.Context, key, dest string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloaded = append(s.downloaded, key)
	return os.WriteFile(dest, []byte("video bytes"), 0o600)
}

func (s *memStorage) UploadClip(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(b)) != size {
		return errors.New("size mismatch")
	}
	if s.uploads == nil {
		s.uploads = map[string][]byte{}
	}
	s.uploads[key] = b
	s.contentType = contentType
	return nil
}

type stubSampler struct {
	err  error
	reqs []entity.SampleRequest
}

func (s *stubSampler) Sample(_ context.Context, req entity.SampleRequest) (*entity.Clip, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	if _, err := os.Stat(req.Path); err != nil {
		return nil, err
	}
	clip := entity.NewClip(req.NumFrames, 2, 2, 25)
	clip.Length = req.NumFrames / 2
	return clip, nil
}

type recordingPublisher struct {
	statuses []entity.SampleStatusMessage
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg entity.SampleStatusMessage) error {
	p.statuses = append(p.statuses, msg)
	return nil
}

type recordingDLQ struct {
	reasons []string
	bodies  [][]byte
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, msg []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	d.bodies = append(d.bodies, msg)
	return nil
}

type recordingNotifier struct {
	notices []port.FailureNotice
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, notice port.FailureNotice) error {
	n.notices = append(n.notices, notice)
	return nil
}

type harness struct {
	uc       *SampleVideoUseCase
	repo     *memRepo
	storage  *memStorage
	sampler  *stubSampler
	status   *recordingPublisher
	dlq      *recordingDLQ
	notifier *recordingNotifier
}

func newHarness(t *testing.T, maxRetries int) *harness {
	h := &harness{
		repo:     newMemRepo(),
		storage:  &memStorage{},
		sampler:  &stubSampler{},
		status:   &recordingPublisher{},
		dlq:      &recordingDLQ{},
		notifier: &recordingNotifier{},
	}
	h.uc = NewSampleVideoUseCase(
		h.repo, h.storage, h.sampler, npy.NewArchiveEncoder(npy.Uint8),
		h.status, h.dlq, h.notifier,
		zap.NewNop(),
		SampleVideoConfig{TempDir: t.TempDir(), MaxRetries: maxRetries},
	)
	return h
}

func message(t *testing.T, msg entity.SampleJobMessage) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestExecuteSamplesAndUploadsClip(t *testing.T) {
	h := newHarness(t, 3)
	jobID := uuid.New()

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID:     jobID,
		UserID:    "alice",
		VideoKey:  "alice/run.mp4",
		NumFrames: 16,
		FPS:       -1,
	}))
	require.NoError(t, err)

	require.Len(t, h.sampler.reqs, 1)
	req := h.sampler.reqs[0]
	assert.Equal(t, 16, req.NumFrames)
	assert.Nil(t, req.TargetFPS)
	assert.True(t, strings.HasSuffix(req.Path, "input.mp4"))

	clipKey := "alice/clip_" + jobID.String() + ".npz"
	require.Contains(t, h.storage.uploads, clipKey)
	assert.True(t, bytes.HasPrefix(h.storage.uploads[clipKey], []byte("PK")))
	assert.Equal(t, "application/zip", h.storage.contentType)

	job := h.repo.jobs[jobID]
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 8, job.ValidLength)
	assert.Equal(t, 16, job.TensorFrames)
	assert.Equal(t, 1, job.Attempt)

	require.Len(t, h.status.statuses, 1)
	status := h.status.statuses[0]
	assert.Equal(t, entity.JobStatusCompleted, status.Status)
	assert.Equal(t, []int{16, 2, 2, 3}, status.Shape)
	assert.Equal(t, 8, status.ValidLength)
	assert.Empty(t, h.dlq.reasons)
}

func TestExecutePassesTargetFPS(t *testing.T) {
	h := newHarness(t, 3)

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "bob", VideoKey: "bob/a.mkv", NumFrames: 4, FPS: 12, RandomChunk: true,
	}))
	require.NoError(t, err)

	req := h.sampler.reqs[0]
	require.NotNil(t, req.TargetFPS)
	assert.Equal(t, 12.0, *req.TargetFPS)
	assert.True(t, req.RandomChunk)
}

func TestExecuteMalformedMessageGoesToDLQ(t *testing.T) {
	h := newHarness(t, 3)

	err := h.uc.Execute(context.Background(), []byte(`{invalid json`))
	require.NoError(t, err)
	require.Len(t, h.dlq.bodies, 1)
	assert.Equal(t, `{invalid json`, string(h.dlq.bodies[0]))
	assert.Empty(t, h.sampler.reqs)
}

func TestExecuteMissingVideoKeyGoesToDLQ(t *testing.T) {
	h := newHarness(t, 3)

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{JobID: uuid.New()}))
	require.NoError(t, err)
	require.Len(t, h.dlq.reasons, 1)
	assert.Contains(t, h.dlq.reasons[0], "invalid_message")
}

func TestExecuteInvalidVideoIsPermanent(t *testing.T) {
	h := newHarness(t, 3)
	h.sampler.err = &sampler.InvalidVideoError{Path: "x", Probe: entity.VideoProbe{}}
	jobID := uuid.New()

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: jobID, UserID: "carol", VideoKey: "carol/broken.mp4", NumFrames: 8, UserEmail: "carol@example.com",
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.reasons, 1)
	assert.Contains(t, h.dlq.reasons[0], "invalid video")
	require.Len(t, h.notifier.notices, 1)
	assert.Equal(t, "carol@example.com", h.notifier.notices[0].UserEmail)
	assert.Equal(t, jobID.String(), h.notifier.notices[0].JobID)

	job := h.repo.jobs[jobID]
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.False(t, job.CanRetry())
	assert.Empty(t, h.storage.uploads)
}

func TestExecuteNegativeFrameCountIsPermanent(t *testing.T) {
	h := newHarness(t, 3)

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "dan", VideoKey: "dan/a.mp4", NumFrames: -4,
	}))
	require.NoError(t, err)
	require.Len(t, h.dlq.reasons, 1)
	assert.Contains(t, h.dlq.reasons[0], "invalid_request")
	assert.Empty(t, h.storage.downloaded)
}

func TestExecuteDecodeErrorIsRetryable(t *testing.T) {
	h := newHarness(t, 2)
	h.sampler.err = &sampler.DecodeError{Path: "x", Op: "read", Frame: 3, Err: io.ErrUnexpectedEOF}
	raw := message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "erin", VideoKey: "erin/a.mp4", NumFrames: 8, UserEmail: "erin@example.com",
	})

	err := h.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/2")
	var retry *RetryableError
	require.ErrorAs(t, err, &retry)
	assert.Equal(t, 1, retry.RetryAttempt())
	assert.Empty(t, h.dlq.reasons)
	require.Len(t, h.status.statuses, 1)
	assert.Equal(t, entity.JobStatusFailed, h.status.statuses[0].Status)

	// second delivery uses the last attempt and lands in the DLQ
	err = h.uc.Execute(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, h.dlq.reasons, 1)
	assert.Len(t, h.notifier.notices, 1)
}

func TestExecuteDownloadFailureIsRetryable(t *testing.T) {
	h := newHarness(t, 3)
	h.storage.downloadErr = errors.New("connection reset")

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "fay", VideoKey: "fay/a.mp4", NumFrames: 8,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_video")
	assert.Empty(t, h.sampler.reqs)
}

func TestExecuteFrameCountAboveLimitIsNotPersisted(t *testing.T) {
	h := newHarness(t, 3)
	jobID := uuid.New()

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: jobID, UserID: "gus", VideoKey: "gus/a.mp4", NumFrames: entity.MaxNumFrames + 1, UserEmail: "gus@example.com",
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.reasons, 1)
	assert.Contains(t, h.dlq.reasons[0], "invalid_request")
	assert.Zero(t, h.repo.creates)
	assert.NotContains(t, h.repo.jobs, jobID)
	assert.Empty(t, h.storage.downloaded)
	assert.Empty(t, h.sampler.reqs)

	require.Len(t, h.status.statuses, 1)
	assert.Equal(t, entity.JobStatusFailed, h.status.statuses[0].Status)
	assert.Len(t, h.notifier.notices, 1)
}

func TestExecuteClipTooLargeIsPermanent(t *testing.T) {
	h := newHarness(t, 3)
	h.sampler.err = &sampler.ClipTooLargeError{Path: "x", Shape: [4]int{1 << 20, 1080, 1920, 3}, Limit: 1 << 30}
	jobID := uuid.New()

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: jobID, UserID: "hal", VideoKey: "hal/a.mp4", NumFrames: 1 << 20,
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.reasons, 1)
	assert.Contains(t, h.dlq.reasons[0], "too large")
	job := h.repo.jobs[jobID]
	assert.False(t, job.CanRetry())
}

func TestExecuteCompletedJobIsNotResampled(t *testing.T) {
	h := newHarness(t, 3)
	raw := message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "ivy", VideoKey: "ivy/a.mp4", NumFrames: 4,
	})

	require.NoError(t, h.uc.Execute(context.Background(), raw))
	require.NoError(t, h.uc.Execute(context.Background(), raw))

	assert.Len(t, h.sampler.reqs, 1)
	assert.Len(t, h.storage.downloaded, 1)
	assert.Len(t, h.status.statuses, 1)
	assert.Equal(t, 1, h.repo.creates)
}

func TestExecuteRepositoryErrorIsRetryable(t *testing.T) {
	h := newHarness(t, 3)
	h.repo.findErr = errors.New("connection refused")

	err := h.uc.Execute(context.Background(), message(t, entity.SampleJobMessage{
		JobID: uuid.New(), UserID: "jay", VideoKey: "jay/a.mp4", NumFrames: 4,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find job")
	assert.Zero(t, h.repo.creates)
	assert.Empty(t, h.sampler.reqs)
	assert.Empty(t, h.dlq.reasons)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, isPermanent(&sampler.InvalidVideoError{}))
	assert.True(t, isPermanent(fmt.Errorf("sample: %w", &sampler.ClipTooLargeError{})))
	assert.True(t, isPermanent(sampler.ErrInvalidRequest))
	assert.False(t, isPermanent(&sampler.DecodeError{Op: "open", Err: errors.New("x")}))
}
