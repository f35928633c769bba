package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrJobNotFound = entity.ErrJobNotFound

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.SampleJob) error {
	query := `
		INSERT INTO sample_jobs (
			id, user_id, video_key, clip_key, status, num_frames,
			target_fps, random_chunk, tensor_frames, valid_length,
			height, width, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ClipKey, string(job.Status),
		job.NumFrames, job.TargetFPS, job.RandomChunk,
		job.TensorFrames, job.ValidLength, job.Height, job.Width,
		job.Attempt, job.MaxAttempts, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.SampleJob) error {
	query := `
		UPDATE sample_jobs SET
			status=$2, clip_key=$3, tensor_frames=$4, valid_length=$5,
			height=$6, width=$7, attempt=$8, error_message=$9,
			updated_at=$10, completed_at=$11
		WHERE id=$1`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ClipKey, job.TensorFrames,
		job.ValidLength, job.Height, job.Width, job.Attempt,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", job.ID, ErrJobNotFound)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.SampleJob, error) {
	query := `
		SELECT id, user_id, video_key, clip_key, status, num_frames,
			target_fps, random_chunk, tensor_frames, valid_length,
			height, width, attempt, max_attempts, error_message,
			created_at, updated_at, completed_at
		FROM sample_jobs WHERE id=$1`

	job := &entity.SampleJob{}
	var status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ClipKey, &status,
		&job.NumFrames, &job.TargetFPS, &job.RandomChunk,
		&job.TensorFrames, &job.ValidLength, &job.Height, &job.Width,
		&job.Attempt, &job.MaxAttempts, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	return job, nil
}
