package port

import (
	"context"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	"github.com/google/uuid"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.SampleJob) error
	Update(ctx context.Context, job *entity.SampleJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.SampleJob, error)
}
