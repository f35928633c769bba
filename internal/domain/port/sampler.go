package port

import (
	"context"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

type ClipSampler interface {
	Sample(ctx context.Context, req entity.SampleRequest) (*entity.Clip, error)
}
