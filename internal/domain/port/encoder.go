package port

import (
	"io"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

// ClipEncoder serializes a sampled clip for storage.
type ClipEncoder interface {
	Encode(w io.Writer, clip *entity.Clip) error
	ContentType() string
	Extension() string
}
