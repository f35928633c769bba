package npy

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
)

// ArchiveEncoder bundles a clip and its metadata as an .npz archive with the
// members video, length, height, width and fps.
type ArchiveEncoder struct {
	dtype DType
}

func NewArchiveEncoder(dtype DType) *ArchiveEncoder {
	return &ArchiveEncoder{dtype: dtype}
}

func (e *ArchiveEncoder) ContentType() string { return "application/zip" }

func (e *ArchiveEncoder) Extension() string { return ".npz" }

func (e *ArchiveEncoder) Encode(w io.Writer, clip *entity.Clip) error {
	zw := zip.NewWriter(w)

	members := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"video.npy", func(w io.Writer) error { return WriteClip(w, clip, e.dtype) }},
		{"length.npy", func(w io.Writer) error { return WriteScalar(w, clip.Length) }},
		{"height.npy", func(w io.Writer) error { return WriteScalar(w, clip.Height) }},
		{"width.npy", func(w io.Writer) error { return WriteScalar(w, clip.Width) }},
		{"fps.npy", func(w io.Writer) error { return WriteScalar(w, clip.FPS) }},
	}
	for _, m := range members {
		if err := addMember(zw, m.name, m.write); err != nil {
			return fmt.Errorf("add %s to npz: %w", m.name, err)
		}
	}

	return zw.Close()
}

func addMember(zw *zip.Writer, name string, write func(io.Writer) error) error {
	writer, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}
	return write(writer)
}

// WriteFile stores clip at path, as a bare .npy array or, for .npz paths,
// as an archive with metadata.
func WriteFile(path string, clip *entity.Clip, dtype DType) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".npz") {
		err = NewArchiveEncoder(dtype).Encode(f, clip)
	} else {
		err = WriteClip(f, clip, dtype)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
