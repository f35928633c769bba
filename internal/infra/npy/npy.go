// Package npy writes clips in NumPy's .npy and .npz formats.
package npy

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-sampling-service/internal/domain/entity"
	gonpy "github.com/sbinet/npyio/npy"
)

type DType string

const (
	Float32 DType = "<f4"
	Uint8   DType = "|u1"
)

// ParseDType accepts the numpy names used on the command line.
func ParseDType(name string) (DType, error) {
	switch strings.ToLower(name) {
	case "float32", "f4", "":
		return Float32, nil
	case "uint8", "u1":
		return Uint8, nil
	}
	return "", fmt.Errorf("unsupported dtype %q", name)
}

// writeHeader writes a version 1.0 header for an array of the given shape.
// npyio derives shapes from Go types, so a [T, H, W, 3] clip held in a flat
// buffer needs its header written here. The dict layout is the one npyio
// reads back, padded with spaces so the data starts on a 64 byte boundary.
func writeHeader(w io.Writer, dtype DType, shape []int) error {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", dtype, shapeStr)

	// magic(6) + version(2) + header length(2) + dict + '\n'
	total := len(gonpy.Magic) + 4 + len(dict) + 1
	if rem := total % 64; rem != 0 {
		dict += strings.Repeat(" ", 64-rem)
	}
	dict += "\n"
	if len(dict) > math.MaxUint16 {
		return fmt.Errorf("npy header too long: %d bytes", len(dict))
	}

	if _, err := w.Write(gonpy.Magic[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(dict))); err != nil {
		return err
	}
	_, err := io.WriteString(w, dict)
	return err
}

// WriteClip writes the clip's full [T, H, W, 3] buffer, padding included.
func WriteClip(w io.Writer, clip *entity.Clip, dtype DType) error {
	shape := clip.Shape()
	if err := writeHeader(w, dtype, shape[:]); err != nil {
		return fmt.Errorf("write npy header: %w", err)
	}

	switch dtype {
	case Uint8:
		_, err := w.Write(clip.Frames)
		return err
	case Float32:
		bw := bufio.NewWriterSize(w, 64*1024)
		var buf [4]byte
		for _, v := range clip.Frames {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))
			if _, err := bw.Write(buf[:]); err != nil {
				return err
			}
		}
		return bw.Flush()
	}
	return fmt.Errorf("unsupported clip dtype %q", dtype)
}

// WriteScalar writes a zero-dimensional array holding v. Ints are stored as
// int64.
func WriteScalar(w io.Writer, v any) error {
	switch x := v.(type) {
	case int:
		return gonpy.Write(w, int64(x))
	case int64, float64:
		return gonpy.Write(w, x)
	}
	return fmt.Errorf("unsupported scalar type %T", v)
}
