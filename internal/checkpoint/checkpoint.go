// Package checkpoint persists model weights in the LCF container: a
// fixed header, a JSON metadata block describing the model config and
// tensor table, then raw little-endian float32 tensor data.
package checkpoint

import (
	"errors"

	"github.com/samcharles93/loom/internal/model"
)

const (
	// MagicLCF identifies an LCF checkpoint file.
	MagicLCF = "LCF1"

	// FormatVersion is bumped on incompatible layout changes.
	FormatVersion uint32 = 1

	headerSize = 4 + 4 + 8 // magic, version, metadata length
)

var (
	ErrCorruptFile        = errors.New("checkpoint: corrupt file")
	ErrInvalidMagic       = errors.New("checkpoint: invalid magic")
	ErrUnsupportedVersion = errors.New("checkpoint: unsupported format version")
	ErrTensorNotFound     = errors.New("checkpoint: tensor not found")
)

// TensorInfo locates one named tensor inside the data block. Offset is
// relative to the start of the data block and counted in bytes.
type TensorInfo struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Cols   int    `json:"cols"`
	Offset int64  `json:"offset"`
}

// Metadata is the JSON block stored after the header.
type Metadata struct {
	Step    int          `json:"step"`
	Config  model.Config `json:"config"`
	Tensors []TensorInfo `json:"tensors"`
}
