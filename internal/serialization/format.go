package serialization

import (
	"strings"
	"time"

	"github.com/born-ml/pots/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "POTS"
	FormatVersion   = 1    // Current format version
	HeaderAlignment = 64   // Tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // Fixed binary header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
	bytesPerElement = 8    // float64
)

// DTypeFloat64 is the only element type stored in .pots files.
const DTypeFloat64 = "float64"

// Flags for the .pots format.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 1 // custom metadata included
	FlagHasBuffers   uint32 = 1 << 2 // non-trainable model buffers included
)

// Header is the JSON header of a .pots file.
type Header struct {
	FormatVersion int               `json:"format_version"`
	PotsVersion   string            `json:"pots_version"`
	Architecture  string            `json:"architecture"` // Registry name of the model
	Task          string            `json:"task"`         // Task family of the model
	CreatedAt     time.Time         `json:"created_at"`
	Tensors       []TensorMeta      `json:"tensors"`
	Metadata      map[string]string `json:"metadata"`             // Hyperparameters and custom metadata
	Checkpoint    *CheckpointMeta   `json:"checkpoint,omitempty"` // Training state (optional)
}

// CheckpointMeta describes the training state a checkpoint was taken from.
type CheckpointMeta struct {
	ID            string  `json:"id"`
	RunID         string  `json:"run_id"`
	Kind          string  `json:"kind"` // "best", "periodic" or "final"
	Epoch         int     `json:"epoch"`
	Step          int64   `json:"step"`
	Metric        string  `json:"metric"`
	Value         float64 `json:"value"`
	HasValue      bool    `json:"has_value"` // False when the run was never evaluated
	OptimizerType string  `json:"optimizer_type"`
}

// TensorMeta describes a tensor in the .pots file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "param.encoder.weight")
	DType  string `json:"dtype"`  // Always "float64"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Bytes from the start of the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// File is a decoded .pots file.
type File struct {
	Header  Header
	Tensors map[string]*tensor.Tensor
}

// Flags derives the flag word from the file's content.
func (f *File) Flags() uint32 {
	var flags uint32
	if len(f.Header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	for name := range f.Tensors {
		switch {
		case strings.HasPrefix(name, "optim."):
			flags |= FlagHasOptimizer
		case strings.HasPrefix(name, "buffer."):
			flags |= FlagHasBuffers
		}
	}
	return flags
}
