package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/born-ml/pots/internal/tensor"
)

// Unmarshal decodes a complete .pots file from buf.
//
// The checksum is verified and the header validated before any tensor is
// built.
func Unmarshal(buf []byte) (*File, error) {
	header, data, err := parse(buf)
	if err != nil {
		return nil, err
	}

	tensors := make(map[string]*tensor.Tensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		values := make([]float64, meta.Size/bytesPerElement)
		src := data[meta.Offset : meta.Offset+meta.Size]
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[i*bytesPerElement:]))
		}
		t, err := tensor.Wrap(values, tensor.Shape(meta.Shape))
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", meta.Name, err)
		}
		tensors[meta.Name] = t
	}
	return &File{Header: header, Tensors: tensors}, nil
}

// Decode reads a complete .pots file from r.
func Decode(r io.Reader) (*File, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read: %w", err)
	}
	return Unmarshal(buf)
}

// ReadFile decodes the .pots file at path.
func ReadFile(path string) (*File, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ReadHeader returns the verified header of the file at path without
// materializing tensors.
func ReadHeader(path string) (Header, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	header, _, err := parse(buf)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return header, nil
}

// parse splits buf into header and data sections, verifying both.
func parse(buf []byte) (Header, []byte, error) {
	var header Header
	if len(buf) < FixedHeaderSize {
		return header, nil, fmt.Errorf("%w: file is %d bytes", io.ErrUnexpectedEOF, len(buf))
	}
	if string(buf[0:4]) != MagicBytes {
		return header, nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(buf[4:8]); version != FormatVersion {
		return header, nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	headerSize := binary.LittleEndian.Uint64(buf[16:24])
	dataSize := binary.LittleEndian.Uint64(buf[24:32])
	var stored [32]byte
	copy(stored[:], buf[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return header, nil, ErrHeaderTooLarge
	}

	headerEnd := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - (headerEnd % HeaderAlignment)) % HeaderAlignment
	dataOffset := headerEnd + padding
	if uint64(len(buf)) < uint64(dataOffset) || uint64(len(buf))-uint64(dataOffset) < dataSize {
		return header, nil, fmt.Errorf("%w: need %d data bytes after offset %d, file is %d bytes",
			io.ErrUnexpectedEOF, dataSize, dataOffset, len(buf))
	}

	headerJSON := buf[FixedHeaderSize:headerEnd]
	data := buf[dataOffset : dataOffset+int64(dataSize)]
	if err := ValidateChecksum(ComputeChecksum(headerJSON, data), stored); err != nil {
		return header, nil, err
	}

	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return header, nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := ValidateHeader(&header, int64(dataSize)); err != nil {
		return header, nil, fmt.Errorf("validation failed: %w", err)
	}
	return header, data, nil
}
