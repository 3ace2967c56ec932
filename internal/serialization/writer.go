package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// PotsVersion is written into every header.
const PotsVersion = "0.3.0"

// Encode serializes f into w.
//
// Tensors are written in lexical name order so the same content always
// produces the same bytes (apart from CreatedAt). The header's FormatVersion,
// PotsVersion and Tensors fields are filled in; CreatedAt is set when zero.
func Encode(w io.Writer, f *File) error {
	header := f.Header
	header.FormatVersion = FormatVersion
	header.PotsVersion = PotsVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var currentOffset int64
	header.Tensors = make([]TensorMeta, 0, len(names))
	for _, name := range names {
		t := f.Tensors[name]
		size := int64(t.Len()) * bytesPerElement
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  DTypeFloat64,
			Shape:  []int(t.Shape().Clone()),
			Offset: currentOffset,
			Size:   size,
		})
		currentOffset += size
	}

	data := make([]byte, currentOffset)
	for i, name := range names {
		buf := data[header.Tensors[i].Offset:]
		for j, v := range f.Tensors[name].Data() {
			binary.LittleEndian.PutUint64(buf[j*bytesPerElement:], math.Float64bits(v))
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	// Fixed header: magic, version, flags, reserved, header size, data size, checksum.
	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], f.Flags())
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := ComputeChecksum(headerJSON, data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	currentPos := int64(FixedHeaderSize) + int64(len(headerJSON))
	padding := (HeaderAlignment - (currentPos % HeaderAlignment)) % HeaderAlignment

	for _, part := range [][]byte{fixed, headerJSON, make([]byte, padding), data} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("failed to write: %w", err)
		}
	}
	return nil
}

// Marshal returns the encoded bytes of f.
func Marshal(f *File) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile atomically writes f to path.
//
// The content goes to a temporary file in the same directory, is synced to
// disk, and is then renamed over path. A failure at any point removes the
// temporary file and leaves any previous file at path untouched.
func WriteFile(path string, f *File) error {
	data, err := Marshal(f)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to path with the temp-file, fsync, rename sequence.
func WriteAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", tmpName, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
