// Package tensor provides the dense float64 tensors every pots component
// exchanges: datasets, masks, batches, parameters and gradients.
//
// Tensors are row-major and own a flat []float64. Reshape returns a view that
// shares the buffer; Clone copies it.
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor is a dense, row-major float64 array.
type Tensor struct {
	shape Shape
	data  []float64
}

// Zeros creates a zero-filled tensor with the given dimensions.
//
// Panics on a negative dimension.
func Zeros(dims ...int) *Tensor {
	shape := Shape(dims).Clone()
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.Zeros: %v", err))
	}
	return &Tensor{shape: shape, data: make([]float64, shape.NumElements())}
}

// Full creates a tensor filled with v.
func Full(v float64, dims ...int) *Tensor {
	t := Zeros(dims...)
	t.Fill(v)
	return t
}

// Scalar creates a single-element tensor of shape [1].
func Scalar(v float64) *Tensor {
	return &Tensor{shape: Shape{1}, data: []float64{v}}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float64, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	buf := make([]float64, len(data))
	copy(buf, data)
	return &Tensor{shape: shape.Clone(), data: buf}, nil
}

// MustFromSlice is FromSlice that panics on error. Intended for literals in
// tests and examples.
func MustFromSlice(data []float64, dims ...int) *Tensor {
	t, err := FromSlice(data, Shape(dims))
	if err != nil {
		panic(err)
	}
	return t
}

// Wrap creates a tensor backed directly by data, without copying.
func Wrap(data []float64, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), data: data}, nil
}

// Shape returns the tensor's shape. The returned slice must not be modified.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.shape[i]
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying buffer. Writes are visible to the tensor and to
// every view sharing it.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.data) != 1 {
		panic(fmt.Sprintf("tensor.Item: tensor has %d elements", len(t.data)))
	}
	return t.data[0]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	buf := make([]float64, len(t.data))
	copy(buf, t.data)
	return &Tensor{shape: t.shape.Clone(), data: buf}
}

// Reshape returns a view with a new shape over the same buffer.
func (t *Tensor) Reshape(dims ...int) (*Tensor, error) {
	shape := Shape(dims).Clone()
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(t.data) {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v", t.shape, len(t.data), shape)
	}
	return &Tensor{shape: shape, data: t.data}, nil
}

// MustReshape is Reshape that panics on error.
func (t *Tensor) MustReshape(dims ...int) *Tensor {
	r, err := t.Reshape(dims...)
	if err != nil {
		panic(err)
	}
	return r
}

// offset converts a multi-index into a flat offset.
func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) float64 {
	return t.data[t.offset(idx)]
}

// Set stores v at the given multi-index.
func (t *Tensor) Set(v float64, idx ...int) {
	t.data[t.offset(idx)] = v
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

// CopyFrom copies src into t. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("copy shape mismatch: %v vs %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// IsFinite reports whether no element is NaN or Inf.
func (t *Tensor) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AllClose reports whether t and other have equal shapes and elementwise
// differences within tol.
func (t *Tensor) AllClose(other *Tensor, tol float64) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if math.Abs(v-other.data[i]) > tol {
			return false
		}
	}
	return true
}

// String renders small tensors for debugging.
func (t *Tensor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tensor%v", []int(t.shape))
	if len(t.data) <= 16 {
		fmt.Fprintf(&sb, "%v", t.data)
	}
	return sb.String()
}
