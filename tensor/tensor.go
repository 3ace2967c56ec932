// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the dense float64 tensors pots models consume and
// produce.
//
// Time series are [N, T, F]: N samples of T steps with F features. Masks have
// the same shape and hold 1 for an observed entry and 0 for a missing one.
//
// Example:
//
//	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, 1, 2, 2) // [1, 2, 2]
//	mask := tensor.Full(1, 1, 2, 2)
//	fmt.Println(x.Shape(), x.At(0, 1, 0)) // [1 2 2] 3
package tensor

import (
	"github.com/born-ml/pots/internal/tensor"
)

// Tensor is a dense row-major float64 tensor.
type Tensor = tensor.Tensor

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Zeros returns a zero-filled tensor with the given dimensions.
func Zeros(dims ...int) *Tensor { return tensor.Zeros(dims...) }

// Full returns a tensor filled with v.
func Full(v float64, dims ...int) *Tensor { return tensor.Full(v, dims...) }

// FromSlice copies data into a tensor of the given shape.
func FromSlice(data []float64, shape Shape) (*Tensor, error) { return tensor.FromSlice(data, shape) }

// MustFromSlice is FromSlice that panics on a length mismatch.
func MustFromSlice(data []float64, dims ...int) *Tensor { return tensor.MustFromSlice(data, dims...) }

// Scalar returns a rank-0 tensor holding v.
func Scalar(v float64) *Tensor { return tensor.Scalar(v) }
