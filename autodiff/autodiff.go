// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides reverse-mode automatic differentiation over
// float64 tensors.
//
// Operations are methods on a Tape. A nil *Tape computes the same values
// without recording anything, so one forward pass serves both training and
// inference:
//
//	tape := autodiff.NewTape()
//	tape.StartRecording()
//	h := tape.Tanh(tape.MatMul(x, w))
//	loss := tape.MaskedMSE(h, target, mask)
//	grads := tape.Backward(loss)
//	dw := grads[w]
package autodiff

import (
	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/tensor"
)

// Tape records operations for backpropagation.
type Tape = autodiff.Tape

// Gradients maps a leaf tensor to the gradient of the loss with respect to it.
type Gradients = autodiff.Gradients

// Operation is a recorded differentiable operation.
type Operation = autodiff.Operation

// NewTape returns a stopped tape; call StartRecording before the forward pass.
func NewTape() *Tape {
	return autodiff.NewTape()
}

// Softmax returns the row-wise softmax of a [N, C] tensor. It is not recorded.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	return autodiff.Softmax(logits)
}
