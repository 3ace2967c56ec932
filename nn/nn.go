// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the neural network building blocks used by the
// reference architectures: trainable parameters, layers and masked losses.
//
// Custom architectures registered through the model package can build on
// the same pieces:
//
//	rng := rand.New(rand.NewPCG(seed, 1))
//	hidden := nn.NewLinear("hidden", 2*features, 64, rng)
//	out := nn.NewLinear("out", 64, features, rng)
//	params := nn.Collect(hidden, out)
package nn

import (
	"math/rand/v2"

	"github.com/born-ml/pots/autodiff"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/tensor"
)

// Parameter is a named trainable tensor.
type Parameter = nn.Parameter

// Params is an ordered parameter list.
type Params = nn.Params

// Module is anything that owns parameters.
type Module = nn.Module

// Linear is a fully connected layer, y = xW + b.
type Linear = nn.Linear

// RNNCell is an Elman recurrent cell with tanh activation.
type RNNCell = nn.RNNCell

// NewParameter wraps t as a trainable parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// NewLinear returns a Xavier-initialized linear layer.
func NewLinear(name string, inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return nn.NewLinear(name, inFeatures, outFeatures, rng)
}

// NewRNNCell returns a recurrent cell mapping inFeatures to hiddenSize.
func NewRNNCell(name string, inFeatures, hiddenSize int, rng *rand.Rand) *RNNCell {
	return nn.NewRNNCell(name, inFeatures, hiddenSize, rng)
}

// Collect concatenates the parameters of modules in order.
func Collect(modules ...Module) Params {
	return nn.Collect(modules...)
}

// NumParameters returns the total number of scalar parameters of m.
func NumParameters(m Module) int {
	return nn.NumParameters(m)
}

// StateDict returns a copy of every parameter of m keyed by name.
func StateDict(m Module) map[string]*tensor.Tensor {
	return nn.StateDict(m)
}

// LoadStateDict copies state into the parameters of m. Nothing is written
// unless every name and shape matches.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	return nn.LoadStateDict(m, state)
}

// Xavier returns a Glorot-uniform initialized tensor.
func Xavier(fanIn, fanOut int, rng *rand.Rand, dims ...int) *tensor.Tensor {
	return nn.Xavier(fanIn, fanOut, rng, dims...)
}

// MaskedMAE is the mean absolute error over the entries where mask is 1.
func MaskedMAE(tape *autodiff.Tape, pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return nn.MaskedMAE(tape, pred, target, mask)
}

// MaskedMSE is the mean squared error over the entries where mask is 1.
func MaskedMSE(tape *autodiff.Tape, pred, target, mask *tensor.Tensor) *tensor.Tensor {
	return nn.MaskedMSE(tape, pred, target, mask)
}

// CrossEntropy is the mean softmax cross-entropy of logits against labels.
func CrossEntropy(tape *autodiff.Tape, logits *tensor.Tensor, labels []int) *tensor.Tensor {
	return nn.CrossEntropy(tape, logits, labels)
}
