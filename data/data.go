// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package data builds the partially observed datasets every pots model
// trains on.
//
// An Observation holds values and a mask of equal shape [N, T, F]; a mask
// entry is 1 where the value was observed and 0 where it is missing. Missing
// values are never read, so NaN placeholders are fine:
//
//	x := tensor.MustFromSlice(values, n, steps, features) // NaN = missing
//	obs, err := data.FromNaN(x)
//	ds := &data.Dataset{Obs: obs}
//
// Labels, ground truth and forecasting targets are optional fields of Dataset.
package data

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/tensor"
)

// Observation pairs values with an equal-shape binary mask.
type Observation = data.Observation

// Dataset is an Observation plus optional labels, truth and targets.
type Dataset = data.Dataset

// Corrupted is the result of MCAR.
type Corrupted = data.Corrupted

// Scaler standardizes features using observed entries only.
type Scaler = data.Scaler

// NewObservation validates x and mask ([N, T, F], mask in {0, 1}).
func NewObservation(x, mask *tensor.Tensor) (*Observation, error) {
	return data.NewObservation(x, mask)
}

// FromNaN derives the mask from x: NaN entries are missing.
func FromNaN(x *tensor.Tensor) (*Observation, error) { return data.FromNaN(x) }

// FromSequences pads ragged series values[i][t][f] to a common length. A nil
// masks marks NaN entries as missing.
func FromSequences(values, masks [][][]float64) (*Observation, error) {
	return data.FromSequences(values, masks)
}

// Window slices one long series [T, F] into samples of windowLen steps.
func Window(x, mask *tensor.Tensor, windowLen, stride int) (*Observation, error) {
	return data.Window(x, mask, windowLen, stride)
}

// WindowForecast pairs input windows of a long series with the following
// horizon steps as forecasting targets.
func WindowForecast(x, mask *tensor.Tensor, inputLen, horizon, stride int) (*Dataset, error) {
	return data.WindowForecast(x, mask, inputLen, horizon, stride)
}

// MCAR removes floor(rate × observed) observed entries of each sample,
// completely at random. The inputs are not modified.
func MCAR(x, mask *tensor.Tensor, rate float64, seed uint64) *Corrupted {
	return data.MCAR(x, mask, rate, rand.New(rand.NewPCG(seed, 0)))
}

// FitScaler computes per-feature statistics of the observed entries of obs.
func FitScaler(obs *Observation) *Scaler { return data.FitScaler(obs) }
