// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model exposes the contract every architecture implements and the
// registry the task packages build models from.
//
// A custom architecture registers a constructor under a unique name, usually
// from an init function, and then becomes selectable through
// Config.Architecture in the task package for its task:
//
//	func init() {
//	    model.Register("my_imputer", model.TaskImputation, newMyImputer)
//	}
//
// Forward and Loss must route every computation through the Context's Tape so
// the trainer can differentiate it. Losses must only read entries whose mask
// is 1.
package model

import (
	// Registers the reference architectures.
	_ "github.com/born-ml/pots/internal/arch"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
)

// Task is the learning problem a model solves.
type Task = core.Task

// Tasks.
const (
	TaskImputation     = core.TaskImputation
	TaskClassification = core.TaskClassification
	TaskClustering     = core.TaskClustering
	TaskForecasting    = core.TaskForecasting
	TaskAnomaly        = core.TaskAnomaly
)

type (
	// Model is the contract between architectures and the training loop.
	Model = core.Model
	// Hyper carries shape and architecture hyperparameters.
	Hyper = core.Hyper
	// Spec identifies a model for checkpoint compatibility checks.
	Spec = core.Spec
	// Context carries the tape, training flag and RNG of one call.
	Context = core.Context
	// Output is what Forward produces.
	Output = core.Output
	// Prediction is the result of Predict for one batch.
	Prediction = core.Prediction
	// Constructor builds a model from its hyperparameters.
	Constructor = core.Constructor
	// Buffered is implemented by models with saved non-trainable state.
	Buffered = core.Buffered
	// Calibrator is implemented by models that need a pass over the
	// training data after fitting.
	Calibrator = core.Calibrator
	// BatchSource yields batches until it returns nil.
	BatchSource = core.BatchSource
	// Batch is one mini-batch: values, mask, and whatever labels, targets
	// or artificial-missingness indicators the dataset carries.
	Batch = data.Batch
)

// Register adds an architecture to the registry. It panics on a duplicate
// name or a nil constructor.
func Register(name string, task Task, ctor Constructor) {
	core.Register(name, task, ctor)
}

// New builds the architecture registered under name.
func New(name string, h Hyper) (Model, error) {
	return core.New(name, h)
}

// Names returns every registered architecture name, sorted.
func Names() []string {
	return core.Names()
}

// ForTask returns the sorted names of the architectures serving task.
func ForTask(task Task) []string {
	return core.ForTask(task)
}

// Inference returns a context for non-training calls.
func Inference() *Context {
	return core.Inference()
}

// CheckBatch verifies that b matches the model's feature count.
func CheckBatch(m Model, b *Batch) error {
	return core.CheckBatch(m, b)
}
