// Package core defines the contract every architecture implements and the
// registry the trainer and the public packages build models from.
//
// The trainer only ever talks to Model: it runs Forward and Loss under a
// recording tape during training and Predict during inference, so a new
// architecture plugs in by registering a Constructor from an init function.
package core

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// Task is a model family.
type Task string

// Tasks.
const (
	TaskImputation     Task = "imputation"
	TaskClassification Task = "classification"
	TaskClustering     Task = "clustering"
	TaskForecasting    Task = "forecasting"
	TaskAnomaly        Task = "anomaly_detection"
)

// ParseTask validates a task name.
func ParseTask(s string) (Task, error) {
	switch t := Task(s); t {
	case TaskImputation, TaskClassification, TaskClustering, TaskForecasting, TaskAnomaly:
		return t, nil
	}
	return "", errs.Configuration("task", "unknown task %q", s)
}

// Hyper carries the shape and architecture hyperparameters of a model.
type Hyper struct {
	Steps         int     `yaml:"n_steps" json:"n_steps"`
	Features      int     `yaml:"n_features" json:"n_features"`
	HiddenSize    int     `yaml:"hidden_size" json:"hidden_size"`
	Classes       int     `yaml:"n_classes" json:"n_classes"`
	Clusters      int     `yaml:"n_clusters" json:"n_clusters"`
	PredSteps     int     `yaml:"pred_steps" json:"pred_steps"`
	Dropout       float64 `yaml:"dropout" json:"dropout"`
	Contamination float64 `yaml:"contamination" json:"contamination"`
	MITWeight     float64 `yaml:"mit_weight" json:"mit_weight"`
	ORTWeight     float64 `yaml:"ort_weight" json:"ort_weight"`
	Seed          uint64  `yaml:"-" json:"-"`
}

// Spec identifies a model for checkpoint compatibility checks.
type Spec struct {
	Architecture string
	Task         Task
	Hyper        Hyper
}

// Context carries per-call execution state into Forward and Loss.
//
// Tape is nil (or not recording) during inference. RNG is the only source of
// randomness a model may use, so runs are reproducible from the seed.
type Context struct {
	Tape     *autodiff.Tape
	Training bool
	RNG      *rand.Rand
}

// Inference returns a context with no tape and no randomness.
func Inference() *Context { return &Context{} }

// Output is what Forward produces. Models fill the fields their task uses.
type Output struct {
	Values *tensor.Tensor // Reconstruction [B, T, F] or forecast [B, P, F]
	Logits *tensor.Tensor // [B, C]
	Latent *tensor.Tensor // [B, H]
}

// Prediction is the task-shaped result of Predict for one batch.
type Prediction struct {
	Imputation     *tensor.Tensor // [B, T, F]; observed entries equal the input
	Forecast       *tensor.Tensor // [B, P, F]
	Probabilities  *tensor.Tensor // [B, C]
	Classes        []int          // Class id, cluster id, or 0/1 anomaly flag
	Scores         []float64      // Anomaly scores
	Reconstruction *tensor.Tensor // [B, T, F] for reconstruction-based models
}

// Model is the contract between architectures and the training loop.
type Model interface {
	nn.Module

	Name() string
	Task() Task
	Spec() Spec

	// Forward runs the model on b. Computation goes through fc.Tape.
	Forward(fc *Context, b *data.Batch) (*Output, error)

	// Loss returns a scalar that only depends on observed entries of b.
	Loss(fc *Context, out *Output, b *data.Batch) (*tensor.Tensor, error)

	// Predict runs inference on b. It must not mutate model state.
	Predict(b *data.Batch) (*Prediction, error)
}

// Buffered is implemented by models with non-trainable state that must be
// saved with the parameters (k-means centroids, anomaly threshold).
type Buffered interface {
	Buffers() map[string]*tensor.Tensor
	LoadBuffers(map[string]*tensor.Tensor) error
}

// BatchSource yields batches until it returns nil. *data.Iterator is one.
type BatchSource interface {
	Next() *data.Batch
}

// Calibrator is implemented by models that need a pass over the training data
// after fitting.
type Calibrator interface {
	Calibrate(src BatchSource) error
}

// CheckBatch verifies that b matches the model's feature count.
func CheckBatch(m Model, b *data.Batch) error {
	want := m.Spec().Hyper.Features
	if b.Features() != want {
		return errs.DataShape("feature count differs from model", []int{want}, []int{b.Features()})
	}
	return nil
}
