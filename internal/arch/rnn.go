package arch

import (
	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// RNNClassifierName is the registry name of RNNClassifier.
const RNNClassifierName = "rnn_classifier"

func init() {
	core.Register(RNNClassifierName, core.TaskClassification, func(h core.Hyper) (core.Model, error) {
		return NewRNNClassifier(h)
	})
}

// RNNClassifier runs an Elman cell over [x⊙m, m] and classifies the hidden
// state at each sample's last valid step.
type RNNClassifier struct {
	hyper core.Hyper
	cell  *nn.RNNCell
	head  *nn.Linear
}

// NewRNNClassifier builds an RNNClassifier. Classes must be at least 2.
func NewRNNClassifier(h core.Hyper) (*RNNClassifier, error) {
	if err := requirePositive("n_features", h.Features); err != nil {
		return nil, err
	}
	if err := requirePositive("hidden_size", h.HiddenSize); err != nil {
		return nil, err
	}
	if h.Classes < 2 {
		return nil, errs.Configuration("n_classes", "need at least 2 classes, got %d", h.Classes)
	}
	if err := checkDropout(h.Dropout); err != nil {
		return nil, err
	}
	rng := initRNG(h.Seed, saltRNN)
	return &RNNClassifier{
		hyper: h,
		cell:  nn.NewRNNCell("rnn", 2*h.Features, h.HiddenSize, rng),
		head:  nn.NewLinear("head", h.HiddenSize, h.Classes, rng),
	}, nil
}

func (r *RNNClassifier) Parameters() []*nn.Parameter {
	return nn.Collect(r.cell, r.head)
}

func (r *RNNClassifier) Name() string    { return RNNClassifierName }
func (r *RNNClassifier) Task() core.Task { return core.TaskClassification }

func (r *RNNClassifier) Spec() core.Spec {
	return core.Spec{Architecture: RNNClassifierName, Task: core.TaskClassification, Hyper: r.hyper}
}

// Forward implements core.Model. Rows shorter than the batch keep their
// hidden state once their length is reached.
func (r *RNNClassifier) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	if err := core.CheckBatch(r, b); err != nil {
		return nil, err
	}
	tape := fc.Tape
	batch, steps := b.Size(), b.Steps()
	in := stepInputs(b)
	h := r.cell.InitialState(batch)
	for t := range steps {
		next := r.cell.Step(tape, stepAt(in, batch, steps, t), h)
		if gate := r.validAt(b, t); gate != nil {
			next = tape.Add(h, tape.Mul(gate, tape.Sub(next, h)))
		}
		h = next
	}
	latent := h
	if fc.Training {
		h = tape.Dropout(h, r.hyper.Dropout, fc.RNG)
	}
	return &core.Output{Logits: r.head.Forward(tape, h), Latent: latent}, nil
}

// validAt returns a [B, H] 0/1 gate for step t, or nil when every row is
// still valid.
func (r *RNNClassifier) validAt(b *data.Batch, t int) *tensor.Tensor {
	if b.Lengths == nil {
		return nil
	}
	hidden := r.cell.HiddenSize()
	var gate *tensor.Tensor
	for i, n := range b.Lengths {
		if t < n {
			continue
		}
		if gate == nil {
			gate = tensor.Full(1, b.Size(), hidden)
		}
		row := gate.Data()[i*hidden : (i+1)*hidden]
		for j := range row {
			row[j] = 0
		}
	}
	return gate
}

func (r *RNNClassifier) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	if len(b.Labels) != b.Size() {
		return nil, errs.DataShape("classification labels", []int{b.Size()}, []int{len(b.Labels)})
	}
	for _, y := range b.Labels {
		if y < 0 || y >= r.hyper.Classes {
			return nil, errs.DataShape("label out of range", []int{r.hyper.Classes}, []int{y})
		}
	}
	return nn.CrossEntropy(fc.Tape, out.Logits, b.Labels), nil
}

// Predict implements core.Model.
func (r *RNNClassifier) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := r.Forward(core.Inference(), b)
	if err != nil {
		return nil, err
	}
	probs := autodiff.Softmax(out.Logits)
	return &core.Prediction{Probabilities: probs, Classes: argmaxRows(probs)}, nil
}
