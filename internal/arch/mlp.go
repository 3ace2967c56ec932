package arch

import (
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// MLPImputerName is the registry name of MLPImputer.
const MLPImputerName = "mlp_imputer"

func init() {
	core.Register(MLPImputerName, core.TaskImputation, func(h core.Hyper) (core.Model, error) {
		return NewMLPImputer(h)
	})
}

// MLPImputer reconstructs every time step independently from [x⊙m, m] with
// a two-layer perceptron.
//
// It is trained on two objectives, weighted by the ORT and MIT weights:
// reconstructing the observed entries, and recovering the entries that were
// artificially removed from the input (when the batch carries them).
type MLPImputer struct {
	hyper  core.Hyper
	hidden *nn.Linear
	output *nn.Linear
}

// NewMLPImputer builds an MLPImputer. It accepts any number of time steps.
func NewMLPImputer(h core.Hyper) (*MLPImputer, error) {
	if err := requirePositive("n_features", h.Features); err != nil {
		return nil, err
	}
	if err := requirePositive("hidden_size", h.HiddenSize); err != nil {
		return nil, err
	}
	if err := checkDropout(h.Dropout); err != nil {
		return nil, err
	}
	if h.MITWeight < 0 || h.ORTWeight < 0 || h.MITWeight+h.ORTWeight == 0 {
		return nil, errs.Configuration("mit_weight", "loss weights must be non-negative and not both zero (mit %g, ort %g)",
			h.MITWeight, h.ORTWeight)
	}
	rng := initRNG(h.Seed, saltMLP)
	return &MLPImputer{
		hyper:  h,
		hidden: nn.NewLinear("hidden", 2*h.Features, h.HiddenSize, rng),
		output: nn.NewLinear("output", h.HiddenSize, h.Features, rng),
	}, nil
}

// Parameters implements nn.Module.
func (m *MLPImputer) Parameters() []*nn.Parameter {
	return nn.Collect(m.hidden, m.output)
}

// Name implements core.Model.
func (m *MLPImputer) Name() string { return MLPImputerName }

// Task implements core.Model.
func (m *MLPImputer) Task() core.Task { return core.TaskImputation }

// Spec implements core.Model.
func (m *MLPImputer) Spec() core.Spec {
	return core.Spec{Architecture: MLPImputerName, Task: core.TaskImputation, Hyper: m.hyper}
}

// Forward implements core.Model. Values is the reconstruction [B, T, F].
func (m *MLPImputer) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	if err := core.CheckBatch(m, b); err != nil {
		return nil, err
	}
	tape := fc.Tape
	h := tape.ReLU(m.hidden.Forward(tape, stepInputs(b)))
	if fc.Training {
		h = tape.Dropout(h, m.hyper.Dropout, fc.RNG)
	}
	y := m.output.Forward(tape, h)
	return &core.Output{Values: tape.Reshape(y, b.Size(), b.Steps(), b.Features())}, nil
}

// Loss implements core.Model.
func (m *MLPImputer) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	tape := fc.Tape
	loss := tape.Scale(nn.MaskedMAE(tape, out.Values, b.X, b.Mask), m.hyper.ORTWeight)
	if b.Indicating != nil && m.hyper.MITWeight > 0 {
		mit := nn.MaskedMAE(tape, out.Values, b.XIntact, b.Indicating)
		loss = tape.Add(loss, tape.Scale(mit, m.hyper.MITWeight))
	}
	return loss, nil
}

// Predict implements core.Model. Observed entries are returned unchanged.
func (m *MLPImputer) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := m.Forward(core.Inference(), b)
	if err != nil {
		return nil, err
	}
	return &core.Prediction{
		Imputation:     merge(b.X, b.Mask, out.Values),
		Reconstruction: out.Values,
	}, nil
}
