package arch

import (
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// LOCFName is the registry name of LOCF.
const LOCFName = "locf"

func init() {
	core.Register(LOCFName, core.TaskImputation, func(h core.Hyper) (core.Model, error) {
		return NewLOCF(h)
	})
}

// LOCF fills each gap with the last observation of the same feature. Leading
// gaps take the first observation instead, and a feature never observed in a
// sample is filled with 0. It has no parameters, so fitting it is a no-op.
type LOCF struct {
	hyper core.Hyper
}

// NewLOCF builds a LOCF imputer for h.Features features.
func NewLOCF(h core.Hyper) (*LOCF, error) {
	if err := requirePositive("n_features", h.Features); err != nil {
		return nil, err
	}
	return &LOCF{hyper: h}, nil
}

// Parameters implements nn.Module.
func (l *LOCF) Parameters() []*nn.Parameter { return nil }

// Name implements core.Model.
func (l *LOCF) Name() string { return LOCFName }

// Task implements core.Model.
func (l *LOCF) Task() core.Task { return core.TaskImputation }

// Spec implements core.Model.
func (l *LOCF) Spec() core.Spec {
	return core.Spec{Architecture: LOCFName, Task: core.TaskImputation, Hyper: l.hyper}
}

// Forward implements core.Model.
func (l *LOCF) Forward(_ *core.Context, b *data.Batch) (*core.Output, error) {
	if err := core.CheckBatch(l, b); err != nil {
		return nil, err
	}
	return &core.Output{Values: fill(b)}, nil
}

// Loss implements core.Model. It is always 0.
func (l *LOCF) Loss(*core.Context, *core.Output, *data.Batch) (*tensor.Tensor, error) {
	return tensor.Scalar(0), nil
}

// Predict implements core.Model.
func (l *LOCF) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := l.Forward(nil, b)
	if err != nil {
		return nil, err
	}
	return &core.Prediction{Imputation: out.Values, Reconstruction: out.Values}, nil
}

func fill(b *data.Batch) *tensor.Tensor {
	out := tensor.Zeros(b.X.Shape()...)
	steps, features := b.Steps(), b.Features()
	x, m, o := b.X.Data(), b.Mask.Data(), out.Data()
	for i := range b.Size() {
		base := i * steps * features
		for f := range features {
			first := -1
			last := 0.0
			for t := range steps {
				at := base + t*features + f
				if m[at] != 0 {
					if first < 0 {
						first = t
					}
					last = x[at]
				}
				o[at] = last
			}
			if first <= 0 {
				continue
			}
			lead := x[base+first*features+f]
			for t := range first {
				o[base+t*features+f] = lead
			}
		}
	}
	return out
}
