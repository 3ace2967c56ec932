package arch

import (
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// LinearForecasterName is the registry name of LinearForecaster.
const LinearForecasterName = "linear_forecaster"

func init() {
	core.Register(LinearForecasterName, core.TaskForecasting, func(h core.Hyper) (core.Model, error) {
		return NewLinearForecaster(h)
	})
}

// LinearForecaster maps a flattened [x⊙m, m] window of Steps steps to the
// next PredSteps steps.
type LinearForecaster struct {
	hyper core.Hyper
	proj  *nn.Linear
}

// NewLinearForecaster builds a LinearForecaster. The input window length is
// fixed at h.Steps.
func NewLinearForecaster(h core.Hyper) (*LinearForecaster, error) {
	for _, c := range []struct {
		option string
		v      int
	}{{"n_steps", h.Steps}, {"n_features", h.Features}, {"pred_steps", h.PredSteps}} {
		if err := requirePositive(c.option, c.v); err != nil {
			return nil, err
		}
	}
	return &LinearForecaster{
		hyper: h,
		proj:  nn.NewLinear("proj", h.Steps*2*h.Features, h.PredSteps*h.Features, initRNG(h.Seed, saltForecast)),
	}, nil
}

func (l *LinearForecaster) Parameters() []*nn.Parameter { return l.proj.Parameters() }
func (l *LinearForecaster) Name() string                { return LinearForecasterName }
func (l *LinearForecaster) Task() core.Task             { return core.TaskForecasting }

func (l *LinearForecaster) Spec() core.Spec {
	return core.Spec{Architecture: LinearForecasterName, Task: core.TaskForecasting, Hyper: l.hyper}
}

// Forward implements core.Model. Values is the forecast [B, P, F].
func (l *LinearForecaster) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	if err := core.CheckBatch(l, b); err != nil {
		return nil, err
	}
	if err := checkSteps(l.hyper.Steps, b); err != nil {
		return nil, err
	}
	y := l.proj.Forward(fc.Tape, flatInputs(b))
	return &core.Output{Values: fc.Tape.Reshape(y, b.Size(), l.hyper.PredSteps, l.hyper.Features)}, nil
}

// Loss implements core.Model: MSE over the observed entries of the target.
func (l *LinearForecaster) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	if b.Target == nil {
		return nil, errs.DataShape("forecasting batch has no target", []int{l.hyper.PredSteps}, nil)
	}
	if !b.Target.Shape().Equal(out.Values.Shape()) {
		return nil, errs.DataShape("forecast target", out.Values.Shape(), b.Target.Shape())
	}
	return nn.MaskedMSE(fc.Tape, out.Values, b.Target, b.TargetMask), nil
}

// Predict implements core.Model.
func (l *LinearForecaster) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := l.Forward(core.Inference(), b)
	if err != nil {
		return nil, err
	}
	return &core.Prediction{Forecast: out.Values}, nil
}
