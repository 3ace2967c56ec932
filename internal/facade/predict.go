package facade

import (
	"context"
	"fmt"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Prediction holds the outputs for a whole dataset, in input order. Only the
// fields of the model's task are set.
type Prediction struct {
	Imputation     *tensor.Tensor // [N, T, F]
	Forecast       *tensor.Tensor // [N, P, F]
	Probabilities  *tensor.Tensor // [N, C]
	Classes        []int          // [N]
	Scores         []float64      // [N]
	Reconstruction *tensor.Tensor // [N, T, F]
}

// Predict runs inference over every sample of ds. Values are returned on the
// scale of the input even when the model was fitted on normalized data.
func (m *Model) Predict(ctx context.Context, ds *data.Dataset) (*Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.model == nil {
		return nil, errs.ErrNotFitted
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if m.scaler != nil {
		var err error
		if ds, err = m.scaler.TransformDataset(ds); err != nil {
			return nil, err
		}
	}

	var acc accumulator
	it := m.inferenceLoader(ds).Epoch(0)
	for b := it.Next(); b != nil; b = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b = m.device.Move(b)
		p, err := m.model.Predict(b)
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		acc.add(p)
	}
	out := acc.result(ds.N())
	if m.scaler != nil {
		for _, t := range []*tensor.Tensor{out.Imputation, out.Forecast, out.Reconstruction} {
			if t != nil {
				m.scaler.Inverse(t)
			}
		}
	}
	return out, nil
}

// Impute returns ds with every missing entry filled. Observed entries keep
// their input values. Only imputation models support it.
func (m *Model) Impute(ctx context.Context, ds *data.Dataset) (*tensor.Tensor, error) {
	if m.task != core.TaskImputation {
		return nil, errs.UnsupportedTask("impute", string(m.task))
	}
	p, err := m.Predict(ctx, ds)
	if err != nil {
		return nil, err
	}
	// Inverse scaling can perturb observed values in the last bits.
	return merge(ds.Obs, p.Imputation), nil
}

func merge(obs *data.Observation, imputed *tensor.Tensor) *tensor.Tensor {
	out := imputed.Clone()
	x, mask, o := obs.X.Data(), obs.Mask.Data(), out.Data()
	for i, v := range mask {
		if v != 0 {
			o[i] = x[i]
		}
	}
	return out
}

// accumulator concatenates per-batch predictions along the sample axis.
type accumulator struct {
	imputation, forecast, probabilities, reconstruction rows
	classes                                             []int
	scores                                              []float64
}

type rows struct {
	data  []float64
	inner tensor.Shape
}

func (r *rows) add(t *tensor.Tensor) {
	if t == nil {
		return
	}
	r.inner = t.Shape()[1:].Clone()
	r.data = append(r.data, t.Data()...)
}

func (r *rows) tensor(n int) *tensor.Tensor {
	if r.inner == nil {
		return nil
	}
	shape := append(tensor.Shape{n}, r.inner...)
	t, err := tensor.FromSlice(r.data, shape)
	if err != nil {
		return nil
	}
	return t
}

func (a *accumulator) add(p *core.Prediction) {
	a.imputation.add(p.Imputation)
	a.forecast.add(p.Forecast)
	a.probabilities.add(p.Probabilities)
	a.reconstruction.add(p.Reconstruction)
	a.classes = append(a.classes, p.Classes...)
	a.scores = append(a.scores, p.Scores...)
}

func (a *accumulator) result(n int) *Prediction {
	return &Prediction{
		Imputation:     a.imputation.tensor(n),
		Forecast:       a.forecast.tensor(n),
		Probabilities:  a.probabilities.tensor(n),
		Reconstruction: a.reconstruction.tensor(n),
		Classes:        a.classes,
		Scores:         a.scores,
	}
}
