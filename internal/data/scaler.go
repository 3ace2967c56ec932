package data

import (
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Scaler standardizes each feature with statistics of its observed entries.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-feature mean and population standard deviation over
// the observed entries of obs. A feature that is never observed, or constant,
// gets mean 0 / std 1 respectively so transforming it is harmless.
func FitScaler(obs *Observation) *Scaler {
	features := obs.Features()
	s := &Scaler{Mean: make([]float64, features), Std: make([]float64, features)}
	values := make([][]float64, features)
	xd, md := obs.X.Data(), obs.Mask.Data()
	for i, m := range md {
		if m != 0 {
			f := i % features
			values[f] = append(values[f], xd[i])
		}
	}
	for f, v := range values {
		s.Std[f] = 1
		if len(v) == 0 {
			continue
		}
		mean, std := stat.PopMeanStdDev(v, nil)
		s.Mean[f] = mean
		if std > 0 {
			s.Std[f] = std
		}
	}
	return s
}

// Transform returns a standardized copy of obs. Missing entries become 0.
func (s *Scaler) Transform(obs *Observation) (*Observation, error) {
	if err := s.check(obs.Features()); err != nil {
		return nil, err
	}
	x := obs.X.Clone()
	features := len(s.Mean)
	xd, md := x.Data(), obs.Mask.Data()
	for i := range xd {
		if md[i] == 0 {
			xd[i] = 0
			continue
		}
		f := i % features
		xd[i] = (xd[i] - s.Mean[f]) / s.Std[f]
	}
	return &Observation{X: x, Mask: obs.Mask, Lengths: obs.Lengths}, nil
}

// TransformDataset scales the inputs, truth, and forecasting targets of ds.
func (s *Scaler) TransformDataset(ds *Dataset) (*Dataset, error) {
	out := *ds
	var err error
	if out.Obs, err = s.Transform(ds.Obs); err != nil {
		return nil, err
	}
	if ds.Truth != nil {
		if out.Truth, err = s.Transform(ds.Truth); err != nil {
			return nil, err
		}
	}
	if ds.Target != nil {
		if out.Target, err = s.Transform(ds.Target); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// Inverse maps a standardized tensor [..., F] back to the original scale, in place.
func (s *Scaler) Inverse(t *tensor.Tensor) {
	features := len(s.Mean)
	if features == 0 {
		return
	}
	d := t.Data()
	for i := range d {
		f := i % features
		d[i] = d[i]*s.Std[f] + s.Mean[f]
	}
}

// Tensors returns mean and std as [F] tensors, for storing as model buffers.
func (s *Scaler) Tensors() (mean, std *tensor.Tensor) {
	mean, _ = tensor.FromSlice(s.Mean, tensor.Shape{len(s.Mean)})
	std, _ = tensor.FromSlice(s.Std, tensor.Shape{len(s.Std)})
	return mean, std
}

// ScalerFromTensors restores a Scaler saved with Tensors.
func ScalerFromTensors(mean, std *tensor.Tensor) (*Scaler, error) {
	if mean.Len() != std.Len() {
		return nil, errs.DataShape("scaler statistics", []int{mean.Len()}, []int{std.Len()})
	}
	return &Scaler{
		Mean: append([]float64(nil), mean.Data()...),
		Std:  append([]float64(nil), std.Data()...),
	}, nil
}

func (s *Scaler) check(features int) error {
	if features != len(s.Mean) {
		return errs.DataShape("feature count differs from scaler", []int{len(s.Mean)}, []int{features})
	}
	return nil
}
