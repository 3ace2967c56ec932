package data

import (
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Window slices one long series x/mask [T, F] into samples of windowLen steps
// taken every stride steps. A trailing remainder shorter than windowLen is
// dropped.
func Window(x, mask *tensor.Tensor, windowLen, stride int) (*Observation, error) {
	obs, _, err := window(x, mask, windowLen, 0, stride)
	return obs, err
}

// WindowForecast slices x/mask [T, F] into input windows of inputLen steps,
// each paired with the following horizon steps as the forecasting target.
func WindowForecast(x, mask *tensor.Tensor, inputLen, horizon, stride int) (*Dataset, error) {
	if horizon <= 0 {
		return nil, errs.Configuration("pred_steps", "must be positive, got %d", horizon)
	}
	obs, target, err := window(x, mask, inputLen, horizon, stride)
	if err != nil {
		return nil, err
	}
	return &Dataset{Obs: obs, Target: target}, nil
}

func window(x, mask *tensor.Tensor, windowLen, horizon, stride int) (*Observation, *Observation, error) {
	if windowLen <= 0 {
		return nil, nil, errs.Configuration("n_steps", "window length must be positive, got %d", windowLen)
	}
	if stride <= 0 {
		return nil, nil, errs.Configuration("stride", "must be positive, got %d", stride)
	}
	if x.Rank() != 2 {
		return nil, nil, errs.DataShape("series must be [steps, features]", nil, x.Shape())
	}
	if !x.Shape().Equal(mask.Shape()) {
		return nil, nil, errs.DataShape("mask shape differs from values", x.Shape(), mask.Shape())
	}
	total, features := x.Dim(0), x.Dim(1)
	span := windowLen + horizon
	if total < span {
		return nil, nil, errs.DataShape("series shorter than one window", []int{span}, []int{total})
	}

	n := (total-span)/stride + 1
	inX, inM := tensor.Zeros(n, windowLen, features), tensor.Zeros(n, windowLen, features)
	var outX, outM *tensor.Tensor
	if horizon > 0 {
		outX, outM = tensor.Zeros(n, horizon, features), tensor.Zeros(n, horizon, features)
	}

	for i := 0; i < n; i++ {
		start := i * stride
		copyObservedRange(inX, inM, i, x, mask, start, windowLen)
		if horizon > 0 {
			copyObservedRange(outX, outM, i, x, mask, start+windowLen, horizon)
		}
	}

	inObs, err := NewObservation(inX, inM)
	if err != nil {
		return nil, nil, err
	}
	if horizon == 0 {
		return inObs, nil, nil
	}
	outObs, err := NewObservation(outX, outM)
	if err != nil {
		return nil, nil, err
	}
	return inObs, outObs, nil
}

// copyObservedRange copies steps [start, start+steps) of a [T, F] series into
// sample i of a [N, steps, F] tensor, zeroing missing values.
func copyObservedRange(dstX, dstM *tensor.Tensor, i int, x, mask *tensor.Tensor, start, steps int) {
	features := x.Dim(1)
	src := start * features
	dst := i * steps * features
	xd, md := dstX.Data(), dstM.Data()
	for j := 0; j < steps*features; j++ {
		if mask.Data()[src+j] != 0 {
			xd[dst+j] = x.Data()[src+j]
			md[dst+j] = 1
		}
	}
}
