package arch

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// AEAnomalyName is the registry name of AEAnomaly.
const AEAnomalyName = "ae_anomaly"

const thresholdBuffer = "threshold"

func init() {
	core.Register(AEAnomalyName, core.TaskAnomaly, func(h core.Hyper) (core.Model, error) {
		return NewAEAnomaly(h)
	})
}

// AEAnomaly scores a sample by how badly a masked autoencoder reconstructs
// its observed entries. Samples scoring above the threshold are flagged.
//
// Calibrate places the threshold at the (1 - Contamination) quantile of the
// training scores. Until then the threshold is +Inf and nothing is flagged.
type AEAnomaly struct {
	ae *autoencoder

	mu        sync.RWMutex
	threshold float64
}

// NewAEAnomaly builds an AEAnomaly. Contamination must be in (0, 1).
func NewAEAnomaly(h core.Hyper) (*AEAnomaly, error) {
	if h.Contamination <= 0 || h.Contamination >= 1 {
		return nil, errs.Configuration("contamination", "must be in (0, 1), got %g", h.Contamination)
	}
	ae, err := newAutoencoder(h, saltAnomaly)
	if err != nil {
		return nil, err
	}
	return &AEAnomaly{ae: ae, threshold: math.Inf(1)}, nil
}

func (a *AEAnomaly) Parameters() []*nn.Parameter { return a.ae.parameters() }
func (a *AEAnomaly) Name() string                { return AEAnomalyName }
func (a *AEAnomaly) Task() core.Task             { return core.TaskAnomaly }

func (a *AEAnomaly) Spec() core.Spec {
	return core.Spec{Architecture: AEAnomalyName, Task: core.TaskAnomaly, Hyper: a.ae.hyper}
}

func (a *AEAnomaly) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	return a.ae.forward(fc, b)
}

func (a *AEAnomaly) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	return a.ae.loss(fc, out, b), nil
}

// Threshold returns the current decision threshold.
func (a *AEAnomaly) Threshold() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.threshold
}

// Calibrate sets the threshold from the scores of every sample in src.
func (a *AEAnomaly) Calibrate(src core.BatchSource) error {
	var scores []float64
	for b := src.Next(); b != nil; b = src.Next() {
		out, err := a.ae.forward(core.Inference(), b)
		if err != nil {
			return err
		}
		scores = append(scores, sampleMSE(out.Values, b.X, b.Mask)...)
	}
	if len(scores) == 0 {
		return errs.DataShape("anomaly calibration needs samples", []int{1}, []int{0})
	}
	sort.Float64s(scores)
	q := stat.Quantile(1-a.ae.hyper.Contamination, stat.Empirical, scores, nil)
	a.mu.Lock()
	a.threshold = q
	a.mu.Unlock()
	return nil
}

// Predict implements core.Model. Scores holds the per-sample reconstruction
// MSE and Classes the 0/1 anomaly flag.
func (a *AEAnomaly) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := a.ae.forward(core.Inference(), b)
	if err != nil {
		return nil, err
	}
	scores := sampleMSE(out.Values, b.X, b.Mask)
	threshold := a.Threshold()
	flags := make([]int, len(scores))
	for i, s := range scores {
		if s > threshold {
			flags[i] = 1
		}
	}
	return &core.Prediction{Scores: scores, Classes: flags, Reconstruction: out.Values}, nil
}

// Buffers implements core.Buffered.
func (a *AEAnomaly) Buffers() map[string]*tensor.Tensor {
	return map[string]*tensor.Tensor{thresholdBuffer: tensor.Scalar(a.Threshold())}
}

// LoadBuffers implements core.Buffered.
func (a *AEAnomaly) LoadBuffers(buffers map[string]*tensor.Tensor) error {
	t, ok := buffers[thresholdBuffer]
	if !ok {
		return fmt.Errorf("%w: missing buffer %q", errs.ErrCompatibility, thresholdBuffer)
	}
	if t.Len() != 1 {
		return errs.Compatibility(thresholdBuffer, "[1]", fmt.Sprint(t.Shape()))
	}
	a.mu.Lock()
	a.threshold = t.Data()[0]
	a.mu.Unlock()
	return nil
}
