package metrics

import (
	"math"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Regression accumulates masked error sums.
type Regression struct {
	absErr float64
	sqErr  float64
	absRef float64
	count  float64
}

// Add accumulates the entries of pred and ref where mask is 1.
func (r *Regression) Add(pred, ref, mask *tensor.Tensor) error {
	if !pred.Shape().Equal(ref.Shape()) || !pred.Shape().Equal(mask.Shape()) {
		return errs.DataShape("prediction, reference and mask", ref.Shape(), pred.Shape())
	}
	pd, rd, md := pred.Data(), ref.Data(), mask.Data()
	for i, m := range md {
		if m == 0 {
			continue
		}
		e := pd[i] - rd[i]
		r.absErr += math.Abs(e)
		r.sqErr += e * e
		r.absRef += math.Abs(rd[i])
		r.count++
	}
	return nil
}

// Count returns the number of entries seen.
func (r *Regression) Count() float64 { return r.count }

// MAE is the mean absolute error, or NaN before any entry was seen.
func (r *Regression) MAE() float64 { return ratio(r.absErr, r.count) }

// MSE is the mean squared error.
func (r *Regression) MSE() float64 { return ratio(r.sqErr, r.count) }

// RMSE is the root of MSE.
func (r *Regression) RMSE() float64 { return math.Sqrt(r.MSE()) }

// MRE is the sum of absolute errors relative to the sum of absolute
// reference values.
func (r *Regression) MRE() float64 { return ratio(r.absErr, r.absRef) }

// Reset clears the sums.
func (r *Regression) Reset() { *r = Regression{} }

func (r *Regression) result() Result {
	return Result{MAE: r.MAE(), MSE: r.MSE(), RMSE: r.RMSE(), MRE: r.MRE()}
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

type imputationEvaluator struct {
	monitor Monitor
	reg     Regression
}

func (e *imputationEvaluator) Reset()           { e.reg.Reset() }
func (e *imputationEvaluator) Monitor() Monitor { return e.monitor }
func (e *imputationEvaluator) Result() Result   { return e.reg.result() }

func (e *imputationEvaluator) Update(b *data.Batch, p *core.Prediction) error {
	if p.Imputation == nil {
		return errs.DataShape("imputation prediction missing", nil, nil)
	}
	target, mask := b.ImputationTarget()
	pred := p.Imputation
	// Observed entries of an imputation equal the input, so without held-out
	// entries the raw reconstruction is scored instead.
	if b.Truth == nil && b.Indicating == nil && p.Reconstruction != nil {
		pred = p.Reconstruction
	}
	return e.reg.Add(pred, target, mask)
}

type forecastEvaluator struct {
	monitor Monitor
	reg     Regression
}

func (e *forecastEvaluator) Reset()           { e.reg.Reset() }
func (e *forecastEvaluator) Monitor() Monitor { return e.monitor }
func (e *forecastEvaluator) Result() Result   { return e.reg.result() }

func (e *forecastEvaluator) Update(b *data.Batch, p *core.Prediction) error {
	if b.Target == nil {
		return errs.DataShape("forecast evaluation needs targets", nil, nil)
	}
	if p.Forecast == nil {
		return errs.DataShape("forecast prediction missing", nil, nil)
	}
	return e.reg.Add(p.Forecast, b.Target, b.TargetMask)
}
