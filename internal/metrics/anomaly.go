package metrics

import (
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
)

type anomalyEvaluator struct {
	monitor   Monitor
	recon     Regression
	confusion *Confusion
}

func (e *anomalyEvaluator) Monitor() Monitor { return e.monitor }

func (e *anomalyEvaluator) Reset() {
	e.recon.Reset()
	e.confusion = nil
}

func (e *anomalyEvaluator) Update(b *data.Batch, p *core.Prediction) error {
	if len(p.Classes) != b.Size() {
		return errs.DataShape("anomaly flags", []int{b.Size()}, []int{len(p.Classes)})
	}
	if p.Reconstruction != nil {
		if err := e.recon.Add(p.Reconstruction, b.X, b.Mask); err != nil {
			return err
		}
	}
	if b.Labels == nil {
		return nil
	}
	if e.confusion == nil {
		e.confusion = NewConfusion(2)
	}
	for i, label := range b.Labels {
		e.confusion.Add(flag(label), flag(p.Classes[i]))
	}
	return nil
}

// Result reports precision, recall and F1 of the anomalous class when
// labels were seen.
func (e *anomalyEvaluator) Result() Result {
	r := Result{ReconMSE: e.recon.MSE()}
	if e.confusion != nil {
		p, rc, f1 := e.confusion.ClassScores(1)
		r[Precision], r[Recall], r[F1] = p, rc, f1
	}
	return r
}

func flag(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}
