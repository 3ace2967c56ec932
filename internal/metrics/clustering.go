package metrics

import (
	"math"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
)

// RandScore is the fraction of sample pairs on which two labelings agree.
// It is NaN for fewer than two samples.
func RandScore(truth, pred []int) float64 {
	n := len(truth)
	if n < 2 {
		return math.NaN()
	}
	joint := make(map[[2]int]int)
	rows := make(map[int]int)
	cols := make(map[int]int)
	for i := range truth {
		joint[[2]int{truth[i], pred[i]}]++
		rows[truth[i]]++
		cols[pred[i]]++
	}
	pairs := func(k int) float64 { return float64(k) * float64(k-1) / 2 }
	var sumJoint, sumRows, sumCols float64
	for _, v := range joint {
		sumJoint += pairs(v)
	}
	for _, v := range rows {
		sumRows += pairs(v)
	}
	for _, v := range cols {
		sumCols += pairs(v)
	}
	total := pairs(n)
	// Agreeing pairs: together in both plus apart in both.
	return (total + 2*sumJoint - sumRows - sumCols) / total
}

// ClusterPurity assigns each cluster its majority label and returns the
// fraction of samples that match it.
func ClusterPurity(truth, pred []int) float64 {
	if len(truth) == 0 {
		return math.NaN()
	}
	counts := make(map[int]map[int]int)
	for i, c := range pred {
		if counts[c] == nil {
			counts[c] = make(map[int]int)
		}
		counts[c][truth[i]]++
	}
	correct := 0
	for _, byLabel := range counts {
		best := 0
		for _, v := range byLabel {
			best = max(best, v)
		}
		correct += best
	}
	return float64(correct) / float64(len(truth))
}

type clusteringEvaluator struct {
	monitor Monitor
	recon   Regression
	truth   []int
	pred    []int
}

func (e *clusteringEvaluator) Monitor() Monitor { return e.monitor }

func (e *clusteringEvaluator) Reset() {
	e.recon.Reset()
	e.truth, e.pred = nil, nil
}

func (e *clusteringEvaluator) Update(b *data.Batch, p *core.Prediction) error {
	if len(p.Classes) != b.Size() {
		return errs.DataShape("cluster assignments", []int{b.Size()}, []int{len(p.Classes)})
	}
	if p.Reconstruction != nil {
		if err := e.recon.Add(p.Reconstruction, b.X, b.Mask); err != nil {
			return err
		}
	}
	if b.Labels != nil {
		e.truth = append(e.truth, b.Labels...)
		e.pred = append(e.pred, p.Classes...)
	}
	return nil
}

func (e *clusteringEvaluator) Result() Result {
	r := Result{ReconMSE: e.recon.MSE()}
	if len(e.truth) > 0 {
		r[RandIndex] = RandScore(e.truth, e.pred)
		r[Purity] = ClusterPurity(e.truth, e.pred)
	}
	return r
}
