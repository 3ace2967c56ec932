package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

func TestRegressionMasked(t *testing.T) {
	pred := tensor.MustFromSlice([]float64{1, 2, 100, 4}, 4)
	ref := tensor.MustFromSlice([]float64{2, 2, math.NaN(), 2}, 4)
	mask := tensor.MustFromSlice([]float64{1, 1, 0, 1}, 4)

	var r Regression
	require.NoError(t, r.Add(pred, ref, mask))
	assert.InDelta(t, 1.0, r.MAE(), 1e-12)   // (1+0+2)/3
	assert.InDelta(t, 5.0/3, r.MSE(), 1e-12) // (1+0+4)/3
	assert.InDelta(t, math.Sqrt(5.0/3), r.RMSE(), 1e-12)
	assert.InDelta(t, 3.0/6, r.MRE(), 1e-12)
	assert.Equal(t, 3.0, r.Count())

	r.Reset()
	assert.True(t, math.IsNaN(r.MAE()))
}

func imputationBatches(t *testing.T, sizes []int) []*data.Batch {
	t.Helper()
	n := 0
	for _, s := range sizes {
		n += s
	}
	truth := make([]float64, n*3)
	pred := make([]float64, n*3)
	mask := make([]float64, n*3)
	for i := range truth {
		truth[i] = float64(i % 7)
		pred[i] = float64(i%5) * 0.5
		if i%3 != 0 {
			mask[i] = 1
		}
	}
	var batches []*data.Batch
	start := 0
	for _, s := range sizes {
		end := start + s
		x := tensor.MustFromSlice(pred[start*3:end*3], s, 3, 1)
		m := tensor.MustFromSlice(mask[start*3:end*3], s, 3, 1)
		batches = append(batches, &data.Batch{
			X:          x,
			Mask:       m,
			XIntact:    tensor.MustFromSlice(truth[start*3:end*3], s, 3, 1),
			IntactMask: tensor.Full(1, s, 3, 1),
			Indicating: m,
		})
		start = end
	}
	return batches
}

func TestImputationBatchSizeInvariant(t *testing.T) {
	run := func(sizes []int) Result {
		ev, err := New(core.TaskImputation, "", 0)
		require.NoError(t, err)
		for _, b := range imputationBatches(t, sizes) {
			require.NoError(t, ev.Update(b, &core.Prediction{Imputation: b.X}))
		}
		return ev.Result()
	}
	whole := run([]int{10})
	split := run([]int{3, 3, 3, 1})
	for _, name := range whole.Names() {
		assert.InDelta(t, whole[name], split[name], 1e-12, name)
	}
}

func TestImputationScoresReconstructionWithoutHeldOut(t *testing.T) {
	ev, err := New(core.TaskImputation, MSE, 0)
	require.NoError(t, err)
	b := &data.Batch{
		X:    tensor.MustFromSlice([]float64{1, 2}, 1, 2, 1),
		Mask: tensor.MustFromSlice([]float64{1, 0}, 1, 2, 1),
	}
	p := &core.Prediction{
		Imputation:     tensor.MustFromSlice([]float64{1, 5}, 1, 2, 1),
		Reconstruction: tensor.MustFromSlice([]float64{3, 5}, 1, 2, 1),
	}
	require.NoError(t, ev.Update(b, p))
	assert.InDelta(t, 4.0, ev.Result()[MSE], 1e-12)
}

func TestConfusion(t *testing.T) {
	c := NewConfusion(3)
	// ref, pred
	for _, pair := range [][2]int{{0, 0}, {0, 0}, {0, 1}, {1, 1}, {1, 1}, {2, 1}} {
		c.Add(pair[0], pair[1])
	}
	assert.InDelta(t, 4.0/6, c.Accuracy(), 1e-12)

	p, r, f := c.ClassScores(1)
	assert.InDelta(t, 0.5, p, 1e-12)
	assert.InDelta(t, 1.0, r, 1e-12)
	assert.InDelta(t, 2.0/3, f, 1e-12)

	// Class 2 is never predicted: undefined precision counts as 0.
	p, r, f = c.ClassScores(2)
	assert.Zero(t, p)
	assert.Zero(t, r)
	assert.Zero(t, f)

	_, _, macroF1 := c.Macro()
	assert.InDelta(t, (0.8+2.0/3)/3, macroF1, 1e-12)
}

func TestAUC(t *testing.T) {
	assert.InDelta(t, 1.0, AUC([]float64{0.1, 0.2, 0.8, 0.9}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.0, AUC([]float64{0.9, 0.8, 0.2, 0.1}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 0.5, AUC([]float64{0.5, 0.5, 0.5, 0.5}, []int{0, 1, 0, 1}), 1e-12)
	assert.InDelta(t, 0.75, AUC([]float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}), 1e-12)
	assert.True(t, math.IsNaN(AUC([]float64{0.1, 0.2}, []int{1, 1})))
}

func TestClassificationEvaluator(t *testing.T) {
	ev, err := New(core.TaskClassification, "", 2)
	require.NoError(t, err)
	assert.Equal(t, Monitor{Name: CrossEntropy, Minimize: true}, ev.Monitor())

	b := &data.Batch{X: tensor.Zeros(3, 1, 1), Labels: []int{0, 1, 1}}
	p := &core.Prediction{Probabilities: tensor.MustFromSlice([]float64{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
	}, 3, 2)}
	require.NoError(t, ev.Update(b, p))
	r := ev.Result()
	assert.InDelta(t, -(math.Log(0.9)+math.Log(0.8)+math.Log(0.4))/3, r[CrossEntropy], 1e-12)
	assert.InDelta(t, 2.0/3, r[Accuracy], 1e-12)
	assert.InDelta(t, 1.0, r[ROCAUC], 1e-12)

	assert.ErrorIs(t, ev.Update(&data.Batch{X: tensor.Zeros(1, 1, 1)}, p), errs.ErrDataShape)
	ev.Reset()
	assert.True(t, math.IsNaN(ev.Result()[Accuracy]))
}

func TestClusteringScores(t *testing.T) {
	truth := []int{0, 0, 0, 1, 1, 1}
	assert.InDelta(t, 1.0, RandScore(truth, []int{5, 5, 5, 2, 2, 2}), 1e-12)
	pred := []int{0, 0, 1, 1, 1, 1}
	assert.InDelta(t, (15+2*(1+0+3)-(3+3)-(1+6))/15.0, RandScore(truth, pred), 1e-12)
	assert.InDelta(t, 5.0/6, ClusterPurity(truth, pred), 1e-12)
}

func TestAnomalyEvaluator(t *testing.T) {
	ev, err := New(core.TaskAnomaly, F1, 0)
	require.NoError(t, err)
	assert.False(t, ev.Monitor().Minimize)

	b := &data.Batch{X: tensor.Zeros(4, 1, 1), Mask: tensor.Full(1, 4, 1, 1), Labels: []int{0, 1, 1, 0}}
	require.NoError(t, ev.Update(b, &core.Prediction{
		Classes:        []int{0, 1, 0, 1},
		Reconstruction: tensor.Full(1, 4, 1, 1),
	}))
	r := ev.Result()
	assert.InDelta(t, 0.5, r[Precision], 1e-12)
	assert.InDelta(t, 0.5, r[Recall], 1e-12)
	assert.InDelta(t, 0.5, r[F1], 1e-12)
	assert.InDelta(t, 1.0, r[ReconMSE], 1e-12)
}

func TestNewRejectsUnknownMonitor(t *testing.T) {
	_, err := New(core.TaskImputation, Accuracy, 0)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New(core.TaskForecasting, "smape", 0)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestMonitorImproved(t *testing.T) {
	lower := Monitor{Name: MAE, Minimize: true}
	assert.True(t, lower.Improved(0.4, 0.5, 0))
	assert.False(t, lower.Improved(0.5, 0.5, 0))
	assert.False(t, lower.Improved(0.45, 0.5, 0.1))
	assert.True(t, lower.Improved(0.4, math.Inf(1), 0))
	assert.False(t, lower.Improved(math.NaN(), 0.5, 0))
	assert.True(t, lower.Improved(0.9, math.NaN(), 0))

	maxm := Monitor{Name: Accuracy}
	assert.True(t, maxm.Improved(0.6, 0.5, 0))
	assert.Equal(t, math.Inf(-1), maxm.Worst())
}
