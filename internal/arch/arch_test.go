package arch

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/internal/tensor"
)

// sineBatch builds n samples of f phase-shifted sines over t steps with
// every third entry missing.
func sineBatch(n, t, f int) *data.Batch {
	x := tensor.Zeros(n, t, f)
	m := tensor.Full(1, n, t, f)
	for i := range n {
		for s := range t {
			for j := range f {
				at := (i*t+s)*f + j
				if at%3 == 2 {
					m.Data()[at] = 0
					continue
				}
				x.Data()[at] = math.Sin(float64(s)/2 + float64(i+j))
			}
		}
	}
	return &data.Batch{X: x, Mask: m}
}

func labelled(n, t, f int) *data.Batch {
	b := sineBatch(n, t, f)
	b.Labels = make([]int, n)
	for i := range n {
		b.Labels[i] = i % 2
		if i%2 == 1 {
			for j := i * t * f; j < (i+1)*t*f; j++ {
				b.X.Data()[j] += 2 * b.Mask.Data()[j]
			}
		}
	}
	return b
}

// fitSteps runs plain optimizer steps on one batch and returns the first and
// last loss.
func fitSteps(t *testing.T, m core.Model, b *data.Batch, steps int) (first, last float64) {
	t.Helper()
	opt, err := optim.New(optim.Config{Name: "adam", LR: 0.01}, m.Parameters())
	require.NoError(t, err)
	for i := range steps {
		tape := autodiff.NewTape()
		tape.StartRecording()
		fc := &core.Context{Tape: tape, Training: true, RNG: rand.New(rand.NewPCG(7, uint64(i)))}
		out, err := m.Forward(fc, b)
		require.NoError(t, err)
		loss, err := m.Loss(fc, out, b)
		require.NoError(t, err)
		if i == 0 {
			first = loss.Item()
		}
		last = loss.Item()
		opt.Step(tape.Backward(loss))
	}
	return first, last
}

func TestEveryArchitectureIsRegistered(t *testing.T) {
	for name, task := range map[string]core.Task{
		MLPImputerName:       core.TaskImputation,
		LOCFName:             core.TaskImputation,
		RNNClassifierName:    core.TaskClassification,
		LinearForecasterName: core.TaskForecasting,
		AEClustererName:      core.TaskClustering,
		AEAnomalyName:        core.TaskAnomaly,
	} {
		got, err := core.TaskOf(name)
		require.NoError(t, err, name)
		assert.Equal(t, task, got, name)
	}
}

func TestConstructorsRejectBadHyper(t *testing.T) {
	tests := []struct {
		arch   string
		hyper  core.Hyper
		option string
	}{
		{MLPImputerName, core.Hyper{Features: 2}, "hidden_size"},
		{MLPImputerName, core.Hyper{Features: 2, HiddenSize: 4, Dropout: 1, ORTWeight: 1}, "dropout"},
		{MLPImputerName, core.Hyper{Features: 2, HiddenSize: 4}, "mit_weight"},
		{RNNClassifierName, core.Hyper{Features: 2, HiddenSize: 4, Classes: 1}, "n_classes"},
		{LinearForecasterName, core.Hyper{Steps: 4, Features: 2}, "pred_steps"},
		{AEClustererName, core.Hyper{Steps: 4, Features: 2, HiddenSize: 3}, "n_clusters"},
		{AEAnomalyName, core.Hyper{Steps: 4, Features: 2, HiddenSize: 3}, "contamination"},
		{LOCFName, core.Hyper{}, "n_features"},
	}
	for _, tt := range tests {
		_, err := core.New(tt.arch, tt.hyper)
		var ce *errs.ConfigurationError
		require.ErrorAs(t, err, &ce, tt.arch)
		assert.Equal(t, tt.option, ce.Option, tt.arch)
	}
}

func TestStepInputsLayout(t *testing.T) {
	b := &data.Batch{
		X:    tensor.MustFromSlice([]float64{1, 2, 3, 4}, 1, 2, 2),
		Mask: tensor.MustFromSlice([]float64{1, 0, 1, 1}, 1, 2, 2),
	}
	in := stepInputs(b)
	assert.Equal(t, tensor.Shape{2, 4}, in.Shape())
	assert.Equal(t, []float64{1, 0, 1, 0, 3, 4, 1, 1}, in.Data())
	assert.Equal(t, tensor.Shape{1, 8}, flatInputs(b).Shape())
}

func TestLOCF(t *testing.T) {
	// Feature 0: gap in the middle and a leading gap. Feature 1: never observed.
	b := &data.Batch{
		X: tensor.MustFromSlice([]float64{
			0, 0,
			5, 0,
			0, 0,
			7, 0,
		}, 1, 4, 2),
		Mask: tensor.MustFromSlice([]float64{
			0, 0,
			1, 0,
			0, 0,
			1, 0,
		}, 1, 4, 2),
	}
	m, err := NewLOCF(core.Hyper{Features: 2})
	require.NoError(t, err)
	p, err := m.Predict(b)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 0, 5, 0, 5, 0, 7, 0}, p.Imputation.Data())
	assert.Empty(t, m.Parameters())

	loss, err := m.Loss(core.Inference(), nil, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss.Item())
}

func TestMLPImputerLearnsAndKeepsObserved(t *testing.T) {
	b := sineBatch(8, 6, 2)
	m, err := NewMLPImputer(core.Hyper{Features: 2, HiddenSize: 16, Dropout: 0.1, ORTWeight: 1, MITWeight: 1, Seed: 3})
	require.NoError(t, err)

	first, last := fitSteps(t, m, b, 80)
	assert.Less(t, last, first)

	p, err := m.Predict(b)
	require.NoError(t, err)
	for i, mask := range b.Mask.Data() {
		if mask != 0 {
			assert.Equal(t, b.X.Data()[i], p.Imputation.Data()[i])
		} else {
			assert.Equal(t, p.Reconstruction.Data()[i], p.Imputation.Data()[i])
		}
	}

	_, err = m.Predict(sineBatch(1, 6, 3))
	assert.ErrorIs(t, err, errs.ErrDataShape)
}

func TestMLPImputerLossIgnoresMissingTargets(t *testing.T) {
	b := sineBatch(2, 3, 2)
	corrupted := data.MCAR(b.X, b.Mask, 0.5, rand.New(rand.NewPCG(1, 1)))
	b.X, b.Mask = corrupted.X, corrupted.Mask
	b.XIntact, b.IntactMask, b.Indicating = corrupted.XIntact, corrupted.IntactMask, corrupted.Indicating

	m, err := NewMLPImputer(core.Hyper{Features: 2, HiddenSize: 4, ORTWeight: 1, MITWeight: 1})
	require.NoError(t, err)
	out, err := m.Forward(core.Inference(), b)
	require.NoError(t, err)
	want, err := m.Loss(core.Inference(), out, b)
	require.NoError(t, err)

	poisoned := b.Clone()
	for i, ind := range poisoned.Indicating.Data() {
		if ind == 0 && poisoned.IntactMask.Data()[i] == 0 {
			poisoned.XIntact.Data()[i] = math.NaN()
		}
	}
	got, err := m.Loss(core.Inference(), out, poisoned)
	require.NoError(t, err)
	assert.Equal(t, want.Item(), got.Item())
}

func TestRNNClassifierLearnsAndRespectsLengths(t *testing.T) {
	b := labelled(8, 5, 2)
	m, err := NewRNNClassifier(core.Hyper{Features: 2, HiddenSize: 8, Classes: 2, Seed: 1})
	require.NoError(t, err)

	first, last := fitSteps(t, m, b, 60)
	assert.Less(t, last, first)

	p, err := m.Predict(b)
	require.NoError(t, err)
	assert.Len(t, p.Classes, 8)
	for i := range 8 {
		row := p.Probabilities.Data()[i*2 : i*2+2]
		assert.InDelta(t, 1.0, row[0]+row[1], 1e-12)
	}

	// A sample padded past its length predicts like the unpadded sample.
	short := b.Slice(0, 1)
	short.X = tensor.MustFromSlice(short.X.Data()[:4], 1, 2, 2)
	short.Mask = tensor.MustFromSlice(short.Mask.Data()[:4], 1, 2, 2)
	padded := &data.Batch{
		X:       tensor.Zeros(1, 5, 2),
		Mask:    tensor.Zeros(1, 5, 2),
		Lengths: []int{2},
	}
	copy(padded.X.Data(), short.X.Data())
	copy(padded.Mask.Data(), short.Mask.Data())

	want, err := m.Predict(short)
	require.NoError(t, err)
	got, err := m.Predict(padded)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want.Probabilities.Data(), got.Probabilities.Data(), 1e-12)

	_, err = m.Loss(core.Inference(), &core.Output{}, &data.Batch{X: tensor.Zeros(2, 1, 2)})
	assert.ErrorIs(t, err, errs.ErrDataShape)
}

func TestLinearForecaster(t *testing.T) {
	b := sineBatch(6, 4, 2)
	b.Target = tensor.Full(0.5, 6, 2, 2)
	b.TargetMask = tensor.Full(1, 6, 2, 2)
	b.TargetMask.Data()[0] = 0
	b.Target.Data()[0] = math.NaN()

	m, err := NewLinearForecaster(core.Hyper{Steps: 4, Features: 2, PredSteps: 2, Seed: 5})
	require.NoError(t, err)
	first, last := fitSteps(t, m, b, 50)
	assert.False(t, math.IsNaN(last))
	assert.Less(t, last, first)

	p, err := m.Predict(b)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{6, 2, 2}, p.Forecast.Shape())

	_, err = m.Predict(sineBatch(1, 3, 2))
	assert.ErrorIs(t, err, errs.ErrDataShape)

	b.Target = nil
	out, err := m.Forward(core.Inference(), b)
	require.NoError(t, err)
	_, err = m.Loss(core.Inference(), out, b)
	assert.ErrorIs(t, err, errs.ErrDataShape)
}

type batches struct{ queue []*data.Batch }

func (s *batches) Next() *data.Batch {
	if len(s.queue) == 0 {
		return nil
	}
	b := s.queue[0]
	s.queue = s.queue[1:]
	return b
}

// twoGroups has samples 0..n/2-1 at +1 and the rest at -1.
func twoGroups(n, t, f int) *data.Batch {
	x := tensor.Zeros(n, t, f)
	for i := range n {
		v := 1.0
		if i >= n/2 {
			v = -1
		}
		for j := i * t * f; j < (i+1)*t*f; j++ {
			x.Data()[j] = v
		}
	}
	return &data.Batch{X: x, Mask: tensor.Full(1, n, t, f)}
}

func TestAEClustererSeparatesGroups(t *testing.T) {
	h := core.Hyper{Steps: 3, Features: 2, HiddenSize: 4, Clusters: 2, Seed: 9}
	m, err := NewAEClusterer(h)
	require.NoError(t, err)
	b := twoGroups(8, 3, 2)
	fitSteps(t, m, b, 20)

	require.NoError(t, m.Calibrate(&batches{queue: []*data.Batch{b.Slice(0, 4), b.Slice(4, 8)}}))
	p, err := m.Predict(b)
	require.NoError(t, err)
	for i := 1; i < 4; i++ {
		assert.Equal(t, p.Classes[0], p.Classes[i])
		assert.Equal(t, p.Classes[4], p.Classes[4+i])
	}
	assert.NotEqual(t, p.Classes[0], p.Classes[4])

	// Centroids travel with the buffers.
	other, err := NewAEClusterer(h)
	require.NoError(t, err)
	require.NoError(t, other.LoadBuffers(m.Buffers()))
	assert.Equal(t, m.Buffers()[centroidsBuffer].Data(), other.Buffers()[centroidsBuffer].Data())
	assert.ErrorIs(t, other.LoadBuffers(map[string]*tensor.Tensor{}), errs.ErrCompatibility)
	assert.ErrorIs(t, other.LoadBuffers(map[string]*tensor.Tensor{centroidsBuffer: tensor.Zeros(3, 4)}), errs.ErrCompatibility)

	err = m.Calibrate(&batches{queue: []*data.Batch{b.Slice(0, 1)}})
	assert.ErrorIs(t, err, errs.ErrDataShape)
}

func TestAEAnomalyThresholdIsQuantile(t *testing.T) {
	h := core.Hyper{Steps: 4, Features: 2, HiddenSize: 3, Contamination: 0.1, Seed: 2}
	m, err := NewAEAnomaly(h)
	require.NoError(t, err)
	b := sineBatch(10, 4, 2)

	p, err := m.Predict(b)
	require.NoError(t, err)
	assert.Equal(t, make([]int, 10), p.Classes)

	require.NoError(t, m.Calibrate(&batches{queue: []*data.Batch{b}}))
	p, err = m.Predict(b)
	require.NoError(t, err)

	sorted := append([]float64(nil), p.Scores...)
	sort.Float64s(sorted)
	assert.Equal(t, stat.Quantile(0.9, stat.Empirical, sorted, nil), m.Threshold())

	flagged := 0
	for i, c := range p.Classes {
		assert.Equal(t, p.Scores[i] > m.Threshold(), c == 1)
		flagged += c
	}
	assert.LessOrEqual(t, flagged, 1)

	restored, err := NewAEAnomaly(h)
	require.NoError(t, err)
	require.NoError(t, restored.LoadBuffers(m.Buffers()))
	assert.Equal(t, m.Threshold(), restored.Threshold())
}

func TestKMeans(t *testing.T) {
	points := [][]float64{{0, 0}, {0, 1}, {10, 10}, {10, 11}, {0, 0.5}}
	centroids, assign := kmeans(points, 2, rand.New(rand.NewPCG(1, 1)))
	require.Len(t, centroids, 2)
	assert.Equal(t, assign[0], assign[1])
	assert.Equal(t, assign[0], assign[4])
	assert.Equal(t, assign[2], assign[3])
	assert.NotEqual(t, assign[0], assign[2])
	assert.InDeltaSlice(t, []float64{10, 10.5}, centroids[assign[2]], 1e-12)

	// More clusters than distinct points still terminates.
	centroids, _ = kmeans([][]float64{{1}, {1}}, 2, rand.New(rand.NewPCG(1, 1)))
	assert.Len(t, centroids, 2)
}
