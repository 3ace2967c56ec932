package trainer

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/device"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/logging"
	"github.com/born-ml/pots/internal/metrics"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/internal/tensor"
)

// denoiser maps each time step through one linear layer and is trained to
// reproduce its observed input.
type denoiser struct {
	lin      *nn.Linear
	features int
	nanLoss  bool
	onStep   func()
}

func newDenoiser(features int) *denoiser {
	return &denoiser{lin: nn.NewLinear("lin", features, features, rand.New(rand.NewPCG(1, 2))), features: features}
}

func (d *denoiser) Parameters() []*nn.Parameter { return d.lin.Parameters() }
func (d *denoiser) Name() string                { return "denoiser" }
func (d *denoiser) Task() core.Task             { return core.TaskImputation }
func (d *denoiser) Spec() core.Spec {
	return core.Spec{Architecture: "denoiser", Task: core.TaskImputation, Hyper: core.Hyper{Features: d.features}}
}

func (d *denoiser) flat(t *tensor.Tensor) *tensor.Tensor {
	return t.MustReshape(t.Dim(0)*t.Dim(1), t.Dim(2))
}

func (d *denoiser) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	if d.onStep != nil {
		d.onStep()
	}
	return &core.Output{Values: d.lin.Forward(fc.Tape, d.flat(b.X))}, nil
}

func (d *denoiser) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	if d.nanLoss {
		return tensor.Scalar(math.NaN()), nil
	}
	return nn.MaskedMSE(fc.Tape, out.Values, d.flat(b.X), d.flat(b.Mask)), nil
}

func (d *denoiser) Predict(b *data.Batch) (*core.Prediction, error) {
	out := d.lin.Forward(nil, d.flat(b.X)).MustReshape(b.X.Shape()...)
	return &core.Prediction{Imputation: out, Reconstruction: out}, nil
}

// scripted returns a fixed sequence of monitored values and snapshots the
// model every time it is asked for a result.
type scripted struct {
	values    []float64
	model     core.Model
	calls     int
	snapshots []map[string]*tensor.Tensor
}

func (s *scripted) Reset()                                     {}
func (s *scripted) Update(*data.Batch, *core.Prediction) error { return nil }
func (s *scripted) Monitor() metrics.Monitor                   { return metrics.Monitor{Name: metrics.MAE, Minimize: true} }
func (s *scripted) Result() metrics.Result {
	v := s.values[s.calls]
	s.calls++
	s.snapshots = append(s.snapshots, nn.StateDict(s.model))
	return metrics.Result{metrics.MAE: v}
}

func loader(t *testing.T, n, steps, features, batch int, shuffle bool) *data.Loader {
	t.Helper()
	x := tensor.Zeros(n, steps, features)
	for i := range x.Data() {
		x.Data()[i] = math.Sin(float64(i) * 0.1)
	}
	obs, err := data.NewObservation(x, tensor.Full(1, n, steps, features))
	require.NoError(t, err)
	l, err := data.NewLoader(&data.Dataset{Obs: obs}, data.LoaderConfig{BatchSize: batch, Shuffle: shuffle, Seed: 3})
	require.NoError(t, err)
	return l
}

func newRun(t *testing.T, model core.Model, placement string) *Run {
	t.Helper()
	opt, err := optim.New(optim.Config{Name: "adam", LR: 0.01}, model.Parameters())
	require.NoError(t, err)
	dev, err := device.NewManager(logging.Discard()).Resolve(placement)
	require.NoError(t, err)
	return &Run{
		Model:       model,
		Optimizer:   opt,
		Device:      dev,
		Checkpoints: checkpoint.NewManager(checkpoint.NewMemoryStore(), "", 0, logging.Discard()),
		Logger:      logging.Discard(),
	}
}

func TestFitStepCountWithoutValidation(t *testing.T) {
	tr, err := New(Config{Epochs: 5, ValidationInterval: 1, MaxGradNorm: 1, MaxNonFinite: 3, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, Idle, tr.State())

	run := newRun(t, newDenoiser(1), "cpu")
	res, err := tr.Fit(context.Background(), run, loader(t, 100, 4, 1, 10, true), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(50), res.Steps)
	assert.Equal(t, int64(50), run.Optimizer.Steps())
	assert.Equal(t, 5, res.Epochs)
	assert.Equal(t, 5, res.BestEpoch)
	assert.Len(t, res.History, 5)
	assert.False(t, res.Stopped)
	assert.Equal(t, Stopped, tr.State())

	// The final state is recorded as best.
	_, meta, err := run.Checkpoints.LoadBest()
	require.NoError(t, err)
	assert.Equal(t, 5, meta.Epoch)
}

func TestFitLossDecreases(t *testing.T) {
	tr, err := New(Config{Epochs: 30, ValidationInterval: 1, MaxGradNorm: 5, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), newRun(t, newDenoiser(2), "cpu"), loader(t, 40, 3, 2, 8, true), nil)
	require.NoError(t, err)
	assert.Less(t, res.History[len(res.History)-1].TrainLoss, res.History[0].TrainLoss)
}

func TestEarlyStoppingRestoresBest(t *testing.T) {
	model := newDenoiser(1)
	run := newRun(t, model, "cpu")
	ev := &scripted{values: []float64{0.50, 0.40, 0.42, 0.43, 0.44}, model: model}
	run.Evaluator = ev

	tr, err := New(Config{Epochs: 5, Patience: 2, ValidationInterval: 1, MaxGradNorm: 1, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), run, loader(t, 20, 2, 1, 5, true), loader(t, 10, 2, 1, 5, false))
	require.NoError(t, err)

	// Best at epoch 2, two non-improving evaluations after it.
	assert.True(t, res.Stopped)
	assert.Equal(t, 4, res.Epochs)
	assert.Equal(t, 4, ev.calls)
	assert.Equal(t, 2, res.BestEpoch)
	assert.Equal(t, 0.40, res.BestValue)
	assert.Equal(t, 2, res.Best.Epoch)
	assert.True(t, res.History[1].Improved)
	assert.False(t, res.History[2].Improved)

	// The model ends in the state it had when epoch 2 was validated.
	for name, want := range ev.snapshots[1] {
		assert.Equal(t, want.Data(), nn.StateDict(model)[name].Data(), name)
	}
	assert.NotEqual(t, ev.snapshots[1]["lin.weight"].Data(), ev.snapshots[3]["lin.weight"].Data())
}

func TestValidationInterval(t *testing.T) {
	model := newDenoiser(1)
	run := newRun(t, model, "cpu")
	ev := &scripted{values: []float64{0.3, 0.2, 0.1}, model: model}
	run.Evaluator = ev

	tr, err := New(Config{Epochs: 5, Patience: 0, ValidationInterval: 2, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), run, loader(t, 10, 2, 1, 5, true), loader(t, 4, 2, 1, 4, false))
	require.NoError(t, err)

	// Epochs 2, 4 and the final epoch 5 are validated.
	assert.Equal(t, 3, ev.calls)
	assert.Nil(t, res.History[0].Metrics)
	assert.NotNil(t, res.History[1].Metrics)
	assert.Equal(t, 5, res.BestEpoch)
}

func TestFallbackPlacementCompletes(t *testing.T) {
	run := newRun(t, newDenoiser(1), "cuda:7")
	require.NotNil(t, run.Device.Fallback)
	assert.Equal(t, device.CPU, run.Device.Placement.Kind)

	tr, err := New(Config{Epochs: 2, ValidationInterval: 1, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), run, loader(t, 10, 2, 1, 5, true), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Steps)
}

func TestReplicasMatchStepCount(t *testing.T) {
	run := newRun(t, newDenoiser(2), "cpu:3")
	tr, err := New(Config{Epochs: 2, ValidationInterval: 1, MaxGradNorm: 1, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), run, loader(t, 25, 3, 2, 10, true), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Steps)
}

func TestCancellationKeepsCommittedCheckpoint(t *testing.T) {
	model := newDenoiser(1)
	run := newRun(t, model, "cpu")
	run.Evaluator = &scripted{values: []float64{0.5, 0.4, 0.3, 0.2, 0.1}, model: model}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	steps := 0
	model.onStep = func() {
		steps++
		if steps == 9 { // Inside epoch 3 with 4 batches per epoch.
			cancel()
		}
	}

	tr, err := New(Config{Epochs: 5, Patience: 2, ValidationInterval: 1, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(ctx, run, loader(t, 16, 2, 1, 4, true), loader(t, 4, 2, 1, 4, false))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsCancellation(err))
	assert.Equal(t, 2, res.Epochs)

	_, meta, err := run.Checkpoints.LoadBest()
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Epoch)
	assert.Equal(t, 0.4, meta.Value)
}

func TestNonFiniteLossDiverges(t *testing.T) {
	model := newDenoiser(1)
	model.nanLoss = true
	run := newRun(t, model, "cpu")
	var warnings []*errs.NumericInstabilityWarning
	run.OnWarning = func(w *errs.NumericInstabilityWarning) { warnings = append(warnings, w) }
	before := nn.StateDict(model)

	tr, err := New(Config{Epochs: 5, ValidationInterval: 1, MaxNonFinite: 2, Seed: 1})
	require.NoError(t, err)
	res, err := tr.Fit(context.Background(), run, loader(t, 10, 2, 1, 2, true), nil)
	require.ErrorIs(t, err, errs.ErrTrainingDiverged)

	require.Len(t, warnings, 3)
	assert.Len(t, res.Warnings, 3)
	assert.ErrorIs(t, warnings[0], errs.ErrNumericInstability)
	assert.Equal(t, 3, warnings[2].Count)
	assert.Equal(t, int64(0), res.Steps)
	for name, want := range before {
		assert.Equal(t, want.Data(), nn.StateDict(model)[name].Data())
	}
}

func TestFitRejectsEmptyTraining(t *testing.T) {
	tr, err := New(Config{Epochs: 1, ValidationInterval: 1})
	require.NoError(t, err)
	obs, err := data.NewObservation(tensor.Zeros(0, 2, 1), tensor.Zeros(0, 2, 1))
	require.NoError(t, err)
	empty, err := data.NewLoader(&data.Dataset{Obs: obs}, data.LoaderConfig{BatchSize: 4})
	require.NoError(t, err)
	_, err = tr.Fit(context.Background(), newRun(t, newDenoiser(1), "cpu"), empty, nil)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{Epochs: 0, ValidationInterval: 1})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = New(Config{Epochs: 1, ValidationInterval: 0})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Equal(t, "no_improvement", NoImprovement.String())
}
