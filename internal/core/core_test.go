package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

type stubModel struct{ h Hyper }

func (s *stubModel) Parameters() []*nn.Parameter { return nil }
func (s *stubModel) Name() string                { return "stub" }
func (s *stubModel) Task() Task                  { return TaskImputation }
func (s *stubModel) Spec() Spec {
	return Spec{Architecture: "stub", Task: TaskImputation, Hyper: s.h}
}
func (s *stubModel) Forward(*Context, *data.Batch) (*Output, error) { return &Output{}, nil }
func (s *stubModel) Loss(*Context, *Output, *data.Batch) (*tensor.Tensor, error) {
	return tensor.Scalar(0), nil
}
func (s *stubModel) Predict(*data.Batch) (*Prediction, error) { return &Prediction{}, nil }

func TestRegistry(t *testing.T) {
	Register("test_stub", TaskImputation, func(h Hyper) (Model, error) { return &stubModel{h}, nil })

	m, err := New("test_stub", Hyper{Features: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Spec().Hyper.Features)

	task, err := TaskOf("test_stub")
	require.NoError(t, err)
	assert.Equal(t, TaskImputation, task)
	assert.Contains(t, Names(), "test_stub")
	assert.Contains(t, ForTask(TaskImputation), "test_stub")
	assert.NotContains(t, ForTask(TaskClustering), "test_stub")

	_, err = New("nope", Hyper{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	_, err = TaskOf("nope")
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	assert.Panics(t, func() {
		Register("test_stub", TaskImputation, func(Hyper) (Model, error) { return nil, nil })
	})
}

func TestParseTask(t *testing.T) {
	task, err := ParseTask("anomaly_detection")
	require.NoError(t, err)
	assert.Equal(t, TaskAnomaly, task)
	_, err = ParseTask("segmentation")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestCheckBatch(t *testing.T) {
	m := &stubModel{Hyper{Features: 2}}
	b := &data.Batch{X: tensor.Zeros(1, 4, 3)}
	assert.ErrorIs(t, CheckBatch(m, b), errs.ErrDataShape)
	b.X = tensor.Zeros(1, 4, 2)
	assert.NoError(t, CheckBatch(m, b))
}
