package classification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/data"
)

func TestClassifyVariableLengths(t *testing.T) {
	var values [][][]float64
	var labels []int
	for i := range 16 {
		steps := 2 + i%4
		seq := make([][]float64, steps)
		for s := range seq {
			v := -1.0
			if i%2 == 1 {
				v = 1
			}
			seq[s] = []float64{v}
		}
		values = append(values, seq)
		labels = append(labels, i%2)
	}
	obs, err := data.FromSequences(values, nil)
	require.NoError(t, err)
	ds := &data.Dataset{Obs: obs, Labels: labels}

	cfg := DefaultConfig()
	cfg.Epochs = 30
	cfg.BatchSize = 8
	cfg.LearningRate = 0.05
	cfg.Model.HiddenSize = 4
	c, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = c.Fit(context.Background(), ds, nil)
	require.NoError(t, err)

	classes, probs, err := c.Classify(context.Background(), ds)
	require.NoError(t, err)
	correct := 0
	for i, c := range classes {
		if c == labels[i] {
			correct++
		}
	}
	assert.GreaterOrEqual(t, correct, 12)
	assert.Equal(t, 16, probs.Dim(0))
}
