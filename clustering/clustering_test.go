package clustering

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/data"
	"github.com/born-ml/pots/tensor"
)

func TestClusterSaveLoad(t *testing.T) {
	x := tensor.Zeros(10, 3, 2)
	for i := range x.Data() {
		if i >= 5*3*2 {
			x.Data()[i] = 4
		}
	}
	obs, err := data.NewObservation(x, tensor.Full(1, 10, 3, 2))
	require.NoError(t, err)
	ds := &data.Dataset{Obs: obs}

	cfg := DefaultConfig()
	cfg.Epochs = 2
	cfg.BatchSize = 5
	cfg.Model.HiddenSize = 3
	c, err := New(cfg, nil)
	require.NoError(t, err)
	_, err = c.Fit(context.Background(), ds, nil)
	require.NoError(t, err)
	ids, err := c.Cluster(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, ids, 10)
	assert.NotEqual(t, ids[0], ids[9])

	path := filepath.Join(t.TempDir(), "clusters.pots")
	require.NoError(t, c.Save(path))
	loaded, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	again, err := loaded.Cluster(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, ids, again)
}
