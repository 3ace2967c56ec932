package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/catalog"
	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/trainer"
)

func TestModels(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"models"}, &out))
	assert.Contains(t, out.String(), "mlp_imputer")
	assert.Contains(t, out.String(), "anomaly_detection")
}

func TestInspect(t *testing.T) {
	model, err := core.New("locf", core.Hyper{Features: 2})
	require.NoError(t, err)
	meta := checkpoint.MetaFor(model)
	meta.ID, meta.RunID, meta.Kind = "ckpt-1", "run-1", checkpoint.KindFinal
	meta.Metric, meta.Value = "mae", 0.25
	path := filepath.Join(t.TempDir(), "locf.pots")
	require.NoError(t, checkpoint.WriteFile(path, checkpoint.Capture(model, nil), meta))

	var out bytes.Buffer
	require.NoError(t, run([]string{"inspect", path}, &out))
	assert.Contains(t, out.String(), "Architecture:  locf")
	assert.Contains(t, out.String(), "ckpt-1 (final), run run-1")
	assert.Contains(t, out.String(), "mae = 0.25")

	assert.Error(t, run([]string{"inspect", filepath.Join(t.TempDir(), "none.pots")}, &out))
}

func TestRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	cat, err := catalog.Open(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, cat.StartRun(ctx, trainer.RunInfo{ID: "run-a", Architecture: "mlp_imputer", Task: core.TaskImputation}))
	require.NoError(t, cat.RecordEpoch(ctx, "run-a", trainer.EpochRecord{Epoch: 1, Step: 10, TrainLoss: 0.5}))
	require.NoError(t, cat.Close())

	var out bytes.Buffer
	require.NoError(t, run([]string{"runs", path}, &out))
	assert.Contains(t, out.String(), "run-a")
	assert.Contains(t, out.String(), "running")

	out.Reset()
	require.NoError(t, run([]string{"runs", path, "run-a"}, &out))
	assert.Contains(t, out.String(), "0.5")
}

func TestConfigAndUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"config"}, &out))
	assert.Contains(t, out.String(), "batch_size: 32")
	assert.Contains(t, out.String(), "architecture: mlp_imputer")

	assert.Error(t, run([]string{"train"}, &out))
	require.NoError(t, run(nil, &out))
	require.NoError(t, run([]string{"version"}, &out))
}
