package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/pots/internal/errs"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
architecture: rnn_classifier
batch_size: 16
patience: 0
device_placement: cpu:2
model:
  n_steps: 24
  n_features: 3
  n_classes: 4
logging:
  level: debug
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rnn_classifier", cfg.Architecture)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, 0, cfg.Patience)
	assert.Equal(t, "cpu:2", cfg.DevicePlacement)
	assert.Equal(t, 24, cfg.Model.Steps)
	assert.Equal(t, 4, cfg.Model.Classes)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Epochs)
	assert.Equal(t, 64, cfg.Model.HiddenSize)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"epochs": 7, "seed": 9, "normalize": true}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Epochs)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.True(t, cfg.Normalize)
	assert.Equal(t, uint64(9), cfg.Hyper().Seed)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	toml := filepath.Join(dir, "run.toml")
	require.NoError(t, os.WriteFile(toml, []byte("epochs = 1"), 0o644))
	_, err = LoadFile(toml)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("batch_size: 0\n"), 0o644))
	_, err = LoadFile(bad)
	var cerr *errs.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "batch_size", cerr.Option)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"POTS_BATCH_SIZE":       "8",
		"POTS_LEARNING_RATE":    "0.01",
		"POTS_DEVICE_PLACEMENT": "cuda",
		"POTS_SEED":             "7",
		"POTS_LOG_LEVEL":        "warn",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 0.01, cfg.LearningRate)
	assert.Equal(t, "cuda", cfg.DevicePlacement)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "warn", cfg.Logging.Level)

	env["POTS_EPOCHS"] = "many"
	assert.ErrorIs(t, Default().applyEnv(lookup), errs.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		option string
	}{
		{"zero epochs", func(c *Config) { c.Epochs = 0 }, "epochs"},
		{"negative lr", func(c *Config) { c.LearningRate = -1 }, "learning_rate"},
		{"rate one", func(c *Config) { c.ArtificialMissingRate = 1 }, "artificial_missing_rate"},
		{"interval", func(c *Config) { c.ValidationInterval = 0 }, "validation_interval"},
		{"optimizer", func(c *Config) { c.Optimizer = "lbfgs" }, "optimizer"},
		{"dropout", func(c *Config) { c.Model.Dropout = 1.5 }, "model.dropout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			var cerr *errs.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cerr)
			assert.Equal(t, tt.option, cerr.Option)
		})
	}
}
