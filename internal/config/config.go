// Package config loads the options that drive a pots run.
//
// Options come from Default, then an optional YAML or JSON file merged over
// the defaults, then POTS_* environment variables. Validate is called last.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/logging"
)

// Config holds every recognized option.
type Config struct {
	Architecture string `yaml:"architecture" json:"architecture"`

	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	Epochs       int     `yaml:"epochs" json:"epochs"`
	Patience     int     `yaml:"patience" json:"patience"` // <= 0 disables early stopping
	MinDelta     float64 `yaml:"min_delta" json:"min_delta"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Optimizer    string  `yaml:"optimizer" json:"optimizer"`
	Momentum     float64 `yaml:"momentum" json:"momentum"`
	MaxGradNorm  float64 `yaml:"max_grad_norm" json:"max_grad_norm"` // <= 0 disables clipping

	DevicePlacement string `yaml:"device_placement" json:"device_placement"`

	CheckpointDir            string `yaml:"checkpoint_dir" json:"checkpoint_dir"`
	CheckpointRetentionCount int    `yaml:"checkpoint_retention_count" json:"checkpoint_retention_count"`
	CheckpointInterval       int    `yaml:"checkpoint_interval" json:"checkpoint_interval"`
	CatalogPath              string `yaml:"catalog_path" json:"catalog_path"`

	ValidationInterval    int     `yaml:"validation_interval" json:"validation_interval"`
	Monitor               string  `yaml:"monitor" json:"monitor"`
	Seed                  uint64  `yaml:"seed" json:"seed"`
	ArtificialMissingRate float64 `yaml:"artificial_missing_rate" json:"artificial_missing_rate"`
	MaxNonFinite          int     `yaml:"max_non_finite" json:"max_non_finite"`
	Normalize             bool    `yaml:"normalize" json:"normalize"`

	Model   core.Hyper     `yaml:"model" json:"model"`
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// Default returns the defaults for every option.
func Default() *Config {
	return &Config{
		Architecture:             "mlp_imputer",
		BatchSize:                32,
		Epochs:                   100,
		Patience:                 10,
		LearningRate:             1e-3,
		Optimizer:                "adam",
		MaxGradNorm:              1.0,
		DevicePlacement:          "cpu",
		CheckpointRetentionCount: 3,
		ValidationInterval:       1,
		Seed:                     42,
		ArtificialMissingRate:    0.2,
		MaxNonFinite:             3,
		Model: core.Hyper{
			HiddenSize:    64,
			PredSteps:     1,
			Contamination: 0.1,
			MITWeight:     1,
			ORTWeight:     1,
		},
		Logging: logging.DefaultConfig(),
	}
}

// LoadFile reads a .yaml, .yml or .json file over the defaults and validates
// the result.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return nil, errs.Configuration("config_file", "unsupported config file format %q", ext)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides options from POTS_* variables, e.g. POTS_BATCH_SIZE or
// POTS_LOG_LEVEL. Malformed values are reported as configuration errors.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.Configuration(key, "not an integer: %q", v)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errs.Configuration(key, "not a number: %q", v)
		}
		*dst = f
		return nil
	}

	str("POTS_ARCHITECTURE", &c.Architecture)
	str("POTS_DEVICE_PLACEMENT", &c.DevicePlacement)
	str("POTS_CHECKPOINT_DIR", &c.CheckpointDir)
	str("POTS_CATALOG_PATH", &c.CatalogPath)
	str("POTS_OPTIMIZER", &c.Optimizer)
	str("POTS_MONITOR", &c.Monitor)
	str("POTS_LOG_LEVEL", &c.Logging.Level)
	str("POTS_LOG_FORMAT", &c.Logging.Format)

	for key, dst := range map[string]*int{
		"POTS_BATCH_SIZE":                 &c.BatchSize,
		"POTS_EPOCHS":                     &c.Epochs,
		"POTS_PATIENCE":                   &c.Patience,
		"POTS_CHECKPOINT_RETENTION_COUNT": &c.CheckpointRetentionCount,
		"POTS_VALIDATION_INTERVAL":        &c.ValidationInterval,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if err := float("POTS_LEARNING_RATE", &c.LearningRate); err != nil {
		return err
	}
	if v, ok := lookup("POTS_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errs.Configuration("POTS_SEED", "not an unsigned integer: %q", v)
		}
		c.Seed = seed
	}
	return nil
}

// Validate checks ranges and returns the first problem as a
// ConfigurationError.
func (c *Config) Validate() error {
	switch {
	case c.Architecture == "":
		return errs.Configuration("architecture", "must be set")
	case c.BatchSize < 1:
		return errs.Configuration("batch_size", "must be >= 1, got %d", c.BatchSize)
	case c.Epochs < 1:
		return errs.Configuration("epochs", "must be >= 1, got %d", c.Epochs)
	case !(c.LearningRate > 0):
		return errs.Configuration("learning_rate", "must be > 0, got %v", c.LearningRate)
	case c.Momentum < 0 || c.Momentum >= 1:
		return errs.Configuration("momentum", "must be in [0, 1), got %v", c.Momentum)
	case c.MinDelta < 0:
		return errs.Configuration("min_delta", "must be >= 0, got %v", c.MinDelta)
	case c.ValidationInterval < 1:
		return errs.Configuration("validation_interval", "must be >= 1, got %d", c.ValidationInterval)
	case c.CheckpointRetentionCount < 0:
		return errs.Configuration("checkpoint_retention_count", "must be >= 0, got %d", c.CheckpointRetentionCount)
	case c.CheckpointInterval < 0:
		return errs.Configuration("checkpoint_interval", "must be >= 0, got %d", c.CheckpointInterval)
	case c.ArtificialMissingRate < 0 || c.ArtificialMissingRate >= 1:
		return errs.Configuration("artificial_missing_rate", "must be in [0, 1), got %v", c.ArtificialMissingRate)
	case c.MaxNonFinite < 0:
		return errs.Configuration("max_non_finite", "must be >= 0, got %d", c.MaxNonFinite)
	case c.Model.Dropout < 0 || c.Model.Dropout >= 1:
		return errs.Configuration("model.dropout", "must be in [0, 1), got %v", c.Model.Dropout)
	case c.Model.Contamination < 0 || c.Model.Contamination >= 1:
		return errs.Configuration("model.contamination", "must be in [0, 1), got %v", c.Model.Contamination)
	}
	switch c.Optimizer {
	case "", "adam", "sgd":
	default:
		return errs.Configuration("optimizer", "unknown optimizer %q", c.Optimizer)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errs.Configuration("logging.format", "unknown format %q", c.Logging.Format)
	}
	return nil
}

// Hyper returns the model hyperparameters with the run seed filled in.
func (c *Config) Hyper() core.Hyper {
	h := c.Model
	h.Seed = c.Seed
	return h
}
