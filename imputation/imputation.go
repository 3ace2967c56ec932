// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package imputation fills the missing entries of partially observed
// multivariate time series.
//
// Example:
//
//	cfg := imputation.DefaultConfig()
//	cfg.Epochs = 50
//	imp, err := imputation.New(cfg, nil)
//	if err != nil { ... }
//	if _, err := imp.Fit(ctx, train, val); err != nil { ... }
//	filled, err := imp.Impute(ctx, test) // [N, T, F], observed entries unchanged
package imputation

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/data"
	"github.com/born-ml/pots/internal/config"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/facade"
	"github.com/born-ml/pots/internal/trainer"
	"github.com/born-ml/pots/tensor"
)

// Config holds every training option. See DefaultConfig.
type Config = config.Config

// Result summarizes a Fit call.
type Result = trainer.Result

// Prediction holds imputation and reconstruction for a whole dataset.
type Prediction = facade.Prediction

// DefaultConfig returns the defaults with the mlp_imputer architecture.
func DefaultConfig() *Config {
	cfg := config.Default()
	cfg.Architecture = "mlp_imputer"
	return cfg
}

// Architectures lists the registered imputation architectures.
func Architectures() []string { return core.ForTask(core.TaskImputation) }

// Imputer is an imputation model. Fit must not run concurrently with other
// calls; Impute, Predict and Save may run concurrently with each other.
type Imputer struct {
	m *facade.Model
}

// New returns an unfitted Imputer. A nil cfg uses DefaultConfig and a nil
// logger discards logs.
func New(cfg *Config, logger logrus.FieldLogger) (*Imputer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := facade.New(core.TaskImputation, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Imputer{m: m}, nil
}

// Fit trains on train. With a val dataset it validates every
// validation_interval epochs and stops early; if val carries Truth, the
// entries missing in val but present in Truth are scored.
func (i *Imputer) Fit(ctx context.Context, train, val *data.Dataset) (*Result, error) {
	return i.m.Fit(ctx, train, val)
}

// Impute returns ds with its missing entries filled.
func (i *Imputer) Impute(ctx context.Context, ds *data.Dataset) (*tensor.Tensor, error) {
	return i.m.Impute(ctx, ds)
}

// Predict returns the full prediction, including the raw reconstruction.
func (i *Imputer) Predict(ctx context.Context, ds *data.Dataset) (*Prediction, error) {
	return i.m.Predict(ctx, ds)
}

// Save writes the fitted model to path.
func (i *Imputer) Save(path string) error { return i.m.Save(path) }

// Load replaces the model with the one saved at path.
func (i *Imputer) Load(path string) error { return i.m.Load(path) }
