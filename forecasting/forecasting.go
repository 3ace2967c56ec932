// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package forecasting predicts the next steps of partially observed
// multivariate time series.
//
// Training data pairs input windows with target windows, typically built
// with data.WindowForecast. model.pred_steps is taken from the targets.
package forecasting

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

// DefaultConfig returns the defaults with the linear_forecaster architecture.
func DefaultConfig() *Config {
	cfg := config.Default()
	cfg.Architecture = "linear_forecaster"
	cfg.ArtificialMissingRate = 0
	return cfg
}

// Architectures lists the registered forecasting architectures.
func Architectures() []string { return core.ForTask(core.TaskForecasting) }

// Forecaster is a forecasting model.
type Forecaster struct {
	m *facade.Model
}

// New returns an unfitted Forecaster.
func New(cfg *Config, logger logrus.FieldLogger) (*Forecaster, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := facade.New(core.TaskForecasting, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Forecaster{m: m}, nil
}

// Fit trains on train, which must carry Target; so must val when given.
func (f *Forecaster) Fit(ctx context.Context, train, val *data.Dataset) (*Result, error) {
	return f.m.Fit(ctx, train, val)
}

// Forecast returns the predicted future steps [N, P, F] of every sample of ds.
func (f *Forecaster) Forecast(ctx context.Context, ds *data.Dataset) (*tensor.Tensor, error) {
	p, err := f.m.Predict(ctx, ds)
	if err != nil {
		return nil, err
	}
	return p.Forecast, nil
}

// Save writes the fitted model to path.
func (f *Forecaster) Save(path string) error { return f.m.Save(path) }

// Load replaces the model with the one saved at path.
func (f *Forecaster) Load(path string) error { return f.m.Load(path) }
