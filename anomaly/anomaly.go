// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package anomaly flags unusual samples among partially observed
// multivariate time series.
//
// A sample's score is how badly the model reconstructs its observed entries.
// After Fit the decision threshold sits at the (1 - model.contamination)
// quantile of the training scores.
package anomaly

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/data"
	"github.com/born-ml/pots/internal/config"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/facade"
	"github.com/born-ml/pots/internal/trainer"
)

// Config holds every training option. See DefaultConfig.
type Config = config.Config

// Result summarizes a Fit call.
type Result = trainer.Result

// DefaultConfig returns the defaults with the ae_anomaly architecture.
func DefaultConfig() *Config {
	cfg := config.Default()
	cfg.Architecture = "ae_anomaly"
	return cfg
}

// Architectures lists the registered anomaly detection architectures.
func Architectures() []string { return core.ForTask(core.TaskAnomaly) }

// Detector is an anomaly detection model.
type Detector struct {
	m *facade.Model
}

// New returns an unfitted Detector.
func New(cfg *Config, logger logrus.FieldLogger) (*Detector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := facade.New(core.TaskAnomaly, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Detector{m: m}, nil
}

// Fit trains on train and calibrates the threshold on it. Labels of val, if
// any, are 0/1 anomaly flags used for precision and recall.
func (d *Detector) Fit(ctx context.Context, train, val *data.Dataset) (*Result, error) {
	return d.m.Fit(ctx, train, val)
}

// Detect returns the 0/1 anomaly flag and the score of every sample of ds.
func (d *Detector) Detect(ctx context.Context, ds *data.Dataset) ([]int, []float64, error) {
	p, err := d.m.Predict(ctx, ds)
	if err != nil {
		return nil, nil, err
	}
	return p.Classes, p.Scores, nil
}

// Save writes the fitted model, threshold included, to path.
func (d *Detector) Save(path string) error { return d.m.Save(path) }

// Load replaces the model with the one saved at path.
func (d *Detector) Load(path string) error { return d.m.Load(path) }
