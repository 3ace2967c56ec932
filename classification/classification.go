// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package classification assigns class labels to partially observed
// multivariate time series.
//
// Labels are integers in [0, n_classes). When model.n_classes is 0 it is
// taken from the training labels.
package classification

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

// DefaultConfig returns the defaults with the rnn_classifier architecture,
// ranked by validation cross-entropy.
func DefaultConfig() *Config {
	cfg := config.Default()
	cfg.Architecture = "rnn_classifier"
	cfg.ArtificialMissingRate = 0
	return cfg
}

// Architectures lists the registered classification architectures.
func Architectures() []string { return core.ForTask(core.TaskClassification) }

// Classifier is a classification model.
type Classifier struct {
	m *facade.Model
}

// New returns an unfitted Classifier.
func New(cfg *Config, logger logrus.FieldLogger) (*Classifier, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := facade.New(core.TaskClassification, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Classifier{m: m}, nil
}

// Fit trains on train, which must carry Labels; so must val when given.
func (c *Classifier) Fit(ctx context.Context, train, val *data.Dataset) (*Result, error) {
	return c.m.Fit(ctx, train, val)
}

// Classify returns the most probable class of every sample of ds and the
// class probabilities [N, C].
func (c *Classifier) Classify(ctx context.Context, ds *data.Dataset) ([]int, *tensor.Tensor, error) {
	p, err := c.m.Predict(ctx, ds)
	if err != nil {
		return nil, nil, err
	}
	return p.Classes, p.Probabilities, nil
}

// Save writes the fitted model to path.
func (c *Classifier) Save(path string) error { return c.m.Save(path) }

// Load replaces the model with the one saved at path.
func (c *Classifier) Load(path string) error { return c.m.Load(path) }
