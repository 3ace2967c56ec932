// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package clustering groups partially observed multivariate time series.
//
// The reference model learns latent codes with a masked autoencoder and
// clusters them with k-means after training. Labels, when the validation
// dataset carries them, are only used to report the Rand index and purity.
package clustering

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

// DefaultConfig returns the defaults with the ae_clusterer architecture and
// two clusters.
func DefaultConfig() *Config {
	cfg := config.Default()
	cfg.Architecture = "ae_clusterer"
	cfg.Model.Clusters = 2
	return cfg
}

// Architectures lists the registered clustering architectures.
func Architectures() []string { return core.ForTask(core.TaskClustering) }

// Clusterer is a clustering model.
type Clusterer struct {
	m *facade.Model
}

// New returns an unfitted Clusterer.
func New(cfg *Config, logger logrus.FieldLogger) (*Clusterer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m, err := facade.New(core.TaskClustering, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Clusterer{m: m}, nil
}

// Fit trains on train and fits the cluster centroids.
func (c *Clusterer) Fit(ctx context.Context, train, val *data.Dataset) (*Result, error) {
	return c.m.Fit(ctx, train, val)
}

// Cluster returns the cluster id of every sample of ds.
func (c *Clusterer) Cluster(ctx context.Context, ds *data.Dataset) ([]int, error) {
	p, err := c.m.Predict(ctx, ds)
	if err != nil {
		return nil, err
	}
	return p.Classes, nil
}

// Save writes the fitted model, centroids included, to path.
func (c *Clusterer) Save(path string) error { return c.m.Save(path) }

// Load replaces the model with the one saved at path.
func (c *Clusterer) Load(path string) error { return c.m.Load(path) }
