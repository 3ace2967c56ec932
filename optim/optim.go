// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the gradient-based optimizers.
//
//	opt, err := optim.New(optim.Config{Name: "adam", LR: 1e-3}, params)
//	...
//	optim.ClipGradNorm(params, grads, 1.0)
//	opt.Step(grads)
package optim

import (
	"github.com/born-ml/pots/autodiff"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/nn"
)

// Optimizer updates parameters from gradients.
type Optimizer = optim.Optimizer

// Config selects and configures an optimizer by name.
type Config = optim.Config

// SGD is stochastic gradient descent with optional momentum.
type SGD = optim.SGD

// SGDConfig configures SGD.
type SGDConfig = optim.SGDConfig

// Adam is the Adam optimizer.
type Adam = optim.Adam

// AdamConfig configures Adam.
type AdamConfig = optim.AdamConfig

// New builds the optimizer named by cfg.Name ("sgd" or "adam").
func New(cfg Config, params []*nn.Parameter) (Optimizer, error) {
	return optim.New(cfg, params)
}

// NewSGD creates an SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return optim.NewSGD(params, config)
}

// NewAdam creates an Adam optimizer.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	return optim.NewAdam(params, config)
}

// ClipGradNorm rescales grads in place so that their global L2 norm does not
// exceed maxNorm, and returns the norm before clipping.
func ClipGradNorm(params []*nn.Parameter, grads autodiff.Gradients, maxNorm float64) float64 {
	return optim.ClipGradNorm(params, grads, maxNorm)
}
