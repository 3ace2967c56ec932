// Package optim implements optimization algorithms for training the reference
// architectures.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//   - ClipGradNorm: global L2 gradient clipping
//
// Optimizer state (momentum buffers, Adam moments, step counter) is exposed as a
// name → tensor dictionary so checkpoints can persist and restore it.
//
// Example usage:
//
//	opt, err := optim.New(optim.Config{Name: "adam", LR: 1e-3}, model.Parameters())
//
//	tape.StartRecording()
//	loss := model.Loss(...)
//	grads := tape.Backward(loss)
//	optim.ClipGradNorm(model.Parameters(), grads, 1.0)
//	opt.Step(grads)
package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// Parameters without an entry in grads are left unchanged.
	Step(grads autodiff.Gradients)

	// LR returns the current learning rate.
	LR() float64

	// SetLR changes the learning rate for subsequent steps.
	SetLR(lr float64)

	// Name returns the registry name ("sgd", "adam").
	Name() string

	// Steps returns how many times Step has been called, including restored steps.
	Steps() int64

	// StateDict returns a deep copy of the optimizer state.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict replaces the optimizer state. Shapes must match the
	// parameters the optimizer was built for.
	LoadStateDict(state map[string]*tensor.Tensor) error
}

// Config selects and parameterizes an optimizer.
type Config struct {
	Name     string     // "adam" (default) or "sgd"
	LR       float64    // Learning rate
	Momentum float64    // SGD momentum
	Betas    [2]float64 // Adam coefficients (default: [0.9, 0.999])
	Eps      float64    // Adam epsilon (default: 1e-8)
}

// New builds the optimizer named by cfg over params.
func New(cfg Config, params []*nn.Parameter) (Optimizer, error) {
	if cfg.LR <= 0 {
		return nil, errs.Configuration("learning_rate", "must be positive, got %v", cfg.LR)
	}
	switch strings.ToLower(cfg.Name) {
	case "", "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps}), nil
	case "sgd":
		if cfg.Momentum < 0 || cfg.Momentum >= 1 {
			return nil, errs.Configuration("momentum", "must be in [0, 1), got %v", cfg.Momentum)
		}
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum}), nil
	default:
		return nil, errs.Configuration("optimizer", "unknown optimizer %q", cfg.Name)
	}
}

// getGradient safely retrieves the gradient for a parameter.
func getGradient(param *nn.Parameter, grads autodiff.Gradients) *tensor.Tensor {
	if grads == nil {
		return nil
	}
	return grads[param.Tensor()]
}

// loadBuffers validates and copies per-parameter buffers stored as
// "<prefix>.<param name>". Missing entries reset the buffer to zero.
func loadBuffers(prefix string, params []*nn.Parameter, state map[string]*tensor.Tensor,
	dst map[*nn.Parameter]*tensor.Tensor) error {
	next := make(map[*nn.Parameter]*tensor.Tensor, len(params))
	for _, p := range params {
		t, ok := state[prefix+"."+p.Name()]
		if !ok {
			continue
		}
		if !t.Shape().Equal(p.Shape()) {
			return errs.Compatibility(prefix+"."+p.Name(),
				fmt.Sprint([]int(p.Shape())), fmt.Sprint([]int(t.Shape())))
		}
		next[p] = t.Clone()
	}
	clear(dst)
	for p, t := range next {
		dst[p] = t
	}
	return nil
}

func saveBuffers(prefix string, params []*nn.Parameter, src map[*nn.Parameter]*tensor.Tensor,
	dst map[string]*tensor.Tensor) {
	for _, p := range params {
		if t, ok := src[p]; ok {
			dst[prefix+"."+p.Name()] = t.Clone()
		}
	}
}

func stepFromState(state map[string]*tensor.Tensor) (int64, error) {
	t, ok := state["step"]
	if !ok {
		return 0, nil
	}
	if t.Len() != 1 {
		return 0, errs.Compatibility("step", "scalar", fmt.Sprint([]int(t.Shape())))
	}
	return int64(t.Item()), nil
}
