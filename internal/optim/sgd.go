package optim

import (
	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with optional momentum.
//
// Update rule without momentum:
//
//	θ = θ - lr * ∇θ
//
// Update rule with momentum:
//
//	v = momentum * v + ∇θ
//	θ = θ - lr * v
type SGD struct {
	params   []*nn.Parameter
	lr       float64
	momentum float64
	steps    int64
	velocity map[*nn.Parameter]*tensor.Tensor
}

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate
	Momentum float64 // Momentum factor (0 = no momentum)
}

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	return &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
		velocity: make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step applies one SGD update.
func (s *SGD) Step(grads autodiff.Gradients) {
	s.steps++
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		update := grad
		if s.momentum > 0 {
			v, ok := s.velocity[param]
			if !ok {
				v = tensor.Zeros(param.Shape()...)
				s.velocity[param] = v
			}
			vd, gd := v.Data(), grad.Data()
			for i := range vd {
				vd[i] = s.momentum*vd[i] + gd[i]
			}
			update = v
		}
		tensor.AxpyInPlace(param.Tensor(), -s.lr, update)
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return s.lr }

// SetLR sets the learning rate.
func (s *SGD) SetLR(lr float64) { s.lr = lr }

// Name returns "sgd".
func (s *SGD) Name() string { return "sgd" }

// Steps returns the number of updates applied.
func (s *SGD) Steps() int64 { return s.steps }

// StateDict returns the step counter and momentum buffers.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	state := map[string]*tensor.Tensor{"step": tensor.Scalar(float64(s.steps))}
	saveBuffers("velocity", s.params, s.velocity, state)
	return state
}

// LoadStateDict restores the step counter and momentum buffers.
func (s *SGD) LoadStateDict(state map[string]*tensor.Tensor) error {
	step, err := stepFromState(state)
	if err != nil {
		return err
	}
	if err := loadBuffers("velocity", s.params, state, s.velocity); err != nil {
		return err
	}
	s.steps = step
	return nil
}
