package optim

import (
	"math"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// Adam implements the Adam optimizer (Adaptive Moment Estimation).
//
// Update rule:
//
//	m_t = β1 * m_{t-1} + (1 - β1) * g_t
//	v_t = β2 * v_{t-1} + (1 - β2) * g_t²
//	m̂_t = m_t / (1 - β1^t)
//	v̂_t = v_t / (1 - β2^t)
//	θ_t = θ_{t-1} - α * m̂_t / (√v̂_t + ε)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int64                            // Timestep for bias correction
	m      map[*nn.Parameter]*tensor.Tensor // First moment estimates
	v      map[*nn.Parameter]*tensor.Tensor // Second moment estimates
}

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero config fields take their defaults.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.Tensor),
		v:      make(map[*nn.Parameter]*tensor.Tensor),
	}
}

// Step performs a single optimization step.
func (a *Adam) Step(grads autodiff.Gradients) {
	a.t++

	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}
		m, ok := a.m[param]
		if !ok {
			m = tensor.Zeros(param.Shape()...)
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = tensor.Zeros(param.Shape()...)
			a.v[param] = v
		}

		gd, md, vd, pd := grad.Data(), m.Data(), v.Data(), param.Tensor().Data()
		for i := range pd {
			g := gd[i]
			md[i] = a.beta1*md[i] + (1.0-a.beta1)*g
			vd[i] = a.beta2*vd[i] + (1.0-a.beta2)*g*g
			mHat := md[i] / biasCorrection1
			vHat := vd[i] / biasCorrection2
			pd[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR sets the learning rate.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// Name returns "adam".
func (a *Adam) Name() string { return "adam" }

// Steps returns the bias-correction timestep.
func (a *Adam) Steps() int64 { return a.t }

// StateDict returns the timestep and both moment estimates.
func (a *Adam) StateDict() map[string]*tensor.Tensor {
	state := map[string]*tensor.Tensor{"step": tensor.Scalar(float64(a.t))}
	saveBuffers("m", a.params, a.m, state)
	saveBuffers("v", a.params, a.v, state)
	return state
}

// LoadStateDict restores the timestep and moment estimates.
func (a *Adam) LoadStateDict(state map[string]*tensor.Tensor) error {
	step, err := stepFromState(state)
	if err != nil {
		return err
	}
	m := make(map[*nn.Parameter]*tensor.Tensor)
	v := make(map[*nn.Parameter]*tensor.Tensor)
	if err := loadBuffers("m", a.params, state, m); err != nil {
		return err
	}
	if err := loadBuffers("v", a.params, state, v); err != nil {
		return err
	}
	a.t, a.m, a.v = step, m, v
	return nil
}
