package optim

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/nn"
)

// GradNorm returns the global L2 norm of the gradients of params.
func GradNorm(params []*nn.Parameter, grads autodiff.Gradients) float64 {
	var sq float64
	for _, p := range params {
		if g := getGradient(p, grads); g != nil {
			n := floats.Norm(g.Data(), 2)
			sq += n * n
		}
	}
	return math.Sqrt(sq)
}

// ClipGradNorm rescales the gradients of params in place so their global L2
// norm is at most maxNorm, and returns the norm before clipping.
//
// maxNorm <= 0 disables clipping. A non-finite norm is returned unchanged so
// the caller can detect it.
func ClipGradNorm(params []*nn.Parameter, grads autodiff.Gradients, maxNorm float64) float64 {
	total := GradNorm(params, grads)
	if maxNorm <= 0 || total <= maxNorm || math.IsNaN(total) || math.IsInf(total, 0) {
		return total
	}
	scale := maxNorm / (total + 1e-12)
	for _, p := range params {
		if g := getGradient(p, grads); g != nil {
			floats.Scale(scale, g.Data())
		}
	}
	return total
}
