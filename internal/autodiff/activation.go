package autodiff

import (
	"math"

	"github.com/born-ml/pots/internal/tensor"
)

// TanhOp: output = tanh(x).
//
// Since the output is kept, grad_input = grad_output * (1 - output²).
type TanhOp struct{ unaryOp }

// Backward implements Operation.
func (op *TanhOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.Zip(g, op.output, func(gv, y float64) float64 {
		return gv * (1 - y*y)
	})}
}

// Tanh applies the hyperbolic tangent elementwise.
func (t *Tape) Tanh(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Map(x, math.Tanh)
	t.record(&TanhOp{unaryOp{x, out}})
	return out
}

// SigmoidOp: output = 1 / (1 + exp(-x)); grad_input = grad_output * y * (1 - y).
type SigmoidOp struct{ unaryOp }

// Backward implements Operation.
func (op *SigmoidOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.Zip(g, op.output, func(gv, y float64) float64 {
		return gv * y * (1 - y)
	})}
}

// Sigmoid applies the logistic function elementwise.
func (t *Tape) Sigmoid(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Map(x, sigmoid)
	t.record(&SigmoidOp{unaryOp{x, out}})
	return out
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// ReLUOp: output = max(0, x); gradient passes where x > 0.
type ReLUOp struct{ unaryOp }

// Backward implements Operation.
func (op *ReLUOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.Zip(g, op.input, func(gv, x float64) float64 {
		if x > 0 {
			return gv
		}
		return 0
	})}
}

// ReLU applies max(0, x) elementwise.
func (t *Tape) ReLU(x *tensor.Tensor) *tensor.Tensor {
	out := tensor.Map(x, func(v float64) float64 { return math.Max(0, v) })
	t.record(&ReLUOp{unaryOp{x, out}})
	return out
}
