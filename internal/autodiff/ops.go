package autodiff

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/tensor"
)

// binaryOp is the common shape of two-input operations.
type binaryOp struct {
	inputs []*tensor.Tensor
	output *tensor.Tensor
}

func (op *binaryOp) Inputs() []*tensor.Tensor { return op.inputs }
func (op *binaryOp) Output() *tensor.Tensor   { return op.output }

// unaryOp is the common shape of single-input operations.
type unaryOp struct {
	input  *tensor.Tensor
	output *tensor.Tensor
}

func (op *unaryOp) Inputs() []*tensor.Tensor { return []*tensor.Tensor{op.input} }
func (op *unaryOp) Output() *tensor.Tensor   { return op.output }

// AddOp: output = a + b. Both inputs receive the output gradient.
type AddOp struct{ binaryOp }

// Backward implements Operation.
func (op *AddOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Clone(), g.Clone()}
}

// Add returns a + b.
func (t *Tape) Add(a, b *tensor.Tensor) *tensor.Tensor {
	out := tensor.Add(a, b)
	t.record(&AddOp{binaryOp{[]*tensor.Tensor{a, b}, out}})
	return out
}

// SubOp: output = a - b.
type SubOp struct{ binaryOp }

// Backward implements Operation.
func (op *SubOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Clone(), tensor.Scale(g, -1)}
}

// Sub returns a - b.
func (t *Tape) Sub(a, b *tensor.Tensor) *tensor.Tensor {
	out := tensor.Sub(a, b)
	t.record(&SubOp{binaryOp{[]*tensor.Tensor{a, b}, out}})
	return out
}

// MulOp: output = a * b elementwise.
//
// Backward pass:
//   - grad_a = outputGrad * b
//   - grad_b = outputGrad * a
type MulOp struct{ binaryOp }

// Backward implements Operation.
func (op *MulOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Tensor{tensor.Mul(g, b), tensor.Mul(g, a)}
}

// Mul returns a * b elementwise.
func (t *Tape) Mul(a, b *tensor.Tensor) *tensor.Tensor {
	out := tensor.Mul(a, b)
	t.record(&MulOp{binaryOp{[]*tensor.Tensor{a, b}, out}})
	return out
}

// ScaleOp: output = c * a for a constant c.
type ScaleOp struct {
	unaryOp
	c float64
}

// Backward implements Operation.
func (op *ScaleOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{tensor.Scale(g, op.c)}
}

// Scale returns c * a.
func (t *Tape) Scale(a *tensor.Tensor, c float64) *tensor.Tensor {
	out := tensor.Scale(a, c)
	t.record(&ScaleOp{unaryOp{a, out}, c})
	return out
}

// MatMulOp: output = a @ b.
//
// Backward pass:
//   - grad_a = outputGrad @ bᵀ
//   - grad_b = aᵀ @ outputGrad
type MatMulOp struct{ binaryOp }

// Backward implements Operation.
func (op *MatMulOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	a, b := op.inputs[0], op.inputs[1]
	return []*tensor.Tensor{tensor.MatMulTransB(g, b), tensor.MatMulTransA(a, g)}
}

// MatMul returns a @ b for a [n, k] and b [k, m].
func (t *Tape) MatMul(a, b *tensor.Tensor) *tensor.Tensor {
	out := tensor.MatMul(a, b)
	t.record(&MatMulOp{binaryOp{[]*tensor.Tensor{a, b}, out}})
	return out
}

// AddBiasOp: output[i, j] = x[i, j] + bias[j].
type AddBiasOp struct{ binaryOp }

// Backward implements Operation.
func (op *AddBiasOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Clone(), tensor.SumRows(g)}
}

// AddBias broadcasts bias [m] over the rows of x [n, m].
func (t *Tape) AddBias(x, bias *tensor.Tensor) *tensor.Tensor {
	n, m := x.Dim(0), x.Dim(1)
	if bias.Len() != m {
		panic("autodiff.AddBias: bias length does not match columns")
	}
	out := x.Clone()
	data, b := out.Data(), bias.Data()
	for i := 0; i < n; i++ {
		row := data[i*m : (i+1)*m]
		for j := range row {
			row[j] += b[j]
		}
	}
	t.record(&AddBiasOp{binaryOp{[]*tensor.Tensor{x, bias}, out}})
	return out
}

// ConcatColsOp: output = [a | b] along columns.
type ConcatColsOp struct{ binaryOp }

// Backward implements Operation.
func (op *ConcatColsOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	a, b := op.inputs[0], op.inputs[1]
	n, p, q := a.Dim(0), a.Dim(1), b.Dim(1)
	ga, gb := tensor.Zeros(n, p), tensor.Zeros(n, q)
	src := g.Data()
	for i := 0; i < n; i++ {
		copy(ga.Data()[i*p:(i+1)*p], src[i*(p+q):i*(p+q)+p])
		copy(gb.Data()[i*q:(i+1)*q], src[i*(p+q)+p:(i+1)*(p+q)])
	}
	return []*tensor.Tensor{ga, gb}
}

// ConcatCols joins [n, p] and [n, q] into [n, p+q].
func (t *Tape) ConcatCols(a, b *tensor.Tensor) *tensor.Tensor {
	out := tensor.ConcatCols(a, b)
	t.record(&ConcatColsOp{binaryOp{[]*tensor.Tensor{a, b}, out}})
	return out
}

// DropoutOp: output = x * keep / (1 - rate).
type DropoutOp struct {
	unaryOp
	scale []float64
}

// Backward implements Operation.
func (op *DropoutOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	out := g.Clone()
	for i := range out.Data() {
		out.Data()[i] *= op.scale[i]
	}
	return []*tensor.Tensor{out}
}

// Dropout zeroes each element with probability rate using rng and rescales the
// survivors. With rng == nil or rate <= 0 it is the identity and records nothing.
func (t *Tape) Dropout(x *tensor.Tensor, rate float64, rng *rand.Rand) *tensor.Tensor {
	if rng == nil || rate <= 0 {
		return x
	}
	scale := make([]float64, x.Len())
	keep := 1 / (1 - rate)
	for i := range scale {
		if rng.Float64() >= rate {
			scale[i] = keep
		}
	}
	out := x.Clone()
	for i := range out.Data() {
		out.Data()[i] *= scale[i]
	}
	t.record(&DropoutOp{unaryOp{x, out}, scale})
	return out
}

// ReshapeOp: output has the elements of the input in a new shape.
type ReshapeOp struct{ unaryOp }

// Backward implements Operation.
func (op *ReshapeOp) Backward(g *tensor.Tensor) []*tensor.Tensor {
	return []*tensor.Tensor{g.Clone().MustReshape(op.input.Shape()...)}
}

// Reshape returns a copy of x with shape dims.
func (t *Tape) Reshape(x *tensor.Tensor, dims ...int) *tensor.Tensor {
	out := x.Clone().MustReshape(dims...)
	t.record(&ReshapeOp{unaryOp{x, out}})
	return out
}
