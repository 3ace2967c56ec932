package nn

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/tensor"
)

// RNNCell is an Elman recurrent cell: h' = tanh(x @ Wx + h @ Wh + b).
type RNNCell struct {
	input  *Linear // carries the bias
	hidden *Parameter
	size   int
}

// NewRNNCell creates a cell with parameters "<name>.input.*" and "<name>.hidden".
func NewRNNCell(name string, inFeatures, hiddenSize int, rng *rand.Rand) *RNNCell {
	return &RNNCell{
		input:  NewLinear(name+".input", inFeatures, hiddenSize, rng),
		hidden: NewParameter(name+".hidden", Xavier(hiddenSize, hiddenSize, rng, hiddenSize, hiddenSize)),
		size:   hiddenSize,
	}
}

// Step advances the hidden state h [batch, hidden] by one input x [batch, in].
func (c *RNNCell) Step(tape *autodiff.Tape, x, h *tensor.Tensor) *tensor.Tensor {
	return tape.Tanh(tape.Add(c.input.Forward(tape, x), tape.MatMul(h, c.hidden.Tensor())))
}

// InitialState returns a zero hidden state for batch rows.
func (c *RNNCell) InitialState(batch int) *tensor.Tensor {
	return tensor.Zeros(batch, c.size)
}

// HiddenSize returns the width of the hidden state.
func (c *RNNCell) HiddenSize() int { return c.size }

// Parameters implements Module.
func (c *RNNCell) Parameters() []*Parameter {
	return append(c.input.Parameters(), c.hidden)
}
