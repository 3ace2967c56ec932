package nn

import (
	"github.com/born-ml/pots/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters are tensors that receive gradients during training. The tensor
// pointer is stable for the lifetime of the parameter: optimizers update it in
// place and the autodiff tape keys gradients by it.
//
// Example:
//
//	weight := nn.NewParameter("encoder.weight", tensor.Zeros(4, 8))
//	grads := tape.Backward(loss)
//	dw := grads[weight.Tensor()]
type Parameter struct {
	name   string         // Parameter name (e.g., "encoder.weight")
	tensor *tensor.Tensor // The parameter tensor
}

// NewParameter creates a new trainable parameter.
//
// Parameters:
//   - name: Unique name within its model (e.g., "linear1.weight")
//   - t: The initialized parameter tensor
//
// Returns a new Parameter.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Shape returns the shape of the parameter tensor.
func (p *Parameter) Shape() tensor.Shape {
	return p.tensor.Shape()
}
