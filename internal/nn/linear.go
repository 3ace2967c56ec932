package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x is the input tensor with shape [batch_size, in_features]
//   - W is the weight matrix with shape [in_features, out_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [batch_size, out_features]
//
// The weight is stored input-major so the forward pass needs no transpose.
// Weights are initialized using Xavier/Glorot initialization, biases to zero.
//
// Example:
//
//	rng := rand.New(rand.NewPCG(seed, 0))
//	layer := nn.NewLinear("encoder", 16, 32, rng)
//	h := layer.Forward(tape, x) // [batch, 32]
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter // [in_features, out_features]
	bias        *Parameter // [out_features]
}

// NewLinear creates a new Linear layer whose parameters are named
// "<name>.weight" and "<name>.bias".
func NewLinear(name string, inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter(name+".weight", Xavier(inFeatures, outFeatures, rng, inFeatures, outFeatures)),
		bias:        NewParameter(name+".bias", tensor.Zeros(outFeatures)),
	}
}

// Forward computes x @ W + b.
//
// Input shape: [batch_size, in_features]
// Output shape: [batch_size, out_features]
func (l *Linear) Forward(tape *autodiff.Tape, x *tensor.Tensor) *tensor.Tensor {
	if x.Rank() != 2 || x.Dim(1) != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input [batch, %d], got shape %v", l.inFeatures, x.Shape()))
	}
	return tape.AddBias(tape.MatMul(x, l.weight.Tensor()), l.bias.Tensor())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }

// InFeatures returns the input feature count.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output feature count.
func (l *Linear) OutFeatures() int { return l.outFeatures }
