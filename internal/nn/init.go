package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/pots/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// Parameters:
//   - fanIn: Number of input units
//   - fanOut: Number of output units
//   - rng: Seeded source; the same seed yields the same weights
//   - dims: Shape of the weight tensor
//
// Returns a tensor initialized with Xavier distribution.
func Xavier(fanIn, fanOut int, rng *rand.Rand, dims ...int) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.Zeros(dims...)
	data := t.Data()
	for i := range data {
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return t
}

// Randn creates a tensor with values from N(0, std²).
func Randn(std float64, rng *rand.Rand, dims ...int) *tensor.Tensor {
	t := tensor.Zeros(dims...)
	data := t.Data()
	for i := range data {
		data[i] = rng.NormFloat64() * std
	}
	return t
}
