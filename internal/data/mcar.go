package data

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/tensor"
)

// Corrupted is the result of artificially masking observed values.
type Corrupted struct {
	XIntact    *tensor.Tensor // Original values, missing zeroed
	IntactMask *tensor.Tensor // Original mask
	X          *tensor.Tensor // Values with the artificial holes zeroed
	Mask       *tensor.Tensor // Mask after corruption
	Indicating *tensor.Tensor // 1 where a value was artificially removed
}

// MCAR removes, completely at random, floor(rate × observed) of the observed
// entries of each sample of x/mask ([N, ...]). The rate is relative to the
// observed entries, not to all entries, so data that is already sparse still
// loses the requested share.
//
// x must already have its missing entries zeroed. Inputs are not modified.
func MCAR(x, mask *tensor.Tensor, rate float64, rng *rand.Rand) *Corrupted {
	out := &Corrupted{
		XIntact:    x,
		IntactMask: mask,
		X:          x.Clone(),
		Mask:       mask.Clone(),
		Indicating: tensor.Zeros(mask.Shape()...),
	}
	if rate <= 0 || x.Rank() == 0 || x.Dim(0) == 0 {
		return out
	}

	per := x.Len() / x.Dim(0)
	xd, md, ind := out.X.Data(), out.Mask.Data(), out.Indicating.Data()
	observed := make([]int, 0, per)
	for s := 0; s < x.Dim(0); s++ {
		base := s * per
		observed = observed[:0]
		for j := 0; j < per; j++ {
			if md[base+j] != 0 {
				observed = append(observed, base+j)
			}
		}
		k := int(rate * float64(len(observed)))
		// Partial Fisher-Yates: the first k slots become a uniform sample.
		for i := 0; i < k; i++ {
			j := i + rng.IntN(len(observed)-i)
			observed[i], observed[j] = observed[j], observed[i]
			idx := observed[i]
			xd[idx] = 0
			md[idx] = 0
			ind[idx] = 1
		}
	}
	return out
}
