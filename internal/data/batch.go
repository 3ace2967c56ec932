package data

import (
	"github.com/born-ml/pots/internal/tensor"
)

// Batch is B samples materialized for one forward pass. Missing values are
// zeroed and padding positions always carry mask 0.
type Batch struct {
	Indices []int          // Dataset index of each row, in loader order
	X       *tensor.Tensor // [B, T, F] model input
	Mask    *tensor.Tensor // [B, T, F] mask of X
	Lengths []int          // Valid steps per row

	// Set when artificial missingness was applied; XIntact/IntactMask hold the
	// input before corruption and Indicating marks the removed entries.
	XIntact    *tensor.Tensor
	IntactMask *tensor.Tensor
	Indicating *tensor.Tensor

	Labels     []int          // Optional
	Truth      *tensor.Tensor // Optional [B, T, F], zeroed where TruthMask is 0
	TruthMask  *tensor.Tensor
	Target     *tensor.Tensor // Optional [B, P, F]
	TargetMask *tensor.Tensor
}

// Size returns the number of rows.
func (b *Batch) Size() int { return b.X.Dim(0) }

// Steps returns the time dimension of X.
func (b *Batch) Steps() int { return b.X.Dim(1) }

// Features returns the feature dimension of X.
func (b *Batch) Features() int { return b.X.Dim(2) }

// Intact returns the uncorrupted input and its mask. Without artificial
// missingness these are X and Mask.
func (b *Batch) Intact() (x, mask *tensor.Tensor) {
	if b.XIntact != nil {
		return b.XIntact, b.IntactMask
	}
	return b.X, b.Mask
}

// ImputationTarget returns the reference values and the mask of entries an
// imputation should be scored on:
//   - Truth entries that are missing in the input, when Truth is present;
//   - otherwise the artificially removed entries, when corruption was applied;
//   - otherwise the observed entries (reconstruction).
func (b *Batch) ImputationTarget() (target, mask *tensor.Tensor) {
	if b.Truth != nil {
		m := tensor.Zip(b.TruthMask, b.Mask, func(truth, in float64) float64 {
			if truth != 0 && in == 0 {
				return 1
			}
			return 0
		})
		return b.Truth, m
	}
	if b.Indicating != nil {
		return b.XIntact, b.Indicating
	}
	return b.X, b.Mask
}

// Row returns a [T, F] view of row i of t.
func Row(t *tensor.Tensor, i int) *tensor.Tensor {
	steps, features := t.Dim(1), t.Dim(2)
	per := steps * features
	v, _ := tensor.Wrap(t.Data()[i*per:(i+1)*per], tensor.Shape{steps, features})
	return v
}

// Slice returns rows [start, end) of b as a new batch sharing no buffers with b.
func (b *Batch) Slice(start, end int) *Batch {
	out := &Batch{
		X:    sliceRows(b.X, start, end),
		Mask: sliceRows(b.Mask, start, end),

		XIntact:    sliceRows(b.XIntact, start, end),
		IntactMask: sliceRows(b.IntactMask, start, end),
		Indicating: sliceRows(b.Indicating, start, end),
		Truth:      sliceRows(b.Truth, start, end),
		TruthMask:  sliceRows(b.TruthMask, start, end),
		Target:     sliceRows(b.Target, start, end),
		TargetMask: sliceRows(b.TargetMask, start, end),
	}
	if b.Indices != nil {
		out.Indices = append([]int(nil), b.Indices[start:end]...)
	}
	if b.Lengths != nil {
		out.Lengths = append([]int(nil), b.Lengths[start:end]...)
	}
	if b.Labels != nil {
		out.Labels = append([]int(nil), b.Labels[start:end]...)
	}
	return out
}

// Clone returns a deep copy of b.
func (b *Batch) Clone() *Batch {
	return b.Slice(0, b.Size())
}

func sliceRows(t *tensor.Tensor, start, end int) *tensor.Tensor {
	if t == nil {
		return nil
	}
	shape := t.Shape().Clone()
	per := t.Len() / max(shape[0], 1)
	shape[0] = end - start
	out, _ := tensor.FromSlice(t.Data()[start*per:end*per], shape)
	return out
}
