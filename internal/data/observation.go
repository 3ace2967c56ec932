// Package data implements the observation mask protocol and the batching
// machinery shared by every model.
//
// A dataset of N partially observed multivariate series is an Observation:
// values X and mask Mask, both [N, T, F], with Mask 1 where a value was
// observed and 0 where it is missing. Missing values may hold anything,
// including NaN; nothing downstream reads them. Batches zero them on
// materialization.
package data

import (
	"fmt"
	"math"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Observation pairs values with an equal-shape binary mask.
type Observation struct {
	X       *tensor.Tensor // [N, T, F]
	Mask    *tensor.Tensor // [N, T, F], 1 observed, 0 missing
	Lengths []int          // Valid steps per sample; positions >= Lengths[i] are padding
}

// NewObservation validates x and mask and wraps them. Both are used as is,
// not copied.
func NewObservation(x, mask *tensor.Tensor) (*Observation, error) {
	if x.Rank() != 3 {
		return nil, errs.DataShape("values must be [samples, steps, features]", nil, x.Shape())
	}
	if !x.Shape().Equal(mask.Shape()) {
		return nil, errs.DataShape("mask shape differs from values", x.Shape(), mask.Shape())
	}
	for i, m := range mask.Data() {
		if m != 0 && m != 1 {
			return nil, &errs.DataShapeError{What: fmt.Sprintf("mask entry %d is %v, want 0 or 1", i, m)}
		}
	}
	lengths := make([]int, x.Dim(0))
	for i := range lengths {
		lengths[i] = x.Dim(1)
	}
	return &Observation{X: x, Mask: mask, Lengths: lengths}, nil
}

// FromNaN derives the mask from x: NaN entries are missing.
func FromNaN(x *tensor.Tensor) (*Observation, error) {
	mask := tensor.Map(x, func(v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return 1
	})
	return NewObservation(x, mask)
}

// FromSequences builds an Observation from ragged per-sample series
// values[i][t][f]. Shorter samples are padded to the longest length with mask
// 0. masks may be nil, in which case NaN marks missing values.
func FromSequences(values, masks [][][]float64) (*Observation, error) {
	if masks != nil && len(masks) != len(values) {
		return nil, errs.DataShape("mask sample count", []int{len(values)}, []int{len(masks)})
	}
	n, steps, features := len(values), 0, -1
	for i, seq := range values {
		steps = max(steps, len(seq))
		for t, row := range seq {
			if features == -1 {
				features = len(row)
			}
			if len(row) != features {
				return nil, errs.DataShape(fmt.Sprintf("sample %d step %d feature count", i, t),
					[]int{features}, []int{len(row)})
			}
			if masks != nil && (len(masks[i]) != len(seq) || len(masks[i][t]) != features) {
				return nil, &errs.DataShapeError{What: fmt.Sprintf("sample %d mask shape differs from values", i)}
			}
		}
	}
	if features < 0 {
		features = 0
	}

	x := tensor.Zeros(n, steps, features)
	mask := tensor.Zeros(n, steps, features)
	lengths := make([]int, n)
	xd, md := x.Data(), mask.Data()
	for i, seq := range values {
		lengths[i] = len(seq)
		for t, row := range seq {
			base := (i*steps + t) * features
			for f, v := range row {
				observed := !math.IsNaN(v)
				if masks != nil {
					m := masks[i][t][f]
					if m != 0 && m != 1 {
						return nil, &errs.DataShapeError{What: fmt.Sprintf("mask entry [%d %d %d] is %v, want 0 or 1", i, t, f, m)}
					}
					observed = m == 1
				}
				if observed {
					xd[base+f] = v
					md[base+f] = 1
				}
			}
		}
	}
	return &Observation{X: x, Mask: mask, Lengths: lengths}, nil
}

// N returns the number of samples.
func (o *Observation) N() int { return o.X.Dim(0) }

// Steps returns the padded sequence length T.
func (o *Observation) Steps() int { return o.X.Dim(1) }

// Features returns the feature count F.
func (o *Observation) Features() int { return o.X.Dim(2) }

// Observed returns the number of observed entries.
func (o *Observation) Observed() int {
	n := 0
	for _, m := range o.Mask.Data() {
		if m != 0 {
			n++
		}
	}
	return n
}

// sampleLen returns the valid length of sample i.
func (o *Observation) sampleLen(i int) int {
	if o.Lengths == nil {
		return o.Steps()
	}
	return o.Lengths[i]
}
