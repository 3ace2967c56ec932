// Package arch holds the reference architectures. Each file registers its
// model with core.Register from init, so importing the package for side
// effects makes every architecture available by name:
//
//	import _ "github.com/born-ml/pots/internal/arch"
//
//	model, err := core.New("mlp_imputer", hyper)
//
// Every model reads its input as the pair [x⊙m, m], so a missing entry is
// indistinguishable from an observed zero only through the mask channel.
package arch

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Salts separating the parameter stream of each architecture, so two models
// built from the same seed do not start from correlated weights.
const (
	saltMLP uint64 = iota + 1
	saltRNN
	saltForecast
	saltCluster
	saltAnomaly
)

func initRNG(seed, salt uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, salt))
}

func requirePositive(option string, v int) error {
	if v <= 0 {
		return errs.Configuration(option, "must be positive, got %d", v)
	}
	return nil
}

func checkDropout(rate float64) error {
	if rate < 0 || rate >= 1 {
		return errs.Configuration("dropout", "must be in [0, 1), got %g", rate)
	}
	return nil
}

func checkSteps(want int, b *data.Batch) error {
	if b.Steps() != want {
		return errs.DataShape("time steps differ from model", []int{want}, []int{b.Steps()})
	}
	return nil
}

func featureMismatch(want int, b *data.Batch) error {
	return errs.DataShape("feature count differs from model", []int{want}, []int{b.Features()})
}

// stepInputs lays out b as [B*T, 2F] rows holding [x⊙m, m] for every time step.
func stepInputs(b *data.Batch) *tensor.Tensor {
	rows, features := b.Size()*b.Steps(), b.Features()
	out := tensor.Zeros(rows, 2*features)
	x, m, o := b.X.Data(), b.Mask.Data(), out.Data()
	for r := range rows {
		src := r * features
		dst := r * 2 * features
		for f := range features {
			o[dst+f] = x[src+f] * m[src+f]
			o[dst+features+f] = m[src+f]
		}
	}
	return out
}

// flatInputs lays out b as [B, T*2F], one row per sample.
func flatInputs(b *data.Batch) *tensor.Tensor {
	return stepInputs(b).MustReshape(b.Size(), b.Steps()*2*b.Features())
}

// stepAt returns the [B, 2F] slice of step t from stepInputs output.
func stepAt(in *tensor.Tensor, batch, steps, t int) *tensor.Tensor {
	width := in.Dim(1)
	out := tensor.Zeros(batch, width)
	src, dst := in.Data(), out.Data()
	for i := range batch {
		copy(dst[i*width:(i+1)*width], src[(i*steps+t)*width:(i*steps+t+1)*width])
	}
	return out
}

// merge keeps observed entries of x and takes the rest from estimate.
func merge(x, mask, estimate *tensor.Tensor) *tensor.Tensor {
	out := estimate.Clone()
	xd, md, od := x.Data(), mask.Data(), out.Data()
	for i, m := range md {
		if m != 0 {
			od[i] = xd[i]
		}
	}
	return out
}

// sampleMSE returns the masked reconstruction MSE of every sample of a
// [B, T, F] pair. A sample with nothing observed scores 0.
func sampleMSE(recon, x, mask *tensor.Tensor) []float64 {
	batch := recon.Dim(0)
	per := recon.Len() / max(batch, 1)
	rd, xd, md := recon.Data(), x.Data(), mask.Data()
	out := make([]float64, batch)
	for i := range batch {
		var num, denom float64
		for j := i * per; j < (i+1)*per; j++ {
			if md[j] == 0 {
				continue
			}
			d := rd[j] - xd[j]
			num += md[j] * d * d
			denom += md[j]
		}
		if denom > 0 {
			out[i] = num / denom
		}
	}
	return out
}

func argmaxRows(t *tensor.Tensor) []int {
	rows, cols := t.Dim(0), t.Dim(1)
	out := make([]int, rows)
	d := t.Data()
	for i := range rows {
		best := 0
		for j := 1; j < cols; j++ {
			if d[i*cols+j] > d[i*cols+best] {
				best = j
			}
		}
		out[i] = best
	}
	return out
}
