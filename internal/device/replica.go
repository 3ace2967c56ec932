package device

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/tensor"
)

// Move places b on the resolved device. Host batches are already resident,
// so for cpu this returns b itself.
func (r *Resolved) Move(b *data.Batch) *data.Batch {
	return b
}

// Shard splits b into at most Replicas contiguous shards. The first n%k
// shards get one extra sample, so the assignment depends only on the batch
// size and replica count.
func (r *Resolved) Shard(b *data.Batch) []*data.Batch {
	n := b.Size()
	k := min(r.Replicas(), n)
	if k <= 1 {
		return []*data.Batch{b}
	}
	shards := make([]*data.Batch, 0, k)
	start := 0
	for i := 0; i < k; i++ {
		size := n / k
		if i < n%k {
			size++
		}
		shards = append(shards, b.Slice(start, start+size))
		start += size
	}
	return shards
}

// StepFunc computes the loss and gradients of one shard. Each replica must use
// its own tape; parameters are shared read-only.
type StepFunc func(replica int, shard *data.Batch) (float64, autodiff.Gradients, error)

// Step runs step on every shard of b concurrently and reduces the results in
// replica order, weighting each shard by its share of the batch.
func (r *Resolved) Step(ctx context.Context, b *data.Batch, step StepFunc) (float64, autodiff.Gradients, error) {
	shards := r.Shard(b)
	if len(shards) == 1 {
		return step(0, shards[0])
	}

	losses := make([]float64, len(shards))
	grads := make([]autodiff.Gradients, len(shards))
	g, _ := errgroup.WithContext(ctx)
	for i, shard := range shards {
		g.Go(func() error {
			loss, gr, err := step(i, shard)
			losses[i], grads[i] = loss, gr
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	total := float64(b.Size())
	var loss float64
	reduced := make(autodiff.Gradients)
	for i, shard := range shards {
		w := float64(shard.Size()) / total
		loss += w * losses[i]
		for p, gr := range grads[i] {
			acc, ok := reduced[p]
			if !ok {
				acc = tensor.Zeros(gr.Shape()...)
				reduced[p] = acc
			}
			tensor.AxpyInPlace(acc, w, gr)
		}
	}
	return loss, reduced, nil
}
