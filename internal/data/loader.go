package data

import (
	"math/rand/v2"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/parallel"
	"github.com/born-ml/pots/internal/tensor"
)

// LoaderConfig controls batching.
type LoaderConfig struct {
	BatchSize int
	Shuffle   bool   // Training mode: permute per epoch; otherwise input order
	Seed      uint64 // Source of every permutation and corruption pattern

	// TrimPadding truncates each batch to its longest sample.
	TrimPadding bool

	// ArtificialMissingRate applies MCAR corruption per batch when > 0.
	ArtificialMissingRate float64

	// FixedCorruption reuses the same corruption pattern every epoch, so every
	// validation pass scores the same holes.
	FixedCorruption bool
}

// Loader partitions a Dataset into batches.
//
// A Loader holds no iteration state: Epoch returns a fresh iterator, so the
// same epoch number always replays the same batches.
type Loader struct {
	ds  *Dataset
	cfg LoaderConfig
	par parallel.Config
}

// NewLoader validates ds and cfg.
func NewLoader(ds *Dataset, cfg LoaderConfig) (*Loader, error) {
	if cfg.BatchSize <= 0 {
		return nil, errs.Configuration("batch_size", "must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ArtificialMissingRate < 0 || cfg.ArtificialMissingRate >= 1 {
		return nil, errs.Configuration("artificial_missing_rate", "must be in [0, 1), got %v", cfg.ArtificialMissingRate)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &Loader{ds: ds, cfg: cfg, par: parallel.DefaultConfig()}, nil
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset { return l.ds }

// Config returns the loader configuration.
func (l *Loader) Config() LoaderConfig { return l.cfg }

// N returns the number of samples.
func (l *Loader) N() int { return l.ds.N() }

// Len returns the number of batches in an epoch: ceil(N / BatchSize).
func (l *Loader) Len() int {
	return (l.ds.N() + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Order returns the sample order used in epoch. In shuffle mode it is a
// permutation derived only from (Seed, epoch).
func (l *Loader) Order(epoch int) []int {
	n := l.ds.N()
	if !l.cfg.Shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	return rand.New(rand.NewPCG(l.cfg.Seed, uint64(epoch))).Perm(n)
}

// Epoch returns an iterator over the batches of epoch.
func (l *Loader) Epoch(epoch int) *Iterator {
	return &Iterator{loader: l, epoch: epoch, order: l.Order(epoch)}
}

// Iterator yields the batches of one epoch in order. It is finite and not safe
// for concurrent use.
type Iterator struct {
	loader   *Loader
	epoch    int
	order    []int
	position int
	batch    int
}

// Next returns the next batch, or nil when the epoch is complete.
func (it *Iterator) Next() *Batch {
	if it.position >= len(it.order) {
		return nil
	}
	end := min(it.position+it.loader.cfg.BatchSize, len(it.order))
	b := it.loader.materialize(it.order[it.position:end], it.epoch, it.batch)
	it.position = end
	it.batch++
	return b
}

// Index returns how many batches have been returned so far.
func (it *Iterator) Index() int { return it.batch }

// Batch materializes the given dataset rows in order, without corruption.
func (l *Loader) Batch(indices []int) *Batch {
	plain := *l
	plain.cfg.ArtificialMissingRate = 0
	return plain.materialize(indices, 0, 0)
}

func (l *Loader) materialize(indices []int, epoch, batchNo int) *Batch {
	obs := l.ds.Obs
	steps, features := obs.Steps(), obs.Features()
	if l.cfg.TrimPadding {
		longest := 0
		for _, idx := range indices {
			longest = max(longest, obs.sampleLen(idx))
		}
		steps = longest
	}

	bsz := len(indices)
	b := &Batch{
		Indices: append([]int(nil), indices...),
		X:       tensor.Zeros(bsz, steps, features),
		Mask:    tensor.Zeros(bsz, steps, features),
		Lengths: make([]int, bsz),
	}
	if l.ds.Labels != nil {
		b.Labels = make([]int, bsz)
	}
	if l.ds.Truth != nil {
		b.Truth = tensor.Zeros(bsz, steps, features)
		b.TruthMask = tensor.Zeros(bsz, steps, features)
	}
	if tg := l.ds.Target; tg != nil {
		b.Target = tensor.Zeros(bsz, tg.Steps(), features)
		b.TargetMask = tensor.Zeros(bsz, tg.Steps(), features)
	}

	parallel.For(bsz, func(row int) {
		idx := indices[row]
		n := min(obs.sampleLen(idx), steps)
		b.Lengths[row] = n
		copyObserved(b.X, b.Mask, row, obs.X, obs.Mask, idx, n)
		if b.Labels != nil {
			b.Labels[row] = l.ds.Labels[idx]
		}
		if b.Truth != nil {
			copyObserved(b.Truth, b.TruthMask, row, l.ds.Truth.X, l.ds.Truth.Mask, idx, n)
		}
		if tg := l.ds.Target; tg != nil {
			copyObserved(b.Target, b.TargetMask, row, tg.X, tg.Mask, idx, tg.sampleLen(idx))
		}
	}, l.par)

	if rate := l.cfg.ArtificialMissingRate; rate > 0 {
		if l.cfg.FixedCorruption {
			epoch = 0
		}
		c := MCAR(b.X, b.Mask, rate, corruptionRNG(l.cfg.Seed, epoch, batchNo))
		b.XIntact, b.IntactMask = c.XIntact, c.IntactMask
		b.X, b.Mask, b.Indicating = c.X, c.Mask, c.Indicating
	}
	return b
}

// copyObserved copies the first n steps of sample src into row dst, keeping
// only observed values. Everything else stays zero with mask 0.
func copyObserved(dstX, dstM *tensor.Tensor, row int, srcX, srcM *tensor.Tensor, sample, n int) {
	features := srcX.Dim(2)
	dstBase := row * dstX.Dim(1) * features
	srcBase := sample * srcX.Dim(1) * features
	xd, md := dstX.Data(), dstM.Data()
	sx, sm := srcX.Data(), srcM.Data()
	for j := 0; j < n*features; j++ {
		if sm[srcBase+j] != 0 {
			xd[dstBase+j] = sx[srcBase+j]
			md[dstBase+j] = 1
		}
	}
}

// corruptionRNG derives an independent stream per (seed, epoch, batch).
func corruptionRNG(seed uint64, epoch, batch int) *rand.Rand {
	const golden = 0x9E3779B97F4A7C15
	return rand.New(rand.NewPCG(seed^(uint64(epoch+1)*golden), uint64(batch)))
}
