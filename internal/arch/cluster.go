package arch

import (
	"fmt"
	"sync"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// AEClustererName is the registry name of AEClusterer.
const AEClustererName = "ae_clusterer"

const centroidsBuffer = "centroids"

func init() {
	core.Register(AEClustererName, core.TaskClustering, func(h core.Hyper) (core.Model, error) {
		return NewAEClusterer(h)
	})
}

// AEClusterer learns latent codes with a masked autoencoder and clusters them
// with k-means. The centroids are computed by Calibrate after training and
// saved as a buffer.
type AEClusterer struct {
	ae *autoencoder

	mu        sync.RWMutex
	centroids *tensor.Tensor // [K, H]
}

// NewAEClusterer builds an AEClusterer with h.Clusters clusters.
func NewAEClusterer(h core.Hyper) (*AEClusterer, error) {
	if err := requirePositive("n_clusters", h.Clusters); err != nil {
		return nil, err
	}
	ae, err := newAutoencoder(h, saltCluster)
	if err != nil {
		return nil, err
	}
	return &AEClusterer{ae: ae, centroids: tensor.Zeros(h.Clusters, h.HiddenSize)}, nil
}

func (c *AEClusterer) Parameters() []*nn.Parameter { return c.ae.parameters() }
func (c *AEClusterer) Name() string                { return AEClustererName }
func (c *AEClusterer) Task() core.Task             { return core.TaskClustering }

func (c *AEClusterer) Spec() core.Spec {
	return core.Spec{Architecture: AEClustererName, Task: core.TaskClustering, Hyper: c.ae.hyper}
}

func (c *AEClusterer) Forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	return c.ae.forward(fc, b)
}

func (c *AEClusterer) Loss(fc *core.Context, out *core.Output, b *data.Batch) (*tensor.Tensor, error) {
	return c.ae.loss(fc, out, b), nil
}

// Calibrate fits the centroids on the latent codes of every sample in src.
func (c *AEClusterer) Calibrate(src core.BatchSource) error {
	points, err := c.ae.latents(src)
	if err != nil {
		return err
	}
	k := c.ae.hyper.Clusters
	if len(points) < k {
		return errs.DataShape("clustering needs at least one sample per cluster", []int{k}, []int{len(points)})
	}
	centroids, _ := kmeans(points, k, initRNG(c.ae.hyper.Seed, saltCluster<<32))
	t := tensor.Zeros(k, c.ae.hyper.HiddenSize)
	for i, p := range centroids {
		copy(t.Data()[i*len(p):], p)
	}
	c.mu.Lock()
	c.centroids = t
	c.mu.Unlock()
	return nil
}

// Predict implements core.Model. Classes holds the nearest centroid of each
// sample.
func (c *AEClusterer) Predict(b *data.Batch) (*core.Prediction, error) {
	out, err := c.ae.forward(core.Inference(), b)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	centroids := rows(c.centroids)
	c.mu.RUnlock()
	width := out.Latent.Dim(1)
	classes := make([]int, b.Size())
	for i := range classes {
		classes[i], _ = nearest(out.Latent.Data()[i*width:(i+1)*width], centroids)
	}
	return &core.Prediction{Classes: classes, Reconstruction: out.Values}, nil
}

// Buffers implements core.Buffered.
func (c *AEClusterer) Buffers() map[string]*tensor.Tensor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return map[string]*tensor.Tensor{centroidsBuffer: c.centroids.Clone()}
}

// LoadBuffers implements core.Buffered.
func (c *AEClusterer) LoadBuffers(buffers map[string]*tensor.Tensor) error {
	t, ok := buffers[centroidsBuffer]
	if !ok {
		return fmt.Errorf("%w: missing buffer %q", errs.ErrCompatibility, centroidsBuffer)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !t.Shape().Equal(c.centroids.Shape()) {
		return errs.Compatibility(centroidsBuffer, fmt.Sprint(c.centroids.Shape()), fmt.Sprint(t.Shape()))
	}
	c.centroids = t.Clone()
	return nil
}

func rows(t *tensor.Tensor) [][]float64 {
	n, width := t.Dim(0), t.Dim(1)
	out := make([][]float64, n)
	for i := range out {
		out[i] = t.Data()[i*width : (i+1)*width]
	}
	return out
}
