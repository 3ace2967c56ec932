package arch

import (
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/tensor"
)

// autoencoder is the masked autoencoder shared by the clustering and anomaly
// models: [x⊙m, m] window → tanh latent [B, H] → reconstruction [B, T, F].
type autoencoder struct {
	hyper   core.Hyper
	encoder *nn.Linear
	decoder *nn.Linear
}

func newAutoencoder(h core.Hyper, salt uint64) (*autoencoder, error) {
	for _, c := range []struct {
		option string
		v      int
	}{{"n_steps", h.Steps}, {"n_features", h.Features}, {"hidden_size", h.HiddenSize}} {
		if err := requirePositive(c.option, c.v); err != nil {
			return nil, err
		}
	}
	if err := checkDropout(h.Dropout); err != nil {
		return nil, err
	}
	rng := initRNG(h.Seed, salt)
	return &autoencoder{
		hyper:   h,
		encoder: nn.NewLinear("encoder", h.Steps*2*h.Features, h.HiddenSize, rng),
		decoder: nn.NewLinear("decoder", h.HiddenSize, h.Steps*h.Features, rng),
	}, nil
}

func (a *autoencoder) parameters() []*nn.Parameter {
	return nn.Collect(a.encoder, a.decoder)
}

func (a *autoencoder) forward(fc *core.Context, b *data.Batch) (*core.Output, error) {
	if b.Features() != a.hyper.Features {
		return nil, featureMismatch(a.hyper.Features, b)
	}
	if err := checkSteps(a.hyper.Steps, b); err != nil {
		return nil, err
	}
	tape := fc.Tape
	latent := tape.Tanh(a.encoder.Forward(tape, flatInputs(b)))
	h := latent
	if fc.Training {
		h = tape.Dropout(h, a.hyper.Dropout, fc.RNG)
	}
	y := a.decoder.Forward(tape, h)
	return &core.Output{
		Values: tape.Reshape(y, b.Size(), b.Steps(), b.Features()),
		Latent: latent,
	}, nil
}

// loss scores the reconstruction against every entry observed before any
// artificial corruption, so the model also learns to denoise.
func (a *autoencoder) loss(fc *core.Context, out *core.Output, b *data.Batch) *tensor.Tensor {
	x, mask := b.Intact()
	return nn.MaskedMSE(fc.Tape, out.Values, x, mask)
}

// latents encodes every batch of src and returns the codes in order.
func (a *autoencoder) latents(src core.BatchSource) ([][]float64, error) {
	var out [][]float64
	for b := src.Next(); b != nil; b = src.Next() {
		o, err := a.forward(core.Inference(), b)
		if err != nil {
			return nil, err
		}
		width := o.Latent.Dim(1)
		d := o.Latent.Data()
		for i := range b.Size() {
			out = append(out, append([]float64(nil), d[i*width:(i+1)*width]...))
		}
	}
	return out, nil
}
