package facade

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/internal/tensor"
)

// Keys of the scaler statistics in checkpoint.State.Extra.
const (
	scalerMean = "scaler.mean"
	scalerStd  = "scaler.std"
)

// Save writes the fitted model, its optimizer state and the input scaler to
// path as a single checkpoint file. The write is atomic.
func (m *Model) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.model == nil {
		return errs.ErrNotFitted
	}

	state := checkpoint.Capture(m.model, m.opt)
	if m.scaler != nil {
		mean, std := m.scaler.Tensors()
		state.Extra = map[string]*tensor.Tensor{scalerMean: mean, scalerStd: std}
	}

	meta := checkpoint.MetaFor(m.model)
	meta.ID = uuid.NewString()
	meta.Kind = checkpoint.KindFinal
	if m.opt != nil {
		meta.OptimizerType = m.opt.Name()
	}
	if m.last != nil {
		meta.RunID = m.last.RunID
		meta.Epoch = m.last.Best.Epoch
		meta.Step = m.last.Best.Step
		meta.Metric = m.last.Best.Metric
		meta.Value = m.last.Best.Value
	}
	meta.Metadata = map[string]string{
		"device_placement": m.device.Placement.String(),
		"normalized":       fmt.Sprint(m.scaler != nil),
	}
	return checkpoint.WriteFile(path, state, meta)
}

// Load replaces the model with the one saved at path. The checkpoint must
// hold the configured architecture; anything else is a CompatibilityError and
// leaves the current model untouched.
func (m *Model) Load(path string) error {
	state, meta, err := checkpoint.ReadFile(path)
	if err != nil {
		return err
	}
	if meta.Task != m.task {
		return errs.Compatibility("task", string(m.task), string(meta.Task))
	}
	if meta.Architecture != m.cfg.Architecture {
		return errs.Compatibility("architecture", m.cfg.Architecture, meta.Architecture)
	}

	hyper := meta.Hyper
	hyper.Seed = m.cfg.Seed
	model, err := core.New(meta.Architecture, hyper)
	if err != nil {
		return err
	}
	optName := meta.OptimizerType
	if optName == "" {
		optName = m.cfg.Optimizer
	}
	opt, err := optim.New(optim.Config{Name: optName, LR: m.cfg.LearningRate, Momentum: m.cfg.Momentum}, model.Parameters())
	if err != nil {
		return err
	}
	if err := checkpoint.Restore(model, opt, state, meta); err != nil {
		return err
	}

	var scaler *data.Scaler
	if mean, ok := state.Extra[scalerMean]; ok {
		std, ok := state.Extra[scalerStd]
		if !ok {
			return errs.Compatibility(scalerStd, "present", "missing")
		}
		if scaler, err = data.ScalerFromTensors(mean, std); err != nil {
			return err
		}
	}
	resolved, err := m.devices.Resolve(m.cfg.DevicePlacement)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.model, m.opt, m.scaler, m.device = model, opt, scaler, resolved
	m.last = nil
	return nil
}
