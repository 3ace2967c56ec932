// Package facade is the single entry point behind the public task packages.
// It turns a Config and datasets into a trained model: it builds the loaders,
// resolves the device, wires the optimizer, evaluator, checkpoint manager and
// optional run catalog into a trainer.Run, and replays the same data path for
// inference.
//
// Fit holds the write lock for its whole duration; Predict, Impute and Save
// take the read lock and may run concurrently with each other.
package facade

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	// Registers the reference architectures.
	_ "github.com/born-ml/pots/internal/arch"
	"github.com/born-ml/pots/internal/catalog"
	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/config"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/device"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/logging"
	"github.com/born-ml/pots/internal/metrics"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/internal/trainer"
)

// Model is a task-bound model handle.
type Model struct {
	task    core.Task
	cfg     config.Config
	logger  logrus.FieldLogger
	devices *device.Manager

	// OnWarning, when set, receives every non-finite loss warning of Fit.
	OnWarning func(*errs.NumericInstabilityWarning)

	mu     sync.RWMutex
	model  core.Model
	opt    optim.Optimizer
	scaler *data.Scaler
	device *device.Resolved
	last   *trainer.Result
}

// New returns an unfitted model for task. cfg is copied and validated, and
// its architecture must serve task. A nil logger discards output.
func New(task core.Task, cfg *config.Config, logger logrus.FieldLogger) (*Model, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	archTask, err := core.TaskOf(cfg.Architecture)
	if err != nil {
		return nil, err
	}
	if archTask != task {
		return nil, errs.Configuration("architecture", "%s is a %s architecture, not %s", cfg.Architecture, archTask, task)
	}
	logger = logging.OrDiscard(logger)
	return &Model{
		task:    task,
		cfg:     *cfg,
		logger:  logger,
		devices: device.NewManager(logger),
	}, nil
}

// Task returns the task the model serves.
func (m *Model) Task() core.Task { return m.task }

// Config returns a copy of the configuration.
func (m *Model) Config() config.Config { return m.cfg }

// Fitted reports whether Fit or Load has completed.
func (m *Model) Fitted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model != nil
}

// Core returns the underlying model, or nil before Fit or Load.
func (m *Model) Core() core.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.model
}

// LastResult returns the summary of the last successful Fit.
func (m *Model) LastResult() *trainer.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Fit trains a fresh model on train, validating on val when it is non-nil.
//
// The model handle only switches to the new model when Fit succeeds; a failed
// or cancelled Fit leaves the previous state (if any) in place. Checkpoints
// committed before a cancellation stay in the checkpoint directory.
func (m *Model) Fit(ctx context.Context, train, val *data.Dataset) (*trainer.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := train.Validate(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if val != nil {
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
		if err := m.matches(train, val); err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
	}

	var scaler *data.Scaler
	if m.cfg.Normalize {
		scaler = data.FitScaler(train.Obs)
		var err error
		if train, err = scaler.TransformDataset(train); err != nil {
			return nil, err
		}
		if val != nil {
			if val, err = scaler.TransformDataset(val); err != nil {
				return nil, err
			}
		}
	}

	hyper := m.hyperFor(train)
	model, err := core.New(m.cfg.Architecture, hyper)
	if err != nil {
		return nil, err
	}
	opt, err := optim.New(optim.Config{
		Name:     m.cfg.Optimizer,
		LR:       m.cfg.LearningRate,
		Momentum: m.cfg.Momentum,
	}, model.Parameters())
	if err != nil {
		return nil, err
	}
	resolved, err := m.devices.Resolve(m.cfg.DevicePlacement)
	if err != nil {
		return nil, err
	}
	trainLoader, valLoader, err := m.loaders(train, val)
	if err != nil {
		return nil, err
	}
	if trainLoader.Len() == 0 {
		return nil, errs.Configuration("train", "training data yields no batches")
	}

	var res *trainer.Result
	if len(model.Parameters()) == 0 {
		m.logger.WithField("architecture", m.cfg.Architecture).Info("Model has no parameters, skipping training")
		res = &trainer.Result{}
	} else {
		if res, err = m.train(ctx, model, opt, resolved, trainLoader, valLoader); err != nil {
			return res, err
		}
	}

	if c, ok := model.(core.Calibrator); ok {
		if err := c.Calibrate(m.inferenceLoader(train).Epoch(0)); err != nil {
			return res, fmt.Errorf("calibrate: %w", err)
		}
	}

	m.model, m.opt, m.scaler, m.device, m.last = model, opt, scaler, resolved, res
	return res, nil
}

func (m *Model) train(ctx context.Context, model core.Model, opt optim.Optimizer, resolved *device.Resolved,
	trainLoader, valLoader *data.Loader) (*trainer.Result, error) {
	store, err := m.store()
	if err != nil {
		return nil, err
	}
	run := &trainer.Run{
		Model:       model,
		Optimizer:   opt,
		Device:      resolved,
		Checkpoints: checkpoint.NewManager(store, "", m.cfg.CheckpointRetentionCount, m.logger),
		Logger:      m.logger,
		OnWarning:   m.OnWarning,
	}
	if valLoader != nil {
		classes := model.Spec().Hyper.Classes
		if run.Evaluator, err = metrics.New(m.task, m.cfg.Monitor, classes); err != nil {
			return nil, err
		}
	}
	if m.cfg.CatalogPath != "" {
		cat, err := catalog.Open(m.cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if cerr := cat.Close(); cerr != nil {
				m.logger.WithError(cerr).Warn("Failed to close run catalog")
			}
		}()
		run.Recorder = cat
	}

	tr, err := trainer.New(trainer.Config{
		Epochs:             m.cfg.Epochs,
		Patience:           m.cfg.Patience,
		MinDelta:           m.cfg.MinDelta,
		MaxGradNorm:        m.cfg.MaxGradNorm,
		ValidationInterval: m.cfg.ValidationInterval,
		CheckpointInterval: m.cfg.CheckpointInterval,
		MaxNonFinite:       m.cfg.MaxNonFinite,
		Seed:               m.cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	return tr.Fit(ctx, run, trainLoader, valLoader)
}

func (m *Model) store() (checkpoint.Store, error) {
	if m.cfg.CheckpointDir == "" {
		return checkpoint.NewMemoryStore(), nil
	}
	return checkpoint.NewFileStore(m.cfg.CheckpointDir)
}

// hyperFor fills the shape hyperparameters the configuration leaves at zero
// from the training data.
func (m *Model) hyperFor(ds *data.Dataset) core.Hyper {
	h := m.cfg.Hyper()
	if h.Steps == 0 {
		h.Steps = ds.Obs.Steps()
	}
	if h.Features == 0 {
		h.Features = ds.Obs.Features()
	}
	if h.Classes == 0 && m.task == core.TaskClassification {
		h.Classes = ds.NumClasses()
	}
	if ds.Target != nil {
		h.PredSteps = ds.Target.Steps()
	}
	return h
}

// matches checks that val has the layout the model is built from train.
// Fixed-window tasks also need the same number of steps.
func (m *Model) matches(train, val *data.Dataset) error {
	if got, want := val.Obs.Features(), train.Obs.Features(); got != want {
		return errs.DataShape("feature count differs from training data", []int{want}, []int{got})
	}
	switch m.task {
	case core.TaskForecasting, core.TaskClustering, core.TaskAnomaly:
		if got, want := val.Obs.Steps(), train.Obs.Steps(); got != want {
			return errs.DataShape("step count differs from training data", []int{want}, []int{got})
		}
	}
	if train.Target != nil && val.Target != nil && val.Target.Steps() != train.Target.Steps() {
		return errs.DataShape("horizon differs from training data", []int{train.Target.Steps()}, []int{val.Target.Steps()})
	}
	return nil
}

// corrupts reports whether training batches get artificial holes. Only the
// reconstruction-trained tasks learn from them.
func (m *Model) corrupts() bool {
	switch m.task {
	case core.TaskImputation, core.TaskClustering, core.TaskAnomaly:
		return m.cfg.ArtificialMissingRate > 0
	}
	return false
}

func (m *Model) loaders(train, val *data.Dataset) (*data.Loader, *data.Loader, error) {
	cfg := data.LoaderConfig{
		BatchSize:   m.cfg.BatchSize,
		Shuffle:     true,
		Seed:        m.cfg.Seed,
		TrimPadding: m.task == core.TaskClassification,
	}
	if m.corrupts() {
		cfg.ArtificialMissingRate = m.cfg.ArtificialMissingRate
	}
	trainLoader, err := data.NewLoader(train, cfg)
	if err != nil {
		return nil, nil, err
	}
	if val == nil {
		return trainLoader, nil, nil
	}

	vcfg := cfg
	vcfg.Shuffle = false
	vcfg.FixedCorruption = true
	// Held-out truth is scored directly; without it imputation is scored on
	// a fixed set of artificial holes.
	if val.Truth != nil || m.task != core.TaskImputation {
		vcfg.ArtificialMissingRate = 0
	}
	valLoader, err := data.NewLoader(val, vcfg)
	if err != nil {
		return nil, nil, err
	}
	return trainLoader, valLoader, nil
}

func (m *Model) inferenceLoader(ds *data.Dataset) *data.Loader {
	l, _ := data.NewLoader(ds, data.LoaderConfig{BatchSize: m.cfg.BatchSize, Seed: m.cfg.Seed})
	return l
}
