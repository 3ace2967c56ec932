// Package trainer drives the epoch loop: training steps, validation, early
// stopping and checkpointing.
//
// A Fit call moves through the states
//
//	Idle → Training → Validating → Improved | NoImprovement → Training | Stopped
//
// and always ends by restoring the best recorded model state.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/internal/autodiff"
	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/logging"
	"github.com/born-ml/pots/internal/metrics"
	"github.com/born-ml/pots/internal/optim"
)

// State is a state of the training state machine.
type State int32

// States.
const (
	Idle State = iota
	Training
	Validating
	Improved
	NoImprovement
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Training:
		return "training"
	case Validating:
		return "validating"
	case Improved:
		return "improved"
	case NoImprovement:
		return "no_improvement"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config controls the loop.
type Config struct {
	Epochs             int
	Patience           int     // Evaluations without improvement before stopping; <= 0 disables
	MinDelta           float64 // Required improvement of the monitored metric
	MaxGradNorm        float64 // Global gradient norm bound; <= 0 disables clipping
	ValidationInterval int     // Validate every k epochs and on the last one
	CheckpointInterval int     // Periodic checkpoint every k epochs; 0 disables
	MaxNonFinite       int     // Non-finite losses tolerated before the run diverges
	Seed               uint64
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		Epochs:             100,
		Patience:           10,
		MaxGradNorm:        1,
		ValidationInterval: 1,
		MaxNonFinite:       3,
		Seed:               42,
	}
}

// Result summarizes a Fit call.
type Result struct {
	RunID     string
	Epochs    int   // Completed epochs
	Steps     int64 // Optimizer steps taken
	BestEpoch int
	BestValue float64
	Monitor   string
	Stopped   bool // Early stopping triggered
	History   []EpochRecord
	Warnings  []*errs.NumericInstabilityWarning
	Best      checkpoint.Meta
}

// Trainer runs Fit. A Trainer is reusable but not safe for concurrent Fit
// calls.
type Trainer struct {
	cfg   Config
	state atomic.Int32
}

// New validates cfg.
func New(cfg Config) (*Trainer, error) {
	switch {
	case cfg.Epochs < 1:
		return nil, errs.Configuration("epochs", "must be >= 1, got %d", cfg.Epochs)
	case cfg.ValidationInterval < 1:
		return nil, errs.Configuration("validation_interval", "must be >= 1, got %d", cfg.ValidationInterval)
	case cfg.CheckpointInterval < 0:
		return nil, errs.Configuration("checkpoint_interval", "must be >= 0, got %d", cfg.CheckpointInterval)
	case cfg.MinDelta < 0:
		return nil, errs.Configuration("min_delta", "must be >= 0, got %v", cfg.MinDelta)
	case cfg.MaxNonFinite < 0:
		return nil, errs.Configuration("max_non_finite", "must be >= 0, got %d", cfg.MaxNonFinite)
	}
	return &Trainer{cfg: cfg}, nil
}

// State returns the current state.
func (t *Trainer) State() State { return State(t.state.Load()) }

func (t *Trainer) setState(s State) { t.state.Store(int32(s)) }

type fit struct {
	*Trainer
	run    *Run
	logger logrus.FieldLogger
	res    *Result
	mon    metrics.Monitor

	nonFinite int
	stale     int
}

// Fit trains run.Model on train, validating on val when it is non-nil.
//
// Without validation the loop runs for Epochs epochs and the final state is
// the best one. With validation it stops early after Patience evaluations
// without improvement. In both cases the model ends in the best recorded
// state. Cancelling ctx stops the loop between batches; checkpoints already
// committed stay loadable.
func (t *Trainer) Fit(ctx context.Context, run *Run, train, val *data.Loader) (res *Result, err error) {
	if train == nil || train.Len() == 0 {
		return nil, errs.Configuration("train", "training data yields no batches")
	}
	if val != nil && run.Evaluator == nil {
		return nil, errs.Configuration("monitor", "validation requires an evaluator")
	}

	f := &fit{
		Trainer: t,
		run:     run,
		logger:  logging.OrDiscard(run.Logger).WithField("run_id", run.ID()),
		res:     &Result{RunID: run.ID(), BestValue: math.NaN()},
	}
	if val != nil {
		f.mon = run.Evaluator.Monitor()
		f.res.Monitor = f.mon.Name
		f.res.BestValue = f.mon.Worst()
	}

	if run.Recorder != nil {
		spec := run.Model.Spec()
		info := RunInfo{
			ID:           run.ID(),
			Architecture: spec.Architecture,
			Task:         spec.Task,
			Placement:    run.Device.Placement.String(),
			Monitor:      f.res.Monitor,
			Epochs:       t.cfg.Epochs,
			StartedAt:    time.Now().UTC(),
		}
		if rerr := run.Recorder.StartRun(ctx, info); rerr != nil {
			f.logger.WithError(rerr).Warn("Failed to record run start")
		}
		defer func() {
			if rerr := run.Recorder.FinishRun(context.WithoutCancel(ctx), run.ID(), res, err); rerr != nil {
				f.logger.WithError(rerr).Warn("Failed to record run end")
			}
		}()
	}

	defer t.setState(Stopped)
	if err := f.loop(ctx, train, val); err != nil {
		return f.res, err
	}
	if err := f.finish(ctx, val != nil); err != nil {
		return f.res, err
	}
	return f.res, nil
}

func (f *fit) loop(ctx context.Context, train, val *data.Loader) error {
	cfg := f.cfg
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		f.setState(Training)
		start := time.Now()

		trainLoss, err := f.trainEpoch(ctx, train, epoch)
		if err != nil {
			return err
		}
		rec := EpochRecord{Epoch: epoch, Step: f.res.Steps, TrainLoss: trainLoss}

		stop := false
		if val != nil && (epoch%cfg.ValidationInterval == 0 || epoch == cfg.Epochs) {
			f.setState(Validating)
			result, err := Evaluate(ctx, f.run, val)
			if err != nil {
				return err
			}
			rec.Metrics = result
			if stop, err = f.judge(ctx, epoch, result, &rec); err != nil {
				return err
			}
		}

		if cfg.CheckpointInterval > 0 && epoch%cfg.CheckpointInterval == 0 {
			if err := f.periodic(ctx, epoch, rec); err != nil {
				return err
			}
		}

		rec.Duration = time.Since(start)
		f.res.Epochs = epoch
		f.res.History = append(f.res.History, rec)
		f.logEpoch(rec)
		if f.run.Recorder != nil {
			if err := f.run.Recorder.RecordEpoch(ctx, f.res.RunID, rec); err != nil {
				f.logger.WithError(err).Warn("Failed to record epoch")
			}
		}
		if stop {
			f.res.Stopped = true
			f.logger.WithFields(logrus.Fields{
				"epoch":      epoch,
				"patience":   cfg.Patience,
				"best_epoch": f.res.BestEpoch,
			}).Info("Early stopping triggered")
			break
		}
	}
	return nil
}

func (f *fit) trainEpoch(ctx context.Context, train *data.Loader, epoch int) (float64, error) {
	run := f.run
	params := run.Model.Parameters()
	it := train.Epoch(epoch)

	var sum float64
	var count int
	for b := it.Next(); b != nil; b = it.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b = run.Device.Move(b)
		step := f.res.Steps
		loss, grads, err := run.Device.Step(ctx, b, func(replica int, shard *data.Batch) (float64, autodiff.Gradients, error) {
			return f.forwardBackward(shard, step, replica)
		})
		if err != nil {
			return 0, err
		}

		norm := 0.0
		if isFinite(loss) {
			norm = optim.ClipGradNorm(params, grads, f.cfg.MaxGradNorm)
		}
		if !isFinite(loss) || !isFinite(norm) {
			if err := f.nonFiniteLoss(epoch, loss); err != nil {
				return 0, err
			}
			continue
		}
		run.Optimizer.Step(grads)
		f.res.Steps++
		sum += loss
		count++
	}
	if count == 0 {
		return math.NaN(), nil
	}
	return sum / float64(count), nil
}

// forwardBackward runs one shard on its own tape. Dropout and other
// randomness are seeded from the step and replica so a run is reproducible.
func (f *fit) forwardBackward(shard *data.Batch, step int64, replica int) (float64, autodiff.Gradients, error) {
	tape := autodiff.NewTape()
	tape.StartRecording()
	fc := &core.Context{
		Tape:     tape,
		Training: true,
		RNG:      rand.New(rand.NewPCG(f.cfg.Seed, uint64(step)<<8|uint64(replica))),
	}
	out, err := f.run.Model.Forward(fc, shard)
	if err != nil {
		return 0, nil, err
	}
	loss, err := f.run.Model.Loss(fc, out, shard)
	if err != nil {
		return 0, nil, err
	}
	value := loss.Item()
	if !isFinite(value) {
		return value, nil, nil
	}
	return value, tape.Backward(loss), nil
}

func (f *fit) nonFiniteLoss(epoch int, loss float64) error {
	f.nonFinite++
	w := &errs.NumericInstabilityWarning{Epoch: epoch, Step: f.res.Steps, Loss: loss, Count: f.nonFinite}
	f.res.Warnings = append(f.res.Warnings, w)
	f.logger.WithFields(logrus.Fields{
		"epoch": epoch,
		"step":  f.res.Steps,
		"loss":  loss,
		"count": f.nonFinite,
	}).Warn("Non-finite loss, skipping optimizer step")
	if f.run.OnWarning != nil {
		f.run.OnWarning(w)
	}
	if f.nonFinite > f.cfg.MaxNonFinite {
		return errs.TrainingDiverged(f.nonFinite, f.cfg.MaxNonFinite)
	}
	return nil
}

// judge compares a validation result with the best so far and reports
// whether patience ran out.
func (f *fit) judge(ctx context.Context, epoch int, result metrics.Result, rec *EpochRecord) (bool, error) {
	value, ok := result[f.mon.Name]
	if !ok {
		value = math.NaN()
	}
	if f.mon.Improved(value, f.res.BestValue, f.cfg.MinDelta) {
		f.setState(Improved)
		rec.Improved = true
		f.stale = 0
		f.res.BestEpoch, f.res.BestValue = epoch, value
		return false, f.saveBest(ctx, epoch, value)
	}
	f.setState(NoImprovement)
	f.stale++
	return f.cfg.Patience > 0 && f.stale >= f.cfg.Patience, nil
}

func (f *fit) meta(epoch int, value float64) checkpoint.Meta {
	meta := checkpoint.MetaFor(f.run.Model)
	meta.Epoch = epoch
	meta.Step = f.res.Steps
	meta.Metric = f.mon.Name
	meta.Value = value
	meta.OptimizerType = f.run.Optimizer.Name()
	return meta
}

func (f *fit) saveBest(ctx context.Context, epoch int, value float64) error {
	state := checkpoint.Capture(f.run.Model, f.run.Optimizer)
	saved, err := f.run.Checkpoints.SaveBest(ctx, state, f.meta(epoch, value))
	if err != nil {
		return err
	}
	f.res.Best = saved
	f.recordCheckpoint(ctx, saved)
	return nil
}

func (f *fit) periodic(ctx context.Context, epoch int, rec EpochRecord) error {
	value := math.NaN()
	if rec.Metrics != nil {
		value = rec.Metrics[f.mon.Name]
	}
	meta := f.meta(epoch, value)
	meta.Kind = checkpoint.KindPeriodic
	saved, err := f.run.Checkpoints.Save(ctx, checkpoint.Capture(f.run.Model, f.run.Optimizer), meta)
	if err != nil {
		return err
	}
	f.recordCheckpoint(ctx, saved)
	return nil
}

func (f *fit) recordCheckpoint(ctx context.Context, meta checkpoint.Meta) {
	if f.run.Recorder == nil {
		return
	}
	if err := f.run.Recorder.RecordCheckpoint(ctx, meta); err != nil {
		f.logger.WithError(err).Warn("Failed to record checkpoint")
	}
}

// finish leaves the model in its best state. Without validation, or when no
// evaluation ever produced a usable metric, the final state is recorded as
// the best.
func (f *fit) finish(ctx context.Context, validated bool) error {
	if !validated || f.res.BestEpoch == 0 {
		if validated {
			f.logger.Warn("Monitored metric never improved, keeping final state")
		}
		f.res.BestEpoch = f.res.Epochs
		return f.saveBest(ctx, f.res.Epochs, f.res.BestValue)
	}

	state, meta, err := f.run.Checkpoints.LoadBest()
	if err != nil {
		return fmt.Errorf("load best checkpoint: %w", err)
	}
	if err := checkpoint.Restore(f.run.Model, f.run.Optimizer, state, meta); err != nil {
		return fmt.Errorf("restore best checkpoint: %w", err)
	}
	f.logger.WithFields(logrus.Fields{
		"best_epoch": meta.Epoch,
		"metric":     meta.Metric,
		"value":      meta.Value,
	}).Info("Restored best checkpoint")
	return nil
}

func (f *fit) logEpoch(rec EpochRecord) {
	fields := logrus.Fields{
		"epoch":      rec.Epoch,
		"step":       rec.Step,
		"train_loss": rec.TrainLoss,
	}
	for name, v := range rec.Metrics {
		fields["val_"+name] = v
	}
	f.logger.WithFields(fields).Info("Epoch completed")
}

// Evaluate runs the model in inference mode over every batch of val and
// returns the evaluator's result.
func Evaluate(ctx context.Context, run *Run, val *data.Loader) (metrics.Result, error) {
	ev := run.Evaluator
	ev.Reset()
	it := val.Epoch(0)
	for b := it.Next(); b != nil; b = it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b = run.Device.Move(b)
		pred, err := run.Model.Predict(b)
		if err != nil {
			return nil, fmt.Errorf("validation predict: %w", err)
		}
		if err := ev.Update(b, pred); err != nil {
			return nil, fmt.Errorf("validation metrics: %w", err)
		}
	}
	return ev.Result(), nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// IsCancellation reports whether err came from a cancelled or expired context.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
