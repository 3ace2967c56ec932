package trainer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/internal/checkpoint"
	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/device"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/metrics"
	"github.com/born-ml/pots/internal/optim"
)

// Run bundles the collaborators of one Fit call. It is built by the caller
// and passed down explicitly; the trainer keeps no global state.
type Run struct {
	Model       core.Model
	Optimizer   optim.Optimizer
	Device      *device.Resolved
	Checkpoints *checkpoint.Manager
	Evaluator   metrics.Evaluator // Required when a validation loader is given

	Recorder Recorder           // Optional
	Logger   logrus.FieldLogger // Optional

	// OnWarning is called for every non-finite training loss. Optional.
	OnWarning func(*errs.NumericInstabilityWarning)
}

// ID returns the run id, taken from the checkpoint manager.
func (r *Run) ID() string { return r.Checkpoints.RunID() }

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID           string
	Architecture string
	Task         core.Task
	Placement    string
	Monitor      string
	Epochs       int
	StartedAt    time.Time
}

// EpochRecord summarizes one completed epoch.
type EpochRecord struct {
	Epoch     int
	Step      int64 // Optimizer steps so far
	TrainLoss float64
	Metrics   metrics.Result // Nil when the epoch was not validated
	Improved  bool
	Duration  time.Duration
}

// Recorder receives run lifecycle events, e.g. to persist them in a catalog.
type Recorder interface {
	StartRun(ctx context.Context, info RunInfo) error
	RecordEpoch(ctx context.Context, runID string, rec EpochRecord) error
	RecordCheckpoint(ctx context.Context, meta checkpoint.Meta) error
	FinishRun(ctx context.Context, runID string, res *Result, runErr error) error
}
