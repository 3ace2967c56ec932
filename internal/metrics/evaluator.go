// Package metrics scores predictions over a full validation pass.
//
// Evaluators accumulate sums and counts per batch and divide once in Result,
// so a metric does not depend on how the pass was batched. Every sum is
// masked: a missing entry never contributes.
package metrics

import (
	"math"
	"sort"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/data"
	"github.com/born-ml/pots/internal/errs"
)

// Metric names.
const (
	MAE          = "mae"
	MSE          = "mse"
	RMSE         = "rmse"
	MRE          = "mre"
	CrossEntropy = "cross_entropy"
	Accuracy     = "accuracy"
	Precision    = "precision"
	Recall       = "recall"
	F1           = "f1"
	ROCAUC       = "roc_auc"
	RandIndex    = "rand_index"
	Purity       = "purity"
	ReconMSE     = "recon_mse"
)

var minimized = map[string]bool{
	MAE: true, MSE: true, RMSE: true, MRE: true, CrossEntropy: true, ReconMSE: true,
	Accuracy: false, Precision: false, Recall: false, F1: false, ROCAUC: false, RandIndex: false, Purity: false,
}

// Result maps metric names to values.
type Result map[string]float64

// Names returns the metric names in lexical order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Monitor names the metric that drives early stopping.
type Monitor struct {
	Name     string
	Minimize bool
}

// Improved reports whether candidate beats best by more than minDelta. Any
// finite value improves on a NaN best.
func (m Monitor) Improved(candidate, best, minDelta float64) bool {
	if math.IsNaN(candidate) {
		return false
	}
	if math.IsNaN(best) {
		return true
	}
	if m.Minimize {
		return candidate < best-minDelta
	}
	return candidate > best+minDelta
}

// Worst is the initial best value for m.
func (m Monitor) Worst() float64 {
	if m.Minimize {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// Evaluator accumulates metrics over batches.
type Evaluator interface {
	Reset()
	Update(b *data.Batch, p *core.Prediction) error
	Result() Result
	Monitor() Monitor
}

// DefaultMonitor returns the metric each task is ranked by.
func DefaultMonitor(task core.Task) string {
	switch task {
	case core.TaskImputation, core.TaskForecasting:
		return MAE
	case core.TaskClassification:
		return CrossEntropy
	default:
		return ReconMSE
	}
}

// New returns the evaluator for task. An empty monitor selects the task
// default; otherwise it must name a metric the evaluator reports.
func New(task core.Task, monitor string, classes int) (Evaluator, error) {
	if monitor == "" {
		monitor = DefaultMonitor(task)
	}
	minimize, known := minimized[monitor]
	if !known || !reports(task, monitor) {
		return nil, errs.Configuration("monitor", "%s models do not report %q", task, monitor)
	}
	mon := Monitor{Name: monitor, Minimize: minimize}

	switch task {
	case core.TaskImputation:
		return &imputationEvaluator{monitor: mon}, nil
	case core.TaskForecasting:
		return &forecastEvaluator{monitor: mon}, nil
	case core.TaskClassification:
		return &classificationEvaluator{monitor: mon, classes: classes}, nil
	case core.TaskClustering:
		return &clusteringEvaluator{monitor: mon}, nil
	case core.TaskAnomaly:
		return &anomalyEvaluator{monitor: mon}, nil
	}
	return nil, errs.Configuration("task", "unknown task %q", task)
}

func reports(task core.Task, name string) bool {
	switch task {
	case core.TaskImputation, core.TaskForecasting:
		return name == MAE || name == MSE || name == RMSE || name == MRE
	case core.TaskClassification:
		return name == CrossEntropy || name == Accuracy || name == Precision ||
			name == Recall || name == F1 || name == ROCAUC
	case core.TaskClustering:
		return name == ReconMSE || name == RandIndex || name == Purity
	case core.TaskAnomaly:
		return name == ReconMSE || name == Precision || name == Recall || name == F1
	}
	return false
}
