// Package checkpoint persists and restores model and optimizer state.
//
// A checkpoint is a State (parameters, buffers, optimizer state) plus Meta
// describing where in training it was taken. Stores write atomically, so a
// checkpoint is either fully visible to Load or not at all.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/born-ml/pots/internal/core"
	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/nn"
	"github.com/born-ml/pots/internal/optim"
	"github.com/born-ml/pots/internal/serialization"
	"github.com/born-ml/pots/internal/tensor"
)

// Kind tells why a checkpoint was written.
type Kind string

// Checkpoint kinds.
const (
	KindBest     Kind = "best"
	KindPeriodic Kind = "periodic"
	KindFinal    Kind = "final"
)

// Tensor name prefixes inside a .pots file.
const (
	paramPrefix  = "param."
	bufferPrefix = "buffer."
	optimPrefix  = "optim."
	extraPrefix  = "extra."
)

const hyperKey = "hyper"

// State is a deep copy of everything needed to resume or serve a model.
type State struct {
	Params    map[string]*tensor.Tensor
	Buffers   map[string]*tensor.Tensor // Model buffers, see core.Buffered
	Optimizer map[string]*tensor.Tensor
	Extra     map[string]*tensor.Tensor // Owned by the caller, e.g. scaler statistics
}

// Meta describes a checkpoint.
type Meta struct {
	ID            string
	RunID         string
	Kind          Kind
	Architecture  string
	Task          core.Task
	Hyper         core.Hyper
	Epoch         int
	Step          int64
	Metric        string
	Value         float64
	OptimizerType string
	CreatedAt     time.Time
	Metadata      map[string]string
}

// Capture snapshots model and, if non-nil, opt.
func Capture(model core.Model, opt optim.Optimizer) *State {
	s := &State{Params: nn.StateDict(model)}
	if b, ok := model.(core.Buffered); ok {
		s.Buffers = cloneAll(b.Buffers())
	}
	if opt != nil {
		s.Optimizer = opt.StateDict()
	}
	return s
}

// MetaFor fills the model identity fields of a Meta.
func MetaFor(model core.Model) Meta {
	spec := model.Spec()
	return Meta{Architecture: spec.Architecture, Task: spec.Task, Hyper: spec.Hyper}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	return &State{
		Params:    cloneAll(s.Params),
		Buffers:   cloneAll(s.Buffers),
		Optimizer: cloneAll(s.Optimizer),
		Extra:     cloneAll(s.Extra),
	}
}

func cloneAll(src map[string]*tensor.Tensor) map[string]*tensor.Tensor {
	if src == nil {
		return nil
	}
	out := make(map[string]*tensor.Tensor, len(src))
	for k, v := range src {
		out[k] = v.Clone()
	}
	return out
}

// Restore loads state into model and, if non-nil, opt.
//
// Architecture, task and every parameter shape are checked before anything
// is modified. On any error the model, its buffers and opt keep their
// previous state.
func Restore(model core.Model, opt optim.Optimizer, state *State, meta Meta) error {
	spec := model.Spec()
	if meta.Architecture != spec.Architecture {
		return errs.Compatibility("architecture", spec.Architecture, meta.Architecture)
	}
	if meta.Task != spec.Task {
		return errs.Compatibility("task", string(spec.Task), string(meta.Task))
	}
	if err := nn.CheckStateDict(model, state.Params); err != nil {
		return err
	}
	loadOptimizer := opt != nil && len(state.Optimizer) > 0
	if loadOptimizer && meta.OptimizerType != "" && meta.OptimizerType != opt.Name() {
		return errs.Compatibility("optimizer", opt.Name(), meta.OptimizerType)
	}

	// Buffers and optimizer state validate as they load, each all or nothing.
	// Buffers go first and are put back if the optimizer rejects its state.
	b, buffered := model.(core.Buffered)
	var previous map[string]*tensor.Tensor
	if buffered {
		previous = cloneAll(b.Buffers())
		if err := b.LoadBuffers(state.Buffers); err != nil {
			return fmt.Errorf("restore buffers: %w", err)
		}
	}
	if loadOptimizer {
		if err := opt.LoadStateDict(state.Optimizer); err != nil {
			if buffered {
				if rerr := b.LoadBuffers(previous); rerr != nil {
					return errors.Join(fmt.Errorf("restore optimizer: %w", err), rerr)
				}
			}
			return fmt.Errorf("restore optimizer: %w", err)
		}
	}
	return nn.LoadStateDict(model, state.Params)
}

func toFile(state *State, meta Meta) (*serialization.File, error) {
	hyper, err := json.Marshal(meta.Hyper)
	if err != nil {
		return nil, fmt.Errorf("encode hyperparameters: %w", err)
	}
	metadata := make(map[string]string, len(meta.Metadata)+1)
	for k, v := range meta.Metadata {
		metadata[k] = v
	}
	metadata[hyperKey] = string(hyper)

	value, hasValue := meta.Value, true
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value, hasValue = 0, false
	}
	f := &serialization.File{
		Header: serialization.Header{
			Architecture: meta.Architecture,
			Task:         string(meta.Task),
			CreatedAt:    meta.CreatedAt,
			Metadata:     metadata,
			Checkpoint: &serialization.CheckpointMeta{
				ID:            meta.ID,
				RunID:         meta.RunID,
				Kind:          string(meta.Kind),
				Epoch:         meta.Epoch,
				Step:          meta.Step,
				Metric:        meta.Metric,
				Value:         value,
				HasValue:      hasValue,
				OptimizerType: meta.OptimizerType,
			},
		},
		Tensors: make(map[string]*tensor.Tensor),
	}
	for prefix, group := range map[string]map[string]*tensor.Tensor{
		paramPrefix:  state.Params,
		bufferPrefix: state.Buffers,
		optimPrefix:  state.Optimizer,
		extraPrefix:  state.Extra,
	} {
		for name, t := range group {
			f.Tensors[prefix+name] = t
		}
	}
	return f, nil
}

func fromFile(f *serialization.File) (*State, Meta, error) {
	h := f.Header
	meta := Meta{
		Architecture: h.Architecture,
		Task:         core.Task(h.Task),
		CreatedAt:    h.CreatedAt,
		Metadata:     make(map[string]string),
	}
	for k, v := range h.Metadata {
		if k == hyperKey {
			if err := json.Unmarshal([]byte(v), &meta.Hyper); err != nil {
				return nil, Meta{}, fmt.Errorf("decode hyperparameters: %w", err)
			}
			continue
		}
		meta.Metadata[k] = v
	}
	if c := h.Checkpoint; c != nil {
		meta.ID, meta.RunID, meta.Kind = c.ID, c.RunID, Kind(c.Kind)
		meta.Epoch, meta.Step = c.Epoch, c.Step
		meta.Metric, meta.Value, meta.OptimizerType = c.Metric, c.Value, c.OptimizerType
		if !c.HasValue {
			meta.Value = math.NaN()
		}
	}

	state := &State{Params: make(map[string]*tensor.Tensor)}
	for name, t := range f.Tensors {
		switch {
		case strings.HasPrefix(name, paramPrefix):
			state.Params[strings.TrimPrefix(name, paramPrefix)] = t
		case strings.HasPrefix(name, bufferPrefix):
			state.Buffers = put(state.Buffers, strings.TrimPrefix(name, bufferPrefix), t)
		case strings.HasPrefix(name, optimPrefix):
			state.Optimizer = put(state.Optimizer, strings.TrimPrefix(name, optimPrefix), t)
		case strings.HasPrefix(name, extraPrefix):
			state.Extra = put(state.Extra, strings.TrimPrefix(name, extraPrefix), t)
		default:
			return nil, Meta{}, fmt.Errorf("unexpected tensor %q", name)
		}
	}
	return state, meta, nil
}

func put(m map[string]*tensor.Tensor, k string, v *tensor.Tensor) map[string]*tensor.Tensor {
	if m == nil {
		m = make(map[string]*tensor.Tensor)
	}
	m[k] = v
	return m
}

// WriteFile atomically writes a single checkpoint to path.
func WriteFile(path string, state *State, meta Meta) error {
	f, err := toFile(state, meta)
	if err != nil {
		return err
	}
	return serialization.WriteFile(path, f)
}

// ReadFile reads a checkpoint written by WriteFile. A missing file is
// reported as ErrCheckpointNotFound.
func ReadFile(path string) (*State, Meta, error) {
	f, err := serialization.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Meta{}, errs.CheckpointNotFound(path)
		}
		return nil, Meta{}, err
	}
	return fromFile(f)
}
