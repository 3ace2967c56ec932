// Package nn implements the neural network building blocks used by the
// reference architectures.
//
// This package provides:
//   - Parameter: named trainable tensors
//   - Module: anything that owns parameters
//   - StateDict / LoadStateDict: name → tensor snapshots for checkpoints
//   - Linear and RNNCell layers
//   - Masked losses that never read missing entries
//
// Layers compute through an *autodiff.Tape; pass a nil tape for inference.
package nn

import (
	"fmt"
	"sort"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/tensor"
)

// Module is the base interface for all components that own parameters.
//
// Modules can be composed: a model returns the concatenation of its layers'
// parameters, in a fixed order.
type Module interface {
	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters.
	Parameters() []*Parameter
}

// NumParameters returns the total number of scalar parameters of m.
func NumParameters(m Module) int {
	n := 0
	for _, p := range m.Parameters() {
		n += p.Tensor().Len()
	}
	return n
}

// StateDict returns a deep copy of every parameter keyed by name.
//
// The copy is detached: later optimizer steps do not change it, which is what
// a checkpoint needs.
func StateDict(m Module) map[string]*tensor.Tensor {
	out := make(map[string]*tensor.Tensor, len(m.Parameters()))
	for _, p := range m.Parameters() {
		out[p.Name()] = p.Tensor().Clone()
	}
	return out
}

// CheckStateDict verifies that state holds exactly the parameters of m with
// matching shapes. It never modifies m.
func CheckStateDict(m Module, state map[string]*tensor.Tensor) error {
	params := m.Parameters()
	if len(state) != len(params) {
		return errs.Compatibility("parameters",
			fmt.Sprintf("%d tensors", len(params)), fmt.Sprintf("%d tensors", len(state)))
	}
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return errs.Compatibility(p.Name(), "present", "missing")
		}
		if !t.Shape().Equal(p.Shape()) {
			return errs.Compatibility(p.Name(), fmt.Sprint([]int(p.Shape())), fmt.Sprint([]int(t.Shape())))
		}
	}
	return nil
}

// LoadStateDict copies state into the parameters of m.
//
// The whole dictionary is validated first, so a mismatch leaves every
// parameter untouched.
func LoadStateDict(m Module, state map[string]*tensor.Tensor) error {
	if err := CheckStateDict(m, state); err != nil {
		return err
	}
	for _, p := range m.Parameters() {
		if err := p.Tensor().CopyFrom(state[p.Name()]); err != nil {
			return fmt.Errorf("load %s: %w", p.Name(), err)
		}
	}
	return nil
}

// SortedNames returns the keys of a state dict in lexical order.
func SortedNames(state map[string]*tensor.Tensor) []string {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params is a Module built from an explicit parameter list.
type Params []*Parameter

// Parameters implements Module.
func (ps Params) Parameters() []*Parameter { return ps }

// Collect concatenates the parameters of several modules in order.
func Collect(modules ...Module) Params {
	var out Params
	for _, m := range modules {
		out = append(out, m.Parameters()...)
	}
	return out
}
