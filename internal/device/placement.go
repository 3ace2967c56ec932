// Package device resolves placement strings such as "cpu:4" or "cuda:1" to
// an execution target, and runs data-parallel steps on host replicas.
//
// Accelerators are probed so a run reports what the machine offers, but only
// host executors exist: a request for an accelerator is logged as a
// DeviceUnavailableError and resolved to cpu.
package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/pots/internal/errs"
)

// Kind is a device family.
type Kind string

// Device kinds.
const (
	CPU    Kind = "cpu"
	CUDA   Kind = "cuda"
	WebGPU Kind = "webgpu"
)

// Placement is a parsed placement string.
type Placement struct {
	Kind     Kind
	Index    int // Accelerator ordinal
	Replicas int // Host replicas, >= 1 for cpu
}

// Default is the placement every unavailable request falls back to.
var Default = Placement{Kind: CPU, Replicas: 1}

// Parse reads "cpu", "cpu:N", "cuda", "cuda:N" or "webgpu". The empty string
// means cpu.
func Parse(s string) (Placement, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	name, arg, hasArg := strings.Cut(s, ":")
	n := 0
	if hasArg {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 0 {
			return Placement{}, errs.Configuration("device_placement", "invalid placement %q", s)
		}
		n = v
	}
	switch Kind(name) {
	case CPU:
		if hasArg && n < 1 {
			return Placement{}, errs.Configuration("device_placement", "cpu replicas must be >= 1, got %d", n)
		}
		if !hasArg {
			n = 1
		}
		return Placement{Kind: CPU, Replicas: n}, nil
	case CUDA:
		return Placement{Kind: CUDA, Index: n, Replicas: 1}, nil
	case WebGPU:
		if hasArg {
			return Placement{}, errs.Configuration("device_placement", "webgpu takes no index: %q", s)
		}
		return Placement{Kind: WebGPU, Replicas: 1}, nil
	}
	return Placement{}, errs.Configuration("device_placement", "unknown device %q", name)
}

func (p Placement) String() string {
	switch {
	case p.Kind == CPU && p.Replicas > 1:
		return fmt.Sprintf("cpu:%d", p.Replicas)
	case p.Kind == CUDA:
		return fmt.Sprintf("cuda:%d", p.Index)
	}
	return string(p.Kind)
}
