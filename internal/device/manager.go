package device

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/logging"
)

// Resolved is the outcome of resolving a placement request.
type Resolved struct {
	Requested   string
	Placement   Placement
	Description string

	// Fallback is set when the requested placement was unavailable and the
	// default was used instead.
	Fallback *errs.DeviceUnavailableError
}

// Replicas returns the number of data-parallel replicas, at least 1.
func (r *Resolved) Replicas() int {
	if r.Placement.Replicas < 1 {
		return 1
	}
	return r.Placement.Replicas
}

// Manager resolves placements and caches the results.
type Manager struct {
	logger logrus.FieldLogger
	probes map[Kind]probe

	// Kinds with an executor. Only the host has one.
	executors map[Kind]bool

	mu    sync.Mutex
	cache map[string]*Resolved
}

// NewManager returns a Manager that logs fallbacks to logger.
func NewManager(logger logrus.FieldLogger) *Manager {
	return &Manager{
		logger: logging.OrDiscard(logger),
		probes: map[Kind]probe{
			CPU:    probeCPU,
			CUDA:   probeCUDA,
			WebGPU: probeWebGPU,
		},
		executors: map[Kind]bool{CPU: true},
		cache:     make(map[string]*Resolved),
	}
}

// Resolve maps a placement string to an execution target. A malformed string
// is a ConfigurationError. An unavailable device is not an error: it is
// logged and the default placement is returned with Fallback set.
func (m *Manager) Resolve(requested string) (*Resolved, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.cache[requested]; ok {
		return r, nil
	}

	p, err := Parse(requested)
	if err != nil {
		return nil, err
	}
	r, unavailable := m.resolve(p)
	r.Requested = requested
	if unavailable != nil {
		var derr *errs.DeviceUnavailableError
		errors.As(unavailable, &derr)
		r.Fallback = derr
		m.logger.WithFields(logrus.Fields{
			"requested": requested,
			"using":     r.Placement.String(),
			"reason":    derr.Reason,
		}).Warn("Device unavailable, falling back")
	} else {
		m.logger.WithFields(logrus.Fields{
			"placement": r.Placement.String(),
			"device":    r.Description,
		}).Debug("Device resolved")
	}
	m.cache[requested] = r
	return r, nil
}

func (m *Manager) resolve(p Placement) (*Resolved, error) {
	desc, err := m.probes[p.Kind](p.Index)
	if err == nil && !m.executors[p.Kind] {
		err = errors.New("no executor for " + string(p.Kind) + " in this build")
	}
	if err == nil {
		return &Resolved{Placement: p, Description: desc}, nil
	}

	unavailable := &errs.DeviceUnavailableError{Placement: p.String(), Reason: err.Error()}
	hostDesc, _ := m.probes[CPU](0)
	return &Resolved{Placement: Default, Description: hostDesc}, unavailable
}
