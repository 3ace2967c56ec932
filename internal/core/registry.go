package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/pots/internal/errs"
)

// Constructor builds a model from hyperparameters.
type Constructor func(h Hyper) (Model, error)

type entry struct {
	task Task
	ctor Constructor
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]entry)
)

// Register makes an architecture available by name. It panics if name is
// already registered, like database/sql drivers.
func Register(name string, task Task, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if ctor == nil {
		panic("core: Register constructor is nil")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("core: Register called twice for architecture %q", name))
	}
	registry[name] = entry{task: task, ctor: ctor}
}

// New builds the architecture registered under name.
func New(name string, h Hyper) (Model, error) {
	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errs.Configuration("architecture", "unknown architecture %q (registered: %v)", name, Names())
	}
	m, err := e.ctor(h)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}
	return m, nil
}

// Names returns the registered architectures in lexical order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskOf returns the task an architecture serves.
func TaskOf(name string) (Task, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return "", errs.Configuration("architecture", "unknown architecture %q", name)
	}
	return e.task, nil
}

// ForTask returns the architectures registered for task, in lexical order.
func ForTask(task Task) []string {
	var out []string
	for _, name := range Names() {
		if t, _ := TaskOf(name); t == task {
			out = append(out, name)
		}
	}
	return out
}
