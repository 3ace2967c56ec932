package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/pots/internal/logging"
)

// Manager tracks the checkpoints of one training run: a single best
// checkpoint and a bounded history of periodic ones.
type Manager struct {
	store     Store
	runID     string
	retention int
	logger    logrus.FieldLogger

	mu       sync.Mutex
	best     string
	periodic []string // Oldest first
}

// NewManager returns a manager writing to store. retention bounds the number
// of periodic checkpoints kept; 0 keeps all of them. An empty runID gets a
// fresh one.
func NewManager(store Store, runID string, retention int, logger logrus.FieldLogger) *Manager {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Manager{
		store:     store,
		runID:     runID,
		retention: retention,
		logger:    logging.OrDiscard(logger),
	}
}

// RunID returns the run the manager writes checkpoints for.
func (m *Manager) RunID() string { return m.runID }

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

func (m *Manager) stamp(meta Meta, kind Kind) Meta {
	meta.ID = uuid.NewString()
	meta.RunID = m.runID
	meta.Kind = kind
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	return meta
}

// Save writes a periodic or final checkpoint and evicts the oldest periodic
// checkpoints beyond the retention count. It returns the stored Meta.
func (m *Manager) Save(ctx context.Context, state *State, meta Meta) (Meta, error) {
	kind := meta.Kind
	if kind == "" || kind == KindBest {
		kind = KindPeriodic
	}
	meta = m.stamp(meta, kind)
	if err := m.store.Put(ctx, state, meta); err != nil {
		return Meta{}, fmt.Errorf("save checkpoint: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == KindPeriodic {
		m.periodic = append(m.periodic, meta.ID)
		for m.retention > 0 && len(m.periodic) > m.retention {
			oldest := m.periodic[0]
			m.periodic = m.periodic[1:]
			if err := m.store.Delete(oldest); err != nil {
				m.logger.WithFields(logrus.Fields{"checkpoint": oldest, "error": err}).Warn("Failed to evict checkpoint")
			}
		}
	}
	m.logger.WithFields(logrus.Fields{
		"checkpoint": meta.ID,
		"kind":       kind,
		"epoch":      meta.Epoch,
	}).Debug("Checkpoint saved")
	return meta, nil
}

// SaveBest writes state as the new best checkpoint of the run. The best
// marker moves only after the write succeeded, and the superseded best is
// removed afterwards.
func (m *Manager) SaveBest(ctx context.Context, state *State, meta Meta) (Meta, error) {
	meta = m.stamp(meta, KindBest)
	if err := m.store.Put(ctx, state, meta); err != nil {
		return Meta{}, fmt.Errorf("save best checkpoint: %w", err)
	}
	if err := m.store.SetBest(ctx, m.runID, meta.ID); err != nil {
		_ = m.store.Delete(meta.ID)
		return Meta{}, fmt.Errorf("move best marker: %w", err)
	}

	m.mu.Lock()
	previous := m.best
	m.best = meta.ID
	m.mu.Unlock()

	if previous != "" {
		if err := m.store.Delete(previous); err != nil {
			m.logger.WithFields(logrus.Fields{"checkpoint": previous, "error": err}).Warn("Failed to remove superseded best")
		}
	}
	m.logger.WithFields(logrus.Fields{
		"checkpoint": meta.ID,
		"epoch":      meta.Epoch,
		"metric":     meta.Metric,
		"value":      meta.Value,
	}).Debug("Best checkpoint updated")
	return meta, nil
}

// Load returns the checkpoint with id.
func (m *Manager) Load(id string) (*State, Meta, error) {
	return m.store.Get(id)
}

// LoadBest returns the best checkpoint of the run.
func (m *Manager) LoadBest() (*State, Meta, error) {
	id, err := m.store.Best(m.runID)
	if err != nil {
		return nil, Meta{}, err
	}
	return m.store.Get(id)
}

// BestID returns the id of the best checkpoint, or "" before the first one.
func (m *Manager) BestID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.best
}

// History returns the ids of the retained periodic checkpoints, oldest first.
func (m *Manager) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.periodic...)
}
