package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/born-ml/pots/internal/errs"
	"github.com/born-ml/pots/internal/serialization"
)

// Store persists checkpoints by id.
type Store interface {
	// Put writes a checkpoint. It is atomic: on error, or when ctx is
	// cancelled, nothing becomes visible to Get.
	Put(ctx context.Context, state *State, meta Meta) error

	// Get returns the checkpoint with id, or an error wrapping
	// ErrCheckpointNotFound.
	Get(id string) (*State, Meta, error)

	Delete(id string) error

	// SetBest atomically points the best marker of runID at id.
	SetBest(ctx context.Context, runID, id string) error

	// Best returns the id the best marker of runID points at.
	Best(runID string) (string, error)
}

// FileStore keeps checkpoints as .pots files in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file a checkpoint id is stored in.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".pots")
}

func (s *FileStore) bestPath(runID string) string {
	return filepath.Join(s.dir, runID+".best")
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errs.Configuration("checkpoint_id", "invalid id %q", id)
	}
	return nil
}

func (s *FileStore) Put(ctx context.Context, state *State, meta Meta) error {
	if err := checkID(meta.ID); err != nil {
		return err
	}
	f, err := toFile(state, meta)
	if err != nil {
		return err
	}
	data, err := serialization.Marshal(f)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return serialization.WriteAtomic(s.Path(meta.ID), data)
}

func (s *FileStore) Get(id string) (*State, Meta, error) {
	if err := checkID(id); err != nil {
		return nil, Meta{}, errs.CheckpointNotFound(id)
	}
	return ReadFile(s.Path(id))
}

func (s *FileStore) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) SetBest(ctx context.Context, runID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return serialization.WriteAtomic(s.bestPath(runID), []byte(id+"\n"))
}

func (s *FileStore) Best(runID string) (string, error) {
	raw, err := os.ReadFile(s.bestPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return "", errs.CheckpointNotFound("best of run " + runID)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// MemoryStore keeps checkpoints in memory. It is used when no checkpoint
// directory is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	best    map[string]string
}

type memoryEntry struct {
	state *State
	meta  Meta
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), best: make(map[string]string)}
}

func (s *MemoryStore) Put(ctx context.Context, state *State, meta Meta) error {
	if err := checkID(meta.ID); err != nil {
		return err
	}
	entry := memoryEntry{state: state.Clone(), meta: meta}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[meta.ID] = entry
	return nil
}

func (s *MemoryStore) Get(id string) (*State, Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, Meta{}, errs.CheckpointNotFound(id)
	}
	return e.state.Clone(), e.meta, nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) SetBest(ctx context.Context, runID, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.best[runID] = id
	return nil
}

func (s *MemoryStore) Best(runID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.best[runID]
	if !ok {
		return "", errs.CheckpointNotFound("best of run " + runID)
	}
	return id, nil
}

// Len returns the number of stored checkpoints.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
