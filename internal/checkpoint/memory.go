// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/meshintel/deepresearch/pkg/types"
)

// MemoryStore is an in-memory Store for tests and one-shot CLI runs that
// do not need durability. Runs are stored as JSON blobs so Save/Load
// round-trips behave exactly like the SQLite store.
type MemoryStore struct {
	mu    sync.Mutex
	runs  map[string][]byte
	order []string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte)}
}

// Save replaces the run's checkpoint.
func (s *MemoryStore) Save(_ context.Context, run *types.ResearchRun) error {
	state, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run %s: %w", run.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.RunID]; !ok {
		s.order = append(s.order, run.RunID)
	}
	s.runs[run.RunID] = state
	return nil
}

// Load returns the checkpointed run, or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, runID string) (*types.ResearchRun, error) {
	s.mu.Lock()
	state, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRun(state)
}

// Pending returns non-terminal runs in insertion order.
func (s *MemoryStore) Pending(_ context.Context) ([]*types.ResearchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []*types.ResearchRun
	for _, id := range s.order {
		state, ok := s.runs[id]
		if !ok {
			continue
		}
		run, err := decodeRun(state)
		if err != nil {
			return nil, err
		}
		if !run.CurrentPhase.Terminal() {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

// Delete removes the run's checkpoint.
func (s *MemoryStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
