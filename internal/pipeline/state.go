package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"metrocli/internal/allocate"
	"metrocli/internal/hierarchy"
	"metrocli/internal/impute"
	"metrocli/internal/ingest"
	"metrocli/internal/resolve"
	"metrocli/pkg/contracts/domain"
)

// RunState is the shared container stages read inputs from and write
// outputs to. Inputs are immutable snapshots; stages never mutate what a
// previous stage wrote, they add new collections. The mutex only guards the
// field assignments themselves; stage ordering is the real synchronization.
type RunState struct {
	mu    sync.RWMutex
	runID string

	bundle    *ingest.Bundle
	keys      *resolve.ResolvedKeys
	imputed   []impute.Result
	allocated []allocate.Result
	summary   *hierarchy.Summary
	facts     []domain.DerivedFact

	snapshotDir string
}

// NewRunState creates a run state with a fresh run ID.
func NewRunState() *RunState {
	return &RunState{runID: uuid.NewString()}
}

// RunID returns the run's unique identifier.
func (s *RunState) RunID() string {
	return s.runID
}

// SetBundle stores the loaded input tables.
func (s *RunState) SetBundle(b *ingest.Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundle = b
}

// Bundle returns the loaded input tables.
func (s *RunState) Bundle() *ingest.Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundle
}

// SetKeys stores the resolver output.
func (s *RunState) SetKeys(k *resolve.ResolvedKeys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = k
}

// Keys returns the resolver output.
func (s *RunState) Keys() *resolve.ResolvedKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

// SetImputed stores the imputer output.
func (s *RunState) SetImputed(r []impute.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imputed = r
}

// Imputed returns the imputer output.
func (s *RunState) Imputed() []impute.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.imputed
}

// AppendAllocated adds one metric's allocator output.
func (s *RunState) AppendAllocated(r []allocate.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocated = append(s.allocated, r...)
}

// Allocated returns the allocator output across metrics.
func (s *RunState) Allocated() []allocate.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allocated
}

// SetSummary stores the hierarchy aggregator output.
func (s *RunState) SetSummary(sum *hierarchy.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = sum
}

// Summary returns the hierarchy aggregator output.
func (s *RunState) Summary() *hierarchy.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// SetFacts stores the assembled derived facts.
func (s *RunState) SetFacts(f []domain.DerivedFact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = f
}

// Facts returns the assembled derived facts.
func (s *RunState) Facts() []domain.DerivedFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facts
}

// SetSnapshotDir records where the run's snapshot was published.
func (s *RunState) SetSnapshotDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshotDir = dir
}

// SnapshotDir returns the published snapshot directory.
func (s *RunState) SnapshotDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotDir
}
