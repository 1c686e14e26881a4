package pipeline

import (
	"fmt"
	"sync"
)

// Registry holds the declared stages and computes their execution order.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string // registration order, used to break topological ties
}

// NewRegistry creates an empty stage registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage to the registry.
func (r *Registry) Register(stage Stage) error {
	if stage == nil {
		return fmt.Errorf("cannot register nil stage")
	}
	id := stage.ID()
	if id == "" {
		return fmt.Errorf("stage ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stages[id]; exists {
		return fmt.Errorf("stage %s already registered", id)
	}
	r.stages[id] = stage
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a stage by ID.
func (r *Registry) Get(id string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stage, exists := r.stages[id]
	if !exists {
		return nil, fmt.Errorf("stage %s not found", id)
	}
	return stage, nil
}

// Count returns the number of registered stages.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stages)
}

// DependencyOrder returns the stages topologically sorted by their declared
// dependencies (Kahn's algorithm), with registration order breaking ties so
// execution is deterministic. A cycle or a dependency on an unregistered
// stage is an error.
func (r *Registry) DependencyOrder() ([]Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	graph := make(map[string][]string)
	inDegree := make(map[string]int)
	for id := range r.stages {
		graph[id] = nil
		inDegree[id] = 0
	}

	for id, stage := range r.stages {
		for _, dep := range stage.Dependencies() {
			if _, exists := r.stages[dep]; !exists {
				return nil, fmt.Errorf("stage %s depends on unregistered stage %s", id, dep)
			}
			graph[dep] = append(graph[dep], id)
			inDegree[id]++
		}
	}

	var queue []string
	for _, id := range r.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	ordered := make([]Stage, 0, len(r.stages))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, r.stages[current])

		freed := make(map[string]bool)
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed[dependent] = true
			}
		}
		// Enqueue newly available stages in registration order.
		for _, id := range r.order {
			if freed[id] {
				queue = append(queue, id)
			}
		}
	}

	if len(ordered) != len(r.stages) {
		return nil, fmt.Errorf("dependency cycle detected among stages")
	}
	return ordered, nil
}

// ValidateDependencies checks that every declared dependency exists and the
// graph is acyclic.
func (r *Registry) ValidateDependencies() error {
	_, err := r.DependencyOrder()
	return err
}
