// Package pipeline sequences the derivation stages as a statically declared
// directed acyclic graph: each stage is a pure function from the run state's
// inputs to a new output collection, executed in topological order.
package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Stage is one named node of the derivation graph.
type Stage interface {
	// ID returns the unique identifier for this stage.
	ID() string

	// Name returns the human-readable name for this stage.
	Name() string

	// Dependencies returns the IDs of stages that must complete first.
	Dependencies() []string

	// Execute runs the stage against the shared run state.
	Execute(ctx context.Context, state *RunState) error
}

// FuncStage adapts a function into a Stage.
type FuncStage struct {
	id           string
	name         string
	dependencies []string
	fn           func(ctx context.Context, state *RunState) error
}

// NewFuncStage creates a stage from a function.
func NewFuncStage(id, name string, dependencies []string, fn func(ctx context.Context, state *RunState) error) *FuncStage {
	if dependencies == nil {
		dependencies = []string{}
	}
	return &FuncStage{id: id, name: name, dependencies: dependencies, fn: fn}
}

// ID returns the stage ID.
func (s *FuncStage) ID() string { return s.id }

// Name returns the stage name.
func (s *FuncStage) Name() string { return s.name }

// Dependencies returns the stage dependencies.
func (s *FuncStage) Dependencies() []string { return s.dependencies }

// Execute runs the stage function.
func (s *FuncStage) Execute(ctx context.Context, state *RunState) error {
	return s.fn(ctx, state)
}

// StageStatus records how one stage ended.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageResult is the runner's record of one stage execution.
type StageResult struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// StageError wraps a stage failure with the stage it came from.
type StageError struct {
	StageID string
	Err     error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.StageID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}
