package planner

import (
	"errors"
	"fmt"

	"github.com/Protocol-Lattice/agentforum/src/memory"
)

var (
	ErrStalled        = errors.New("planner stalled")
	ErrBudgetExceeded = errors.New("iteration budget exceeded")
)

// StalledDecisionError is returned when the oracle neither completes the task
// nor names a next action.
type StalledDecisionError struct {
	Iteration int
	Reasoning string
}

func (e *StalledDecisionError) Error() string {
	return fmt.Sprintf("iteration %d: decision has no next action", e.Iteration)
}

func (e *StalledDecisionError) Is(target error) bool { return target == ErrStalled }

// BudgetExceededError is returned when MaxIterations pass without completion.
type BudgetExceededError struct {
	MaxIterations int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("no answer after %d iterations", e.MaxIterations)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// RunError wraps every terminal failure of Run together with the memory the
// session had built up to that point.
type RunError struct {
	Iteration int
	Memory    memory.Snapshot
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("planner iteration %d: %v", e.Iteration, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }
