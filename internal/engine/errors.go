package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowDefinition is wrapped by every *DefinitionError.
	ErrWorkflowDefinition = errors.New("invalid workflow definition")
	// ErrInvalidInput is returned when a run input cannot be represented as JSON.
	ErrInvalidInput = errors.New("invalid run input")
	ErrRunNotFound  = errors.New("run not found")
	ErrRunFinished  = errors.New("run already finished")
	// ErrRunNotActive is returned when cancelling a run that is not terminal
	// but is not executing in this process.
	ErrRunNotActive = errors.New("run is not executing on this instance")
	ErrShuttingDown = errors.New("executor is shutting down")
)

var (
	errRunCancelled = errors.New("run cancelled")
	errStepTimeout  = errors.New("step timed out")
)

// DefinitionError lists every structural problem found in a workflow.
type DefinitionError struct {
	WorkflowID string
	Problems   []string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("%v %s: %s", ErrWorkflowDefinition, e.WorkflowID, strings.Join(e.Problems, "; "))
}

func (e *DefinitionError) Unwrap() error {
	return ErrWorkflowDefinition
}
