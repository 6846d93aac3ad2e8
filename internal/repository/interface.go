package repository

import (
	"context"
	"errors"

	"workflow-orchestrator/backend/pkg/models"
)

var (
	// ErrNotFound is returned when a component, workflow or run does not exist.
	ErrNotFound = errors.New("not found")
	// ErrRunFinalized is returned for writes to a completed or failed run.
	ErrRunFinalized = errors.New("run is finalized")
	// ErrInvalidTransition is returned for a status change the run
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// Registry resolves component and workflow definitions.
type Registry interface {
	// GetComponent retrieves a component by its ID.
	GetComponent(ctx context.Context, id string) (*models.Component, error)
	// GetWorkflow retrieves a workflow by its ID.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
}

// Catalog is a Registry that can also be written to and listed.
type Catalog interface {
	Registry
	// SaveComponent creates or replaces a component. An empty ID is assigned.
	SaveComponent(ctx context.Context, c *models.Component) error
	// SaveWorkflow creates or replaces a workflow. An empty ID is assigned.
	SaveWorkflow(ctx context.Context, w *models.Workflow) error
	ListComponents(ctx context.Context) ([]*models.Component, error)
	ListWorkflows(ctx context.Context) ([]*models.Workflow, error)
}

// RunStore persists runs. Each run has a single writer; acknowledged
// writes are visible to subsequent GetRun calls.
type RunStore interface {
	// CreateRun stores a new run and returns its ID, assigning one if empty.
	CreateRun(ctx context.Context, run *models.Run) (string, error)
	// AppendLogEntry appends to the run's log in order.
	AppendLogEntry(ctx context.Context, runID string, entry models.LogEntry) error
	// UpdateStatus applies a status transition. Nil timestamps and a nil
	// output payload leave the stored values unchanged.
	UpdateStatus(ctx context.Context, runID string, update models.StatusUpdate) error
	// GetRun returns a snapshot of the run.
	GetRun(ctx context.Context, id string) (*models.Run, error)
}
