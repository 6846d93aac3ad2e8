// Package services exposes catalog lookups and run control to the HTTP and
// MCP surfaces.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"

	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/internal/schema"
	"workflow-orchestrator/backend/pkg/models"
)

// ErrInvalidRequest is returned for requests that name neither or both of
// a stored workflow and an inline one.
var ErrInvalidRequest = errors.New("invalid request")

// RunRequest starts a run of a stored workflow (WorkflowID) or of an inline
// definition (Workflow).
type RunRequest struct {
	WorkflowID string           `json:"workflow_id,omitempty"`
	Workflow   *models.Workflow `json:"workflow,omitempty"`
	Input      models.Payload   `json:"input"`
	// Wait, when positive, blocks until the run finishes or Wait elapses.
	Wait time.Duration `json:"-"`
}

// ComponentSchemas is the JSON Schema rendering of a component's contracts.
type ComponentSchemas struct {
	ComponentID string             `json:"component_id"`
	Input       *jsonschema.Schema `json:"input,omitempty"`
	Output      *jsonschema.Schema `json:"output,omitempty"`
}

// WorkflowService is a service for browsing the catalog and controlling runs.
type WorkflowService struct {
	catalog  repository.Catalog
	executor Executor
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(catalog repository.Catalog, executor Executor) *WorkflowService {
	return &WorkflowService{catalog: catalog, executor: executor}
}

// ListComponents returns all registered components.
func (s *WorkflowService) ListComponents(ctx context.Context) ([]*models.Component, error) {
	return s.catalog.ListComponents(ctx)
}

// GetComponent returns one component.
func (s *WorkflowService) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	return s.catalog.GetComponent(ctx, id)
}

// ComponentSchemas renders a component's input and output contracts as
// JSON Schema.
func (s *WorkflowService) ComponentSchemas(ctx context.Context, id string) (*ComponentSchemas, error) {
	c, err := s.catalog.GetComponent(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ComponentSchemas{
		ComponentID: c.ID,
		Input:       schema.ToJSONSchema(c.InputSchema),
		Output:      schema.ToJSONSchema(c.OutputSchema),
	}, nil
}

// ListWorkflows returns all stored workflows.
func (s *WorkflowService) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	return s.catalog.ListWorkflows(ctx)
}

// GetWorkflow returns one stored workflow.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	return s.catalog.GetWorkflow(ctx, id)
}

// ValidateWorkflow checks a stored workflow without running it.
func (s *WorkflowService) ValidateWorkflow(ctx context.Context, id string) error {
	wf, err := s.catalog.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.executor.ValidateWorkflow(ctx, wf)
	return err
}

// StartRun starts a run and returns its latest snapshot.
func (s *WorkflowService) StartRun(ctx context.Context, req RunRequest) (*models.Run, error) {
	wf := req.Workflow
	switch {
	case wf != nil && req.WorkflowID != "":
		return nil, fmt.Errorf("%w: workflow_id and workflow are mutually exclusive", ErrInvalidRequest)
	case wf == nil && req.WorkflowID == "":
		return nil, fmt.Errorf("%w: workflow_id or workflow is required", ErrInvalidRequest)
	case wf == nil:
		var err error
		if wf, err = s.catalog.GetWorkflow(ctx, req.WorkflowID); err != nil {
			return nil, err
		}
	}

	handle, err := s.executor.StartRun(ctx, wf, req.Input)
	if err != nil {
		return nil, err
	}
	if req.Wait > 0 {
		timer := time.NewTimer(req.Wait)
		defer timer.Stop()
		select {
		case <-handle.Done():
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return s.executor.GetRun(context.WithoutCancel(ctx), handle.ID)
}

// GetRun returns a run snapshot.
func (s *WorkflowService) GetRun(ctx context.Context, id string) (*models.Run, error) {
	return s.executor.GetRun(ctx, id)
}

// CancelRun requests cancellation of a run and returns its latest snapshot.
func (s *WorkflowService) CancelRun(ctx context.Context, id string) (*models.Run, error) {
	if err := s.executor.CancelRun(ctx, id); err != nil {
		return nil, err
	}
	return s.executor.GetRun(ctx, id)
}
