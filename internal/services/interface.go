package services

import (
	"context"

	"workflow-orchestrator/backend/internal/engine"
	"workflow-orchestrator/backend/pkg/models"
)

// Executor validates and runs workflows. *engine.Executor implements it.
type Executor interface {
	ValidateWorkflow(ctx context.Context, wf *models.Workflow) (map[string]*models.Component, error)
	StartRun(ctx context.Context, wf *models.Workflow, input models.Payload) (*engine.RunHandle, error)
	GetRun(ctx context.Context, id string) (*models.Run, error)
	CancelRun(ctx context.Context, id string) error
}
