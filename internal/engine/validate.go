package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"workflow-orchestrator/backend/internal/mapping"
	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/internal/schema"
	"workflow-orchestrator/backend/pkg/models"
)

// ValidateWorkflow checks a workflow against the registry and the
// registered adapters. It returns the components referenced by the steps,
// keyed by id, or a *DefinitionError listing every problem. Registry
// failures other than a missing component are returned as-is.
func (e *Executor) ValidateWorkflow(ctx context.Context, wf *models.Workflow) (map[string]*models.Component, error) {
	if wf == nil {
		return nil, &DefinitionError{Problems: []string{"workflow is nil"}}
	}

	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(wf.Steps) == 0 {
		addf("workflow has no steps")
	}
	if err := schema.Check(wf.InputSchema); err != nil {
		addf("input schema: %v", err)
	}

	components := make(map[string]*models.Component)
	missing := make(map[string]bool)
	earlier := make(map[int]bool)
	prev := 0
	for i, step := range wf.Steps {
		label := fmt.Sprintf("step %d", step.StepID)
		switch {
		case step.StepID <= 0:
			addf("steps[%d]: step_id must be positive, got %d", i, step.StepID)
		case earlier[step.StepID]:
			addf("%s: duplicate step_id", label)
		case step.StepID <= prev:
			addf("%s: step ids must be strictly increasing (follows %d)", label, prev)
		}

		if err := e.checkComponent(ctx, label, step.ComponentID, components, missing, addf); err != nil {
			return nil, err
		}

		for _, err := range splitJoined(mapping.Check(step.StepID, step.InputMapping, earlier)) {
			addf("%s: input_mapping %v", label, err)
		}
		if _, err := payload.NormalizeMap(step.Config); err != nil {
			addf("%s: config: %v", label, err)
		}
		if _, err := payload.NormalizeMap(step.InputMapping); err != nil {
			addf("%s: input_mapping: %v", label, err)
		}
		if step.Timeout != "" {
			if d, err := time.ParseDuration(step.Timeout); err != nil || d <= 0 {
				addf("%s: invalid timeout %q", label, step.Timeout)
			}
		}

		if step.StepID > 0 {
			earlier[step.StepID] = true
			if step.StepID > prev {
				prev = step.StepID
			}
		}
	}

	for _, err := range splitJoined(mapping.Check(mapping.Terminal, wf.OutputMapping, earlier)) {
		addf("output_mapping %v", err)
	}

	if len(problems) > 0 {
		return nil, &DefinitionError{WorkflowID: wf.ID, Problems: problems}
	}
	return components, nil
}

func (e *Executor) checkComponent(ctx context.Context, label, id string, components map[string]*models.Component,
	missing map[string]bool, addf func(string, ...any)) error {
	if id == "" {
		addf("%s: component_id is required", label)
		return nil
	}
	if missing[id] {
		addf("%s: component %q not found", label, id)
		return nil
	}
	if _, ok := components[id]; ok {
		return nil
	}

	c, err := e.registry.GetComponent(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		missing[id] = true
		addf("%s: component %q not found", label, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading component %s: %w", id, err)
	}
	components[id] = c

	if !c.Active {
		addf("%s: component %q is inactive", label, id)
	}
	if !e.adapters.Has(c.EndpointType) {
		addf("%s: no adapter for endpoint type %q of component %q", label, c.EndpointType, id)
	}
	if err := schema.Check(c.InputSchema); err != nil {
		addf("%s: component %q input schema: %v", label, id, err)
	}
	if err := schema.Check(c.OutputSchema); err != nil {
		addf("%s: component %q output schema: %v", label, id, err)
	}
	return nil
}

func splitJoined(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
