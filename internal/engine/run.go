package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"workflow-orchestrator/backend/internal/logging"
	"workflow-orchestrator/backend/internal/mapping"
	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/internal/schema"
	"workflow-orchestrator/backend/pkg/models"
)

// plannedStep is a step bound to its component, with its definition copied
// so later edits to the workflow cannot affect a run in flight.
type plannedStep struct {
	models.StepConfig
	component *models.Component
	timeout   time.Duration
}

type plan struct {
	workflowID    string
	inputSchema   *models.Schema
	outputMapping map[string]any
	steps         []plannedStep
}

func (e *Executor) newPlan(wf *models.Workflow, components map[string]*models.Component) (*plan, error) {
	p := &plan{
		workflowID:    wf.ID,
		inputSchema:   wf.InputSchema,
		outputMapping: payload.CloneMap(wf.OutputMapping),
		steps:         make([]plannedStep, 0, len(wf.Steps)),
	}
	for _, step := range wf.Steps {
		cfg, err := payload.NormalizeMap(step.Config)
		if err != nil {
			return nil, fmt.Errorf("step %d config: %w", step.StepID, err)
		}
		ps := plannedStep{
			StepConfig: step,
			component:  components[step.ComponentID],
			timeout:    e.opts.StepTimeout,
		}
		ps.Config = cfg
		ps.InputMapping = payload.CloneMap(step.InputMapping)
		if step.Timeout != "" {
			// already checked by ValidateWorkflow
			ps.timeout, _ = time.ParseDuration(step.Timeout)
		}
		p.steps = append(p.steps, ps)
	}
	return p, nil
}

// runner drives one run through its steps.
type runner struct {
	e      *Executor
	id     string
	plan   *plan
	logger *logging.Logger
	// store carries values from the run context but is never cancelled, so
	// a cancelled run still records its outcome.
	store context.Context
}

func (e *Executor) execute(ctx context.Context, link trace.Link, id string, p *plan, input models.Payload) {
	ctx, span := e.inst.tracer.Start(ctx, "workflow.run",
		trace.WithNewRoot(),
		trace.WithLinks(link),
		trace.WithAttributes(
			attribute.String("workflow.id", p.workflowID),
			attribute.String("run.id", id),
		))
	defer span.End()

	r := &runner{
		e:      e,
		id:     id,
		plan:   p,
		logger: e.logger.With("run_id", id, "workflow_id", p.workflowID),
		store:  context.WithoutCancel(ctx),
	}
	status := r.run(ctx, input)

	span.SetAttributes(attribute.String("run.status", string(status)))
	if status != models.RunStatusCompleted {
		span.SetStatus(codes.Error, "run failed")
	}
	e.inst.runs.Add(r.store, 1, metric.WithAttributes(
		attribute.String("workflow.id", p.workflowID),
		attribute.String("status", string(status)),
	))
}

// run executes the steps and returns the terminal status.
func (r *runner) run(ctx context.Context, input models.Payload) models.RunStatus {
	if res := schema.Validate(input, r.plan.inputSchema); !res.Valid() {
		now := time.Now().UTC()
		return r.fail(models.LogEntry{
			InputPayload: input,
			Status:       models.LogStatusError,
			Error: &models.StepError{
				Kind:       models.ErrorKindValidation,
				Message:    "run input does not match workflow input schema: " + res.Summary(),
				Violations: res.Violations,
			},
			StartedAt:  now,
			FinishedAt: now,
		})
	}

	started := time.Now().UTC()
	if err := r.e.runs.UpdateStatus(r.store, r.id, models.StatusUpdate{Status: models.RunStatusRunning, StartedAt: &started}); err != nil {
		return r.storeFailure(0, "marking run as running", err)
	}

	rc := &mapping.Context{Input: input, Outputs: make(map[int]models.Payload, len(r.plan.steps))}
	var last models.Payload
	for _, step := range r.plan.steps {
		entry, ok := r.step(ctx, step, rc)
		if !ok {
			return r.fail(entry)
		}
		if err := r.e.runs.AppendLogEntry(r.store, r.id, entry); err != nil {
			return r.storeFailure(step.StepID, fmt.Sprintf("recording step %d", step.StepID), err)
		}
		rc.Outputs[step.StepID] = entry.OutputPayload
		last = entry.OutputPayload
	}

	output := last
	if r.plan.outputMapping != nil {
		resolved, err := mapping.Resolve(mapping.Terminal, r.plan.outputMapping, rc)
		if err != nil {
			now := time.Now().UTC()
			return r.fail(models.LogEntry{
				Status:     models.LogStatusError,
				Error:      &models.StepError{Kind: models.ErrorKindUnresolvableReference, Message: "output_mapping: " + err.Error()},
				StartedAt:  now,
				FinishedAt: now,
			})
		}
		output = resolved
	}
	if output == nil {
		output = models.Payload{}
	}

	finished := time.Now().UTC()
	if err := r.e.runs.UpdateStatus(r.store, r.id, models.StatusUpdate{
		Status:        models.RunStatusCompleted,
		FinishedAt:    &finished,
		OutputPayload: output,
	}); err != nil {
		return r.storeFailure(0, "completing run", err)
	}
	r.logger.Info("run completed", "steps", len(r.plan.steps), "duration_ms", finished.Sub(started).Milliseconds())
	return models.RunStatusCompleted
}

// step executes one step and returns its log entry. ok is false when the
// entry terminates the run.
func (r *runner) step(ctx context.Context, step plannedStep, rc *mapping.Context) (entry models.LogEntry, ok bool) {
	c := step.component
	entry = models.LogEntry{
		StepID:        step.StepID,
		ComponentID:   c.ID,
		ComponentName: c.Name,
		StartedAt:     time.Now().UTC(),
	}
	stepFailed := func(kind models.ErrorKind, msg string, violations []models.Violation) (models.LogEntry, bool) {
		entry.Status = models.LogStatusError
		entry.Error = &models.StepError{Kind: kind, Message: msg, Violations: violations}
		entry.FinishedAt = time.Now().UTC()
		entry.DurationMs = entry.FinishedAt.Sub(entry.StartedAt).Milliseconds()
		return entry, false
	}

	if ctx.Err() != nil {
		return stepFailed(models.ErrorKindCancelled, context.Cause(ctx).Error(), nil)
	}

	ctx, span := r.e.inst.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.Int("step.id", step.StepID),
		attribute.String("component.id", c.ID),
		attribute.String("component.endpoint_type", string(c.EndpointType)),
	))
	defer span.End()
	defer func() {
		status := string(entry.Status)
		if !ok {
			span.SetStatus(codes.Error, entry.Error.Message)
		}
		r.e.inst.stepDuration.Record(r.store, float64(entry.DurationMs), metric.WithAttributes(
			attribute.String("component.id", c.ID),
			attribute.String("status", status),
		))
	}()

	input, err := mapping.Resolve(step.StepID, step.InputMapping, rc)
	if err != nil {
		return stepFailed(models.ErrorKindUnresolvableReference, err.Error(), nil)
	}
	entry.InputPayload = input

	if res := schema.Validate(input, c.InputSchema); !res.Valid() {
		return stepFailed(models.ErrorKindValidation, "step input does not match component input schema: "+res.Summary(), res.Violations)
	}

	out, attempts, failure := r.invoke(ctx, step, input)
	entry.Attempts = attempts
	span.SetAttributes(attribute.Int("step.attempts", attempts))
	if failure != nil {
		return stepFailed(failure.kind, failure.message, nil)
	}

	normalized, err := payload.NormalizeMap(out)
	if err != nil {
		return stepFailed(models.ErrorKindAdapterContract, "adapter output is not JSON: "+err.Error(), nil)
	}
	entry.OutputPayload = normalized
	if res := schema.Validate(normalized, c.OutputSchema); !res.Valid() {
		return stepFailed(models.ErrorKindAdapterContract, "adapter output does not match component output schema: "+res.Summary(), res.Violations)
	}

	entry.Status = models.LogStatusOK
	entry.FinishedAt = time.Now().UTC()
	entry.DurationMs = entry.FinishedAt.Sub(entry.StartedAt).Milliseconds()
	r.logger.Debug("step completed", "step_id", step.StepID, "component_id", c.ID,
		"attempts", attempts, "duration_ms", entry.DurationMs)
	return entry, true
}

// fail records the terminating entry and marks the run failed.
func (r *runner) fail(entry models.LogEntry) models.RunStatus {
	r.logger.Warn("run failed", "step_id", entry.StepID, "kind", entry.Error.Kind, "error", entry.Error.Message)
	if err := r.e.runs.AppendLogEntry(r.store, r.id, entry); err != nil {
		return r.storeFailure(entry.StepID, "recording failure", err)
	}
	r.markFailed()
	return models.RunStatusFailed
}

// storeFailure handles a store write that failed mid-run. A StoreError
// entry is appended and the run marked failed, both best effort.
func (r *runner) storeFailure(stepID int, action string, err error) models.RunStatus {
	r.logger.Error("run store write failed", "action", action, "error", err)
	now := time.Now().UTC()
	entry := models.LogEntry{
		StepID:     stepID,
		Status:     models.LogStatusError,
		Error:      &models.StepError{Kind: models.ErrorKindStore, Message: action + ": " + err.Error()},
		StartedAt:  now,
		FinishedAt: now,
	}
	if err := r.e.runs.AppendLogEntry(r.store, r.id, entry); err != nil {
		r.logger.Error("failed to record store error", "error", err)
	}
	r.markFailed()
	return models.RunStatusFailed
}

func (r *runner) markFailed() {
	now := time.Now().UTC()
	if err := r.e.runs.UpdateStatus(r.store, r.id, models.StatusUpdate{Status: models.RunStatusFailed, FinishedAt: &now}); err != nil {
		r.logger.Error("failed to mark run as failed", "error", err)
	}
}
