// Package engine validates workflow definitions and executes runs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"workflow-orchestrator/backend/internal/adapters"
	"workflow-orchestrator/backend/internal/logging"
	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/pkg/models"
)

// AdapterResolver looks up the adapter for an endpoint type.
type AdapterResolver interface {
	Has(t models.EndpointType) bool
	Resolve(t models.EndpointType) (adapters.Adapter, error)
}

// Deps are the collaborators of an Executor.
type Deps struct {
	Registry repository.Registry
	Runs     repository.RunStore
	Adapters AdapterResolver
	Logger   *logging.Logger

	// Optional; the global otel providers are used when nil.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Options tune step execution.
type Options struct {
	StepTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.StepTimeout <= 0 {
		o.StepTimeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 200 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Second
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Executor runs workflows. Each run executes in its own goroutine; steps
// within a run execute strictly in order.
type Executor struct {
	registry repository.Registry
	runs     repository.RunStore
	adapters AdapterResolver
	logger   *logging.Logger
	opts     Options
	inst     *instruments

	base       context.Context
	cancelBase context.CancelCauseFunc

	mu      sync.Mutex
	active  map[string]*RunHandle
	closing bool
	wg      sync.WaitGroup
}

// New creates an Executor.
func New(deps Deps, opts Options) *Executor {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	inst, err := newInstruments(deps.TracerProvider, deps.MeterProvider)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
		inst, _ = newInstruments(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &Executor{
		registry:   deps.Registry,
		runs:       deps.Runs,
		adapters:   deps.Adapters,
		logger:     logger,
		opts:       opts.withDefaults(),
		inst:       inst,
		base:       base,
		cancelBase: cancel,
		active:     make(map[string]*RunHandle),
	}
}

// RunHandle tracks a run started by this executor.
type RunHandle struct {
	ID string

	exec   *Executor
	done   chan struct{}
	cancel context.CancelCauseFunc
}

// Done is closed once the run reaches a terminal state.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes or ctx is done, then returns the
// latest snapshot of the run.
func (h *RunHandle) Wait(ctx context.Context) (*models.Run, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.exec.GetRun(ctx, h.ID)
}

// StartRun validates wf, records a pending run and executes it in the
// background. Only definition errors, non-JSON input and store failures
// are reported synchronously; everything else ends up on the run.
func (e *Executor) StartRun(ctx context.Context, wf *models.Workflow, input models.Payload) (*RunHandle, error) {
	components, err := e.ValidateWorkflow(ctx, wf)
	if err != nil {
		return nil, err
	}
	p, err := e.newPlan(wf, components)
	if err != nil {
		return nil, err
	}
	normalized, err := payload.NormalizeMap(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	e.mu.Lock()
	closing := e.closing
	e.mu.Unlock()
	if closing {
		return nil, ErrShuttingDown
	}

	run := &models.Run{
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		InputPayload: normalized,
		Status:       models.RunStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	id, err := e.runs.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("creating run for workflow %s: %w", wf.ID, err)
	}

	runCtx, cancel := context.WithCancelCause(e.base)
	h := &RunHandle{ID: id, exec: e, done: make(chan struct{}), cancel: cancel}

	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		cancel(ErrShuttingDown)
		// the run already exists; record why it never started
		e.abandon(id)
		return nil, ErrShuttingDown
	}
	e.active[id] = h
	e.wg.Add(1)
	e.mu.Unlock()

	link := trace.LinkFromContext(ctx)
	go func() {
		defer e.wg.Done()
		defer close(h.done)
		defer func() {
			e.mu.Lock()
			delete(e.active, id)
			e.mu.Unlock()
			cancel(nil)
		}()
		e.execute(runCtx, link, id, p, normalized)
	}()

	e.logger.Info("run started", "run_id", id, "workflow_id", wf.ID)
	return h, nil
}

// StartRunByID loads a workflow from the registry and starts it.
func (e *Executor) StartRunByID(ctx context.Context, workflowID string, input models.Payload) (*RunHandle, error) {
	wf, err := e.registry.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.StartRun(ctx, wf, input)
}

// GetRun returns a snapshot of a run.
func (e *Executor) GetRun(ctx context.Context, id string) (*models.Run, error) {
	run, err := e.runs.GetRun(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CancelRun requests cancellation of a run executing in this process. The
// run records a Cancelled entry before its next step or retry.
func (e *Executor) CancelRun(ctx context.Context, id string) error {
	e.mu.Lock()
	h, ok := e.active[id]
	e.mu.Unlock()
	if ok {
		h.cancel(errRunCancelled)
		e.logger.Info("run cancellation requested", "run_id", id)
		return nil
	}

	run, err := e.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s is %s: %w", id, run.Status, ErrRunFinished)
	}
	return fmt.Errorf("run %s: %w", id, ErrRunNotActive)
}

// Shutdown stops accepting runs, cancels the ones in flight and waits for
// them to record their outcome or for ctx to end.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
	e.cancelBase(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abandon fails a pending run that was created but never executed.
func (e *Executor) abandon(id string) {
	now := time.Now().UTC()
	ctx := context.WithoutCancel(e.base)
	_ = e.runs.AppendLogEntry(ctx, id, models.LogEntry{
		Status:     models.LogStatusError,
		Error:      &models.StepError{Kind: models.ErrorKindCancelled, Message: ErrShuttingDown.Error()},
		StartedAt:  now,
		FinishedAt: now,
	})
	if err := e.runs.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.RunStatusFailed, FinishedAt: &now}); err != nil {
		e.logger.Error("failed to abandon run", "run_id", id, "error", err)
	}
}
