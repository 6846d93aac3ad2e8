package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-orchestrator/backend/internal/adapters"
	"workflow-orchestrator/backend/internal/repository"
	"workflow-orchestrator/backend/pkg/models"
)

type invokeFunc func(ctx context.Context, config, input models.Payload) (models.Payload, error)

// harness wires an executor to in-memory stores and a function adapter that
// dispatches on component id.
type harness struct {
	t        *testing.T
	catalog  *repository.MemoryCatalog
	runs     *countingRunStore
	exec     *Executor
	mu       sync.Mutex
	handlers map[string]invokeFunc
	calls    map[string]int
}

type countingRunStore struct {
	repository.RunStore
	created   atomic.Int32
	failWrite atomic.Bool
	// failStatus fails the next UpdateStatus to this status.
	failStatus atomic.Value
}

func (s *countingRunStore) UpdateStatus(ctx context.Context, runID string, update models.StatusUpdate) error {
	if want, _ := s.failStatus.Load().(models.RunStatus); want != "" && want == update.Status {
		s.failStatus.Store(models.RunStatus(""))
		return errors.New("connection reset")
	}
	return s.RunStore.UpdateStatus(ctx, runID, update)
}

func (s *countingRunStore) CreateRun(ctx context.Context, run *models.Run) (string, error) {
	s.created.Add(1)
	return s.RunStore.CreateRun(ctx, run)
}

func (s *countingRunStore) AppendLogEntry(ctx context.Context, runID string, entry models.LogEntry) error {
	if s.failWrite.Load() {
		return errors.New("disk full")
	}
	return s.RunStore.AppendLogEntry(ctx, runID, entry)
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		catalog:  repository.NewMemoryCatalog(),
		runs:     &countingRunStore{RunStore: repository.NewMemoryRunStore()},
		handlers: make(map[string]invokeFunc),
		calls:    make(map[string]int),
	}
	registry := adapters.NewRegistry()
	require.NoError(t, registry.Register(models.EndpointTypeFunction, adapters.Instance(adapters.AdapterFunc(
		func(ctx context.Context, c *models.Component, config, input models.Payload) (models.Payload, error) {
			h.mu.Lock()
			fn := h.handlers[c.ID]
			h.calls[c.ID]++
			h.mu.Unlock()
			return fn(ctx, config, input)
		}))))

	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = time.Millisecond
		opts.MaxBackoff = 5 * time.Millisecond
	}
	h.exec = New(Deps{Registry: h.catalog, Runs: h.runs, Adapters: registry}, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.exec.Shutdown(ctx)
	})
	return h
}

func (h *harness) component(id string, in, out *models.Schema, fn invokeFunc) {
	h.t.Helper()
	require.NoError(h.t, h.catalog.SaveComponent(context.Background(), &models.Component{
		ID:           id,
		Name:         id,
		EndpointType: models.EndpointTypeFunction,
		Active:       true,
		InputSchema:  in,
		OutputSchema: out,
	}))
	h.mu.Lock()
	h.handlers[id] = fn
	h.mu.Unlock()
}

func (h *harness) callCount(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func (h *harness) run(wf *models.Workflow, input models.Payload) *models.Run {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	handle, err := h.exec.StartRun(ctx, wf, input)
	require.NoError(h.t, err)
	run, err := handle.Wait(ctx)
	require.NoError(h.t, err)
	return run
}

func fields(names ...string) *models.Schema {
	s := &models.Schema{Fields: map[string]*models.FieldSchema{}}
	for _, n := range names {
		s.Fields[n] = &models.FieldSchema{Type: models.FieldTypeString, Required: true}
	}
	return s
}

func constant(out models.Payload) invokeFunc {
	return func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		return out, nil
	}
}

func summaryWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:          "summarize-and-send",
		Name:        "Summarize and send",
		InputSchema: fields("text"),
		Steps: []models.StepConfig{
			{StepID: 1, ComponentID: "summarizer", InputMapping: map[string]any{"document": "$.input.text"}},
			{StepID: 2, ComponentID: "sender", InputMapping: map[string]any{"body": "$.steps.1.output.summary"}},
		},
	}
}

func TestStartRun_TwoStepSummary(t *testing.T) {
	h := newHarness(t, Options{})
	var sentBody any
	h.component("summarizer", fields("document"), fields("summary"), func(_ context.Context, _, input models.Payload) (models.Payload, error) {
		assert.Equal(t, "hello", input["document"])
		return models.Payload{"summary": "hi"}, nil
	})
	h.component("sender", fields("body"), nil, func(_ context.Context, _, input models.Payload) (models.Payload, error) {
		sentBody = input["body"]
		return models.Payload{"sent": true}, nil
	})

	run := h.run(summaryWorkflow(), models.Payload{"text": "hello"})

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Log, 2)
	assert.Equal(t, 1, run.Log[0].StepID)
	assert.Equal(t, models.LogStatusOK, run.Log[0].Status)
	assert.Equal(t, models.Payload{"summary": "hi"}, run.Log[0].OutputPayload)
	assert.Equal(t, 1, run.Log[0].Attempts)
	assert.Equal(t, 2, run.Log[1].StepID)
	assert.Equal(t, models.LogStatusOK, run.Log[1].Status)
	assert.Equal(t, models.Payload{"body": "hi"}, run.Log[1].InputPayload)
	assert.Equal(t, "hi", sentBody)
	assert.Equal(t, models.Payload{"sent": true}, run.OutputPayload)
	require.NotNil(t, run.StartedAt)
	require.NotNil(t, run.FinishedAt)
}

func TestStartRun_OutputContractViolation(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("summarizer", fields("document"), fields("summary"), constant(models.Payload{"wrong_field": "hi"}))
	h.component("sender", fields("body"), nil, constant(models.Payload{}))

	run := h.run(summaryWorkflow(), models.Payload{"text": "hello"})

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, models.LogStatusError, run.Log[0].Status)
	assert.Equal(t, models.ErrorKindAdapterContract, run.Log[0].Error.Kind)
	assert.Contains(t, run.Log[0].Error.Violations, models.Violation{Path: "summary", Reason: "required field is missing"})
	assert.Zero(t, h.callCount("sender"))
}

func TestStartRun_AllStepsOK(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("inc", nil, nil, func(_ context.Context, _, input models.Payload) (models.Payload, error) {
		n, _ := input["n"].(float64)
		return models.Payload{"n": n + 1}, nil
	})

	wf := &models.Workflow{ID: "count", OutputMapping: map[string]any{"total": "$.steps.5.output.n", "label": "done"}}
	for i := 1; i <= 5; i++ {
		ref := "$.input.start"
		if i > 1 {
			ref = fmt.Sprintf("$.steps.%d.output.n", i-1)
		}
		wf.Steps = append(wf.Steps, models.StepConfig{StepID: i, ComponentID: "inc", InputMapping: map[string]any{"n": ref}})
	}

	run := h.run(wf, models.Payload{"start": 10})

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Log, 5)
	for _, entry := range run.Log {
		assert.Equal(t, models.LogStatusOK, entry.Status)
	}
	assert.Equal(t, models.Payload{"total": float64(15), "label": "done"}, run.OutputPayload)
}

func TestStartRun_ForwardReferenceCreatesNoRun(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("c", nil, nil, constant(models.Payload{}))

	for name, ref := range map[string]string{
		"later": "$.steps.2.output.x",
		"self":  "$.steps.1.output.x",
	} {
		t.Run(name, func(t *testing.T) {
			wf := &models.Workflow{ID: "bad", Steps: []models.StepConfig{
				{StepID: 1, ComponentID: "c", InputMapping: map[string]any{"x": ref}},
				{StepID: 2, ComponentID: "c"},
			}}
			_, err := h.exec.StartRun(context.Background(), wf, models.Payload{})
			require.ErrorIs(t, err, ErrWorkflowDefinition)
			var defErr *DefinitionError
			require.ErrorAs(t, err, &defErr)
			assert.Len(t, defErr.Problems, 1)
		})
	}
	assert.Zero(t, h.runs.created.Load())
	assert.Zero(t, h.callCount("c"))
}

func TestValidateWorkflow_ReportsEveryProblem(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("c", nil, nil, constant(models.Payload{}))
	require.NoError(t, h.catalog.SaveComponent(context.Background(), &models.Component{
		ID: "off", Name: "off", EndpointType: models.EndpointTypeFunction, Active: false,
	}))
	require.NoError(t, h.catalog.SaveComponent(context.Background(), &models.Component{
		ID: "remote", Name: "remote", EndpointType: models.EndpointTypeAPI, Active: true,
	}))

	wf := &models.Workflow{
		ID: "broken",
		Steps: []models.StepConfig{
			{StepID: 2, ComponentID: "c"},
			{StepID: 2, ComponentID: "c"},
			{StepID: 1, ComponentID: "missing"},
			{StepID: 3, ComponentID: "off", Timeout: "soon"},
			{StepID: 4, ComponentID: "remote", InputMapping: map[string]any{"x": "$.steps.9.output"}},
		},
		OutputMapping: map[string]any{"y": "$.steps.7.output"},
	}
	_, err := h.exec.ValidateWorkflow(context.Background(), wf)
	var defErr *DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "broken", defErr.WorkflowID)
	assert.Len(t, defErr.Problems, 8)
	assert.Contains(t, defErr.Problems, "step 2: duplicate step_id")
	assert.Contains(t, defErr.Problems, `step 1: component "missing" not found`)
	assert.Contains(t, defErr.Problems, `step 3: component "off" is inactive`)
	assert.Contains(t, defErr.Problems, `step 3: invalid timeout "soon"`)
	assert.Contains(t, defErr.Problems, `step 4: no adapter for endpoint type "api" of component "remote"`)

	_, err = h.exec.ValidateWorkflow(context.Background(), &models.Workflow{ID: "empty"})
	assert.ErrorIs(t, err, ErrWorkflowDefinition)

	components, err := h.exec.ValidateWorkflow(context.Background(), &models.Workflow{
		ID: "ok", Steps: []models.StepConfig{{StepID: 1, ComponentID: "c"}, {StepID: 5, ComponentID: "c"}},
	})
	require.NoError(t, err)
	assert.Len(t, components, 1)
}

func TestGetRun_TerminalRunIsStable(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("summarizer", fields("document"), fields("summary"), constant(models.Payload{"summary": "hi"}))
	h.component("sender", fields("body"), nil, constant(models.Payload{"ok": true}))

	run := h.run(summaryWorkflow(), models.Payload{"text": "hello"})
	first, err := json.Marshal(run)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := h.exec.GetRun(context.Background(), run.ID)
		require.NoError(t, err)
		data, err := json.Marshal(again)
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(data))
		assert.Equal(t, first, data)
	}

	_, err = h.exec.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStartRun_FailFast(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("ok", nil, nil, constant(models.Payload{"v": 1}))
	h.component("reject", nil, nil, func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		return nil, adapters.Permanent(errors.New("rejected by upstream"))
	})
	h.component("never", nil, nil, constant(models.Payload{}))

	wf := &models.Workflow{ID: "ff", Steps: []models.StepConfig{
		{StepID: 1, ComponentID: "ok"},
		{StepID: 2, ComponentID: "reject"},
		{StepID: 3, ComponentID: "never"},
		{StepID: 4, ComponentID: "never"},
	}}
	run := h.run(wf, nil)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 2)
	assert.Equal(t, models.LogStatusOK, run.Log[0].Status)
	last := run.Log[1]
	assert.Equal(t, models.LogStatusError, last.Status)
	assert.Equal(t, models.ErrorKindAdapterInvocation, last.Error.Kind)
	assert.Contains(t, last.Error.Message, "rejected by upstream")
	assert.Equal(t, 1, last.Attempts)
	assert.Equal(t, 1, h.callCount("reject"))
	assert.Zero(t, h.callCount("never"))
	assert.Nil(t, run.OutputPayload)
}

func TestStartRun_InputValidation(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("summarizer", fields("document"), nil, constant(models.Payload{}))
	h.component("sender", fields("body"), nil, constant(models.Payload{}))

	run := h.run(summaryWorkflow(), models.Payload{"text": 42})

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, 0, run.Log[0].StepID)
	assert.Equal(t, models.ErrorKindValidation, run.Log[0].Error.Kind)
	assert.Equal(t, []models.Violation{{Path: "text", Reason: "expected string, got number"}}, run.Log[0].Error.Violations)
	assert.Zero(t, h.callCount("summarizer"))
}

func TestStartRun_StepInputValidation(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("summarizer", fields("document"), nil, constant(models.Payload{}))
	h.component("sender", fields("body"), nil, constant(models.Payload{}))

	// no input schema, so the missing field surfaces on step 1
	wf := summaryWorkflow()
	wf.InputSchema = nil
	run := h.run(wf, models.Payload{})

	require.Len(t, run.Log, 1)
	assert.Equal(t, 1, run.Log[0].StepID)
	assert.Equal(t, models.ErrorKindValidation, run.Log[0].Error.Kind)
	assert.Equal(t, models.Payload{}, run.Log[0].InputPayload)
	assert.Zero(t, h.callCount("summarizer"))
}

func TestStartRun_NonJSONOutput(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("bad", nil, nil, constant(models.Payload{"ch": make(chan int)}))

	run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "bad"}}}, nil)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, models.ErrorKindAdapterContract, run.Log[0].Error.Kind)
}

func TestStartRun_Timeout(t *testing.T) {
	h := newHarness(t, Options{StepTimeout: 50 * time.Millisecond})
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	h.component("stuck", nil, nil, func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		<-block // ignores its context
		return models.Payload{}, nil
	})

	start := time.Now()
	run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "stuck"}}}, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, models.ErrorKindTimeout, run.Log[0].Error.Kind)
	assert.Equal(t, 1, run.Log[0].Attempts)
}

func TestStartRun_StepTimeoutOverride(t *testing.T) {
	h := newHarness(t, Options{StepTimeout: time.Minute})
	h.component("slow", nil, nil, func(ctx context.Context, _, _ models.Payload) (models.Payload, error) {
		<-ctx.Done()
		return nil, adapters.Transient(ctx.Err())
	})

	wf := &models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "slow", Timeout: "30ms"}}}
	run := h.run(wf, nil)

	require.Len(t, run.Log, 1)
	assert.Equal(t, models.ErrorKindTimeout, run.Log[0].Error.Kind)
	assert.Equal(t, 1, h.callCount("slow"))
}

func TestStartRun_RetriesTransientErrors(t *testing.T) {
	h := newHarness(t, Options{MaxAttempts: 3})
	var n atomic.Int32
	h.component("flaky", nil, nil, func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		if n.Add(1) < 3 {
			return nil, adapters.Transient(errors.New("connection reset"))
		}
		return models.Payload{"ok": true}, nil
	})

	run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "flaky"}}}, nil)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, 3, run.Log[0].Attempts)
}

func TestStartRun_RetriesExhausted(t *testing.T) {
	h := newHarness(t, Options{MaxAttempts: 2})
	h.component("down", nil, nil, func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		return nil, adapters.StatusError(503, "unavailable")
	})

	run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "down"}}}, nil)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, models.ErrorKindAdapterInvocation, run.Log[0].Error.Kind)
	assert.Equal(t, 2, run.Log[0].Attempts)
	assert.Contains(t, run.Log[0].Error.Message, "giving up after 2 attempts")
	assert.Equal(t, 2, h.callCount("down"))
}

func TestCancelRun(t *testing.T) {
	h := newHarness(t, Options{})
	started := make(chan struct{})
	h.component("wait", nil, nil, func(ctx context.Context, _, _ models.Payload) (models.Payload, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h.component("after", nil, nil, constant(models.Payload{}))

	ctx := context.Background()
	wf := &models.Workflow{ID: "w", Steps: []models.StepConfig{
		{StepID: 1, ComponentID: "wait"},
		{StepID: 2, ComponentID: "after"},
	}}
	handle, err := h.exec.StartRun(ctx, wf, nil)
	require.NoError(t, err)

	<-started
	require.NoError(t, h.exec.CancelRun(ctx, handle.ID))

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	run, err := handle.Wait(waitCtx)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, 1, run.Log[0].StepID)
	assert.Equal(t, models.ErrorKindCancelled, run.Log[0].Error.Kind)
	assert.Zero(t, h.callCount("after"))

	assert.ErrorIs(t, h.exec.CancelRun(ctx, handle.ID), ErrRunFinished)
	assert.ErrorIs(t, h.exec.CancelRun(ctx, "missing"), ErrRunNotFound)
}

func TestShutdown_CancelsInFlightRuns(t *testing.T) {
	h := newHarness(t, Options{})
	started := make(chan struct{})
	h.component("wait", nil, nil, func(ctx context.Context, _, _ models.Payload) (models.Payload, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	wf := &models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "wait"}}}
	handle, err := h.exec.StartRun(ctx, wf, nil)
	require.NoError(t, err)
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.exec.Shutdown(shutdownCtx))

	run, err := h.exec.GetRun(ctx, handle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.Len(t, run.Log, 1)
	assert.Equal(t, models.ErrorKindCancelled, run.Log[0].Error.Kind)
	assert.Equal(t, ErrShuttingDown.Error(), run.Log[0].Error.Message)

	_, err = h.exec.StartRun(ctx, wf, nil)
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestStartRun_StoreFailureFailsRun(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("c", nil, nil, constant(models.Payload{}))
	h.runs.failWrite.Store(true)

	run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "c"}}}, nil)

	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Empty(t, run.Log)
	assert.NotNil(t, run.FinishedAt)
}

func TestStartRun_StatusWriteFailureRecordsStoreError(t *testing.T) {
	tests := []struct {
		name    string
		status  models.RunStatus
		entries int
	}{
		{"marking running", models.RunStatusRunning, 1},
		{"completing", models.RunStatusCompleted, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.component("c", nil, nil, constant(models.Payload{"ok": true}))
			h.runs.failStatus.Store(tt.status)

			run := h.run(&models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, ComponentID: "c"}}}, nil)

			assert.Equal(t, models.RunStatusFailed, run.Status)
			require.Len(t, run.Log, tt.entries)
			last := run.Log[len(run.Log)-1]
			assert.Equal(t, 0, last.StepID)
			assert.Equal(t, models.LogStatusError, last.Status)
			require.NotNil(t, last.Error)
			assert.Equal(t, models.ErrorKindStore, last.Error.Kind)
			assert.Contains(t, last.Error.Message, "connection reset")
			assert.NotNil(t, run.FinishedAt)
		})
	}
}

func TestStartRun_DefinitionIsSnapshotted(t *testing.T) {
	h := newHarness(t, Options{})
	release := make(chan struct{})
	h.component("first", nil, nil, func(context.Context, models.Payload, models.Payload) (models.Payload, error) {
		<-release
		return models.Payload{"v": "a"}, nil
	})
	var got atomic.Value
	h.component("second", nil, nil, func(_ context.Context, config, _ models.Payload) (models.Payload, error) {
		got.Store(config["mode"])
		return models.Payload{}, nil
	})

	wf := &models.Workflow{ID: "w", Steps: []models.StepConfig{
		{StepID: 1, ComponentID: "first"},
		{StepID: 2, ComponentID: "second", Config: models.Payload{"mode": "original"}},
	}}
	ctx := context.Background()
	handle, err := h.exec.StartRun(ctx, wf, nil)
	require.NoError(t, err)

	wf.Steps[1].Config["mode"] = "edited"
	close(release)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	run, err := handle.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "original", got.Load())
}

func TestStartRunByID(t *testing.T) {
	h := newHarness(t, Options{})
	h.component("c", nil, nil, constant(models.Payload{"x": "y"}))
	require.NoError(t, h.catalog.SaveWorkflow(context.Background(), &models.Workflow{
		ID: "stored", Steps: []models.StepConfig{{StepID: 1, ComponentID: "c"}},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	handle, err := h.exec.StartRunByID(ctx, "stored", models.Payload{})
	require.NoError(t, err)
	run, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "stored", run.WorkflowID)
	assert.Equal(t, models.Payload{"x": "y"}, run.OutputPayload)

	_, err = h.exec.StartRunByID(ctx, "unknown", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = h.exec.StartRunByID(ctx, "stored", models.Payload{"bad": func() {}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
