package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-orchestrator/backend/pkg/models"
)

// testCatalog exercises the Catalog contract shared by every implementation.
func testCatalog(t *testing.T, catalog Catalog) {
	ctx := context.Background()

	component := &models.Component{
		ID:           "summarizer",
		Name:         "Summarizer",
		EndpointType: models.EndpointTypeModel,
		Active:       true,
		Tags:         []string{"nlp"},
		InputSchema: &models.Schema{Fields: map[string]*models.FieldSchema{
			"text": {Type: models.FieldTypeString, Required: true},
		}},
	}
	require.NoError(t, catalog.SaveComponent(ctx, component))
	assert.False(t, component.CreatedAt.IsZero())

	got, err := catalog.GetComponent(ctx, "summarizer")
	require.NoError(t, err)
	assert.Equal(t, component.Name, got.Name)
	assert.Equal(t, component.EndpointType, got.EndpointType)
	assert.Equal(t, component.InputSchema, got.InputSchema)
	assert.Equal(t, []string{"nlp"}, got.Tags)
	assert.Nil(t, got.OutputSchema)

	anon := &models.Component{Name: "Anonymous", EndpointType: models.EndpointTypeFunction}
	require.NoError(t, catalog.SaveComponent(ctx, anon))
	assert.NotEmpty(t, anon.ID)

	list, err := catalog.ListComponents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Anonymous", list[0].Name)

	_, err = catalog.GetComponent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	workflow := &models.Workflow{
		ID:   "summarize",
		Name: "Summarize",
		Steps: []models.StepConfig{{
			StepID:       1,
			ComponentID:  "summarizer",
			Config:       models.Payload{"model_name": "gpt4o"},
			InputMapping: map[string]any{"text": "$.input.document"},
		}},
		OutputMapping: map[string]any{"summary": "$.steps.1.output.content"},
	}
	require.NoError(t, catalog.SaveWorkflow(ctx, workflow))

	gotWF, err := catalog.GetWorkflow(ctx, "summarize")
	require.NoError(t, err)
	assert.Equal(t, workflow.Steps, gotWF.Steps)
	assert.Equal(t, workflow.OutputMapping, gotWF.OutputMapping)

	workflow.Name = "Summarize v2"
	require.NoError(t, catalog.SaveWorkflow(ctx, workflow))
	wfs, err := catalog.ListWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	assert.Equal(t, "Summarize v2", wfs[0].Name)

	_, err = catalog.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// testRunStore exercises the RunStore contract shared by every implementation.
func testRunStore(t *testing.T, store RunStore) {
	ctx := context.Background()

	run := &models.Run{
		WorkflowID:   "summarize",
		WorkflowName: "Summarize",
		InputPayload: models.Payload{"document": "long text"},
	}
	id, err := store.CreateRun(ctx, run)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, got.Status)
	assert.Empty(t, got.Log)
	assert.Equal(t, models.Payload{"document": "long text"}, got.InputPayload)

	started := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.RunStatusRunning, StartedAt: &started}))

	entry := models.LogEntry{
		StepID:        1,
		ComponentID:   "summarizer",
		ComponentName: "Summarizer",
		Status:        models.LogStatusOK,
		InputPayload:  models.Payload{"text": "long text"},
		OutputPayload: models.Payload{"summary": "short"},
		Attempts:      1,
		StartedAt:     started,
		FinishedAt:    started.Add(15 * time.Millisecond),
		DurationMs:    15,
	}
	require.NoError(t, store.AppendLogEntry(ctx, id, entry))
	require.NoError(t, store.AppendLogEntry(ctx, id, models.LogEntry{
		StepID: 2,
		Status: models.LogStatusError,
		Error:  &models.StepError{Kind: models.ErrorKindTimeout, Message: "step timed out"},
	}))

	finished := started.Add(time.Second)
	require.NoError(t, store.UpdateStatus(ctx, id, models.StatusUpdate{
		Status:        models.RunStatusCompleted,
		FinishedAt:    &finished,
		OutputPayload: models.Payload{"summary": "short"},
	}))

	first, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, first.Status)
	require.Len(t, first.Log, 2)
	assert.Equal(t, 1, first.Log[0].StepID)
	assert.Equal(t, models.Payload{"summary": "short"}, first.Log[0].OutputPayload)
	assert.Equal(t, models.ErrorKindTimeout, first.Log[1].Error.Kind)
	assert.Equal(t, models.Payload{"summary": "short"}, first.OutputPayload)
	require.NotNil(t, first.StartedAt)
	assert.True(t, started.Equal(*first.StartedAt))

	// terminal runs are immutable
	assert.ErrorIs(t, store.AppendLogEntry(ctx, id, entry), ErrRunFinalized)
	assert.ErrorIs(t, store.UpdateStatus(ctx, id, models.StatusUpdate{Status: models.RunStatusFailed}), ErrRunFinalized)

	second, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.AppendLogEntry(ctx, "missing", entry), ErrNotFound)

	other, err := store.CreateRun(ctx, &models.Run{WorkflowID: "summarize", InputPayload: models.Payload{}})
	require.NoError(t, err)
	err = store.UpdateStatus(ctx, other, models.StatusUpdate{Status: models.RunStatusCompleted})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	// empty outputs read back as empty objects
	require.NoError(t, store.UpdateStatus(ctx, other, models.StatusUpdate{Status: models.RunStatusRunning, StartedAt: &started}))
	require.NoError(t, store.AppendLogEntry(ctx, other, models.LogEntry{
		StepID:        1,
		Status:        models.LogStatusOK,
		InputPayload:  models.Payload{},
		OutputPayload: models.Payload{},
		StartedAt:     started,
		FinishedAt:    started,
	}))
	require.NoError(t, store.UpdateStatus(ctx, other, models.StatusUpdate{
		Status:        models.RunStatusCompleted,
		FinishedAt:    &finished,
		OutputPayload: models.Payload{},
	}))
	empty, err := store.GetRun(ctx, other)
	require.NoError(t, err)
	require.Len(t, empty.Log, 1)
	assert.Equal(t, models.Payload{}, empty.Log[0].InputPayload)
	assert.Equal(t, models.Payload{}, empty.Log[0].OutputPayload)
	assert.Equal(t, models.Payload{}, empty.OutputPayload)
}

func TestMemoryCatalog(t *testing.T) {
	testCatalog(t, NewMemoryCatalog())
}

func TestMemoryRunStore(t *testing.T) {
	testRunStore(t, NewMemoryRunStore())
}

func TestMemoryRunStore_SnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRunStore()
	input := models.Payload{"nested": map[string]any{"k": "v"}}
	id, err := store.CreateRun(ctx, &models.Run{WorkflowID: "w", InputPayload: input})
	require.NoError(t, err)

	input["nested"].(map[string]any)["k"] = "mutated"
	snap, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v", snap.InputPayload["nested"].(map[string]any)["k"])

	snap.InputPayload["nested"].(map[string]any)["k"] = "mutated"
	again, err := store.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v", again.InputPayload["nested"].(map[string]any)["k"])

	_, err = store.CreateRun(ctx, &models.Run{ID: id})
	assert.Error(t, err)
}

func TestMemoryCatalog_CopiesDefinitions(t *testing.T) {
	ctx := context.Background()
	catalog := NewMemoryCatalog()
	wf := &models.Workflow{ID: "w", Steps: []models.StepConfig{{StepID: 1, Config: models.Payload{"a": "b"}}}}
	require.NoError(t, catalog.SaveWorkflow(ctx, wf))

	wf.Steps[0].Config["a"] = "changed"
	got, err := catalog.GetWorkflow(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Steps[0].Config["a"])
	created := got.CreatedAt

	require.NoError(t, catalog.SaveWorkflow(ctx, wf))
	got, err = catalog.GetWorkflow(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
}
