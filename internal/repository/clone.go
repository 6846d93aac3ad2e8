package repository

import (
	"time"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

func cloneSchema(s *models.Schema) *models.Schema {
	if s == nil {
		return nil
	}
	return &models.Schema{Fields: cloneFields(s.Fields), Strict: s.Strict}
}

func cloneFields(fields map[string]*models.FieldSchema) map[string]*models.FieldSchema {
	if fields == nil {
		return nil
	}
	out := make(map[string]*models.FieldSchema, len(fields))
	for name, f := range fields {
		out[name] = cloneField(f)
	}
	return out
}

func cloneField(f *models.FieldSchema) *models.FieldSchema {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Fields = cloneFields(f.Fields)
	cp.Items = cloneField(f.Items)
	return &cp
}

func cloneComponent(c *models.Component) *models.Component {
	cp := *c
	cp.InputSchema = cloneSchema(c.InputSchema)
	cp.OutputSchema = cloneSchema(c.OutputSchema)
	if c.Tags != nil {
		cp.Tags = append([]string(nil), c.Tags...)
	}
	return &cp
}

func cloneWorkflow(w *models.Workflow) *models.Workflow {
	cp := *w
	cp.InputSchema = cloneSchema(w.InputSchema)
	cp.OutputMapping = payload.CloneMap(w.OutputMapping)
	if w.Steps != nil {
		cp.Steps = make([]models.StepConfig, len(w.Steps))
		for i, s := range w.Steps {
			s.Config = payload.CloneMap(s.Config)
			s.InputMapping = payload.CloneMap(s.InputMapping)
			cp.Steps[i] = s
		}
	}
	return &cp
}

func cloneEntry(e models.LogEntry) models.LogEntry {
	e.InputPayload = payload.CloneMap(e.InputPayload)
	e.OutputPayload = payload.CloneMap(e.OutputPayload)
	if e.Error != nil {
		se := *e.Error
		if se.Violations != nil {
			se.Violations = append([]models.Violation(nil), se.Violations...)
		}
		e.Error = &se
	}
	return e
}

func cloneRun(r *models.Run) *models.Run {
	cp := *r
	cp.InputPayload = payload.CloneMap(r.InputPayload)
	cp.OutputPayload = payload.CloneMap(r.OutputPayload)
	cp.StartedAt = cloneTime(r.StartedAt)
	cp.FinishedAt = cloneTime(r.FinishedAt)
	cp.Log = make([]models.LogEntry, len(r.Log))
	for i, e := range r.Log {
		cp.Log[i] = cloneEntry(e)
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
