package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

// MemoryCatalog is an in-memory implementation of the Catalog interface.
type MemoryCatalog struct {
	mu         sync.RWMutex
	components map[string]*models.Component
	workflows  map[string]*models.Workflow
}

// NewMemoryCatalog creates a new MemoryCatalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		components: make(map[string]*models.Component),
		workflows:  make(map[string]*models.Workflow),
	}
}

// SaveComponent creates or replaces a component.
func (s *MemoryCatalog) SaveComponent(ctx context.Context, c *models.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if existing, ok := s.components[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.components[c.ID] = cloneComponent(c)
	return nil
}

// GetComponent retrieves a component by its ID.
func (s *MemoryCatalog) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.components[id]
	if !ok {
		return nil, fmt.Errorf("component %s: %w", id, ErrNotFound)
	}
	return cloneComponent(c), nil
}

// ListComponents returns all components ordered by name.
func (s *MemoryCatalog) ListComponents(ctx context.Context) ([]*models.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Component, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, cloneComponent(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SaveWorkflow creates or replaces a workflow.
func (s *MemoryCatalog) SaveWorkflow(ctx context.Context, w *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if existing, ok := s.workflows[w.ID]; ok {
		w.CreatedAt = existing.CreatedAt
	} else {
		w.CreatedAt = now
	}
	w.UpdatedAt = now
	s.workflows[w.ID] = cloneWorkflow(w)
	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *MemoryCatalog) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	return cloneWorkflow(w), nil
}

// ListWorkflows returns all workflows ordered by name.
func (s *MemoryCatalog) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		out = append(out, cloneWorkflow(w))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MemoryRunStore is an in-memory implementation of the RunStore interface.
// Reads return deep copies, so callers never observe later writes.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*models.Run
}

// NewMemoryRunStore creates a new MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*models.Run)}
}

// CreateRun stores a new run.
func (s *MemoryRunStore) CreateRun(ctx context.Context, run *models.Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	s.runs[run.ID] = cloneRun(run)
	return run.ID, nil
}

// AppendLogEntry appends an entry to a non-terminal run.
func (s *MemoryRunStore) AppendLogEntry(ctx context.Context, runID string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
	}
	run.Log = append(run.Log, cloneEntry(entry))
	return nil
}

// UpdateStatus applies a status transition to a non-terminal run.
func (s *MemoryRunStore) UpdateStatus(ctx context.Context, runID string, update models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if run.Status.Terminal() {
		return fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
	}
	if !run.Status.CanTransition(update.Status) {
		return fmt.Errorf("run %s: %s -> %s: %w", runID, run.Status, update.Status, ErrInvalidTransition)
	}

	run.Status = update.Status
	if update.StartedAt != nil {
		run.StartedAt = cloneTime(update.StartedAt)
	}
	if update.FinishedAt != nil {
		run.FinishedAt = cloneTime(update.FinishedAt)
	}
	if update.OutputPayload != nil {
		run.OutputPayload = payload.CloneMap(update.OutputPayload)
	}
	return nil
}

// GetRun returns a snapshot of a run.
func (s *MemoryRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return cloneRun(run), nil
}
