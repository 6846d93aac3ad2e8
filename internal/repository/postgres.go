package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-orchestrator/backend/pkg/models"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS components (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	endpoint_type TEXT NOT NULL,
	input_schema  JSONB,
	output_schema JSONB,
	tags          JSONB,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS workflows (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	input_schema   JSONB,
	output_mapping JSONB,
	steps          JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	workflow_id    TEXT NOT NULL,
	workflow_name  TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	input_payload  JSONB NOT NULL,
	output_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS runs_workflow_id_idx ON runs (workflow_id);

CREATE TABLE IF NOT EXISTS run_log_entries (
	run_id  TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	seq     INT NOT NULL,
	step_id INT NOT NULL,
	entry   JSONB NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// Migrate creates the tables used by the Postgres stores.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// PostgresCatalog is a PostgreSQL implementation of the Catalog interface.
type PostgresCatalog struct {
	db *pgxpool.Pool
}

// NewPostgresCatalog creates a new PostgresCatalog.
func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

const componentColumns = `id, name, description, endpoint_type, input_schema, output_schema, tags, active, created_at, updated_at`

// SaveComponent creates or replaces a component.
func (s *PostgresCatalog) SaveComponent(ctx context.Context, c *models.Component) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO components (id, name, description, endpoint_type, input_schema, output_schema, tags, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			endpoint_type = EXCLUDED.endpoint_type,
			input_schema = EXCLUDED.input_schema,
			output_schema = EXCLUDED.output_schema,
			tags = EXCLUDED.tags,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description, string(c.EndpointType), c.InputSchema, c.OutputSchema, c.Tags, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving component %s: %w", c.ID, err)
	}
	return nil
}

// GetComponent retrieves a component by its ID.
func (s *PostgresCatalog) GetComponent(ctx context.Context, id string) (*models.Component, error) {
	row := s.db.QueryRow(ctx, `SELECT `+componentColumns+` FROM components WHERE id = $1`, id)
	c, err := scanComponent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("component %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading component %s: %w", id, err)
	}
	return c, nil
}

// ListComponents returns all components ordered by name.
func (s *PostgresCatalog) ListComponents(ctx context.Context) ([]*models.Component, error) {
	rows, err := s.db.Query(ctx, `SELECT `+componentColumns+` FROM components ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}
	defer rows.Close()

	var components []*models.Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("listing components: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func scanComponent(row pgx.Row) (*models.Component, error) {
	var c models.Component
	var endpointType string
	err := row.Scan(&c.ID, &c.Name, &c.Description, &endpointType, &c.InputSchema, &c.OutputSchema,
		&c.Tags, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.EndpointType = models.EndpointType(endpointType)
	return &c, nil
}

const workflowColumns = `id, name, description, input_schema, output_mapping, steps, created_at, updated_at`

// SaveWorkflow creates or replaces a workflow.
func (s *PostgresCatalog) SaveWorkflow(ctx context.Context, w *models.Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	steps := w.Steps
	if steps == nil {
		steps = []models.StepConfig{}
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO workflows (id, name, description, input_schema, output_mapping, steps)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			input_schema = EXCLUDED.input_schema,
			output_mapping = EXCLUDED.output_mapping,
			steps = EXCLUDED.steps,
			updated_at = now()
		RETURNING created_at, updated_at`,
		w.ID, w.Name, w.Description, w.InputSchema, w.OutputMapping, steps,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving workflow %s: %w", w.ID, err)
	}
	return nil
}

// GetWorkflow retrieves a workflow by its ID.
func (s *PostgresCatalog) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	w, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading workflow %s: %w", id, err)
	}
	return w, nil
}

// ListWorkflows returns all workflows ordered by name.
func (s *PostgresCatalog) ListWorkflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := s.db.Query(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("listing workflows: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

func scanWorkflow(row pgx.Row) (*models.Workflow, error) {
	var w models.Workflow
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.InputSchema, &w.OutputMapping, &w.Steps,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
