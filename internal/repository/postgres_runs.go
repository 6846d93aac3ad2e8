package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workflow-orchestrator/backend/pkg/models"
)

// PostgresRunStore is a PostgreSQL implementation of the RunStore interface.
// Log entries live in run_log_entries, ordered by a per-run sequence.
type PostgresRunStore struct {
	db *pgxpool.Pool
}

// NewPostgresRunStore creates a new PostgresRunStore.
func NewPostgresRunStore(db *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// CreateRun stores a new run. Log entries on run are not persisted.
func (s *PostgresRunStore) CreateRun(ctx context.Context, run *models.Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	input := run.InputPayload
	if input == nil {
		input = models.Payload{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO runs (id, workflow_id, workflow_name, status, input_payload, output_payload, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.WorkflowID, run.WorkflowName, string(run.Status), input, run.OutputPayload,
		run.CreatedAt, run.StartedAt, run.FinishedAt)
	if err != nil {
		return "", fmt.Errorf("creating run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// AppendLogEntry appends an entry to a non-terminal run.
func (s *PostgresRunStore) AppendLogEntry(ctx context.Context, runID string, entry models.LogEntry) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := lockRun(ctx, tx, runID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO run_log_entries (run_id, seq, step_id, entry)
			SELECT $1::text, COALESCE(MAX(seq), 0) + 1, $2::int, $3::jsonb
			FROM run_log_entries WHERE run_id = $1`,
			runID, entry.StepID, entry)
		if err != nil {
			return fmt.Errorf("appending log entry to run %s: %w", runID, err)
		}
		return nil
	})
}

// UpdateStatus applies a status transition to a non-terminal run. Terminal
// rows are never updated.
func (s *PostgresRunStore) UpdateStatus(ctx context.Context, runID string, update models.StatusUpdate) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		current, err := lockRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		if !current.CanTransition(update.Status) {
			return fmt.Errorf("run %s: %s -> %s: %w", runID, current, update.Status, ErrInvalidTransition)
		}

		var output any
		if update.OutputPayload != nil {
			output = update.OutputPayload
		}
		_, err = tx.Exec(ctx, `
			UPDATE runs SET
				status = $2,
				started_at = COALESCE($3, started_at),
				finished_at = COALESCE($4, finished_at),
				output_payload = COALESCE($5::jsonb, output_payload)
			WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
			runID, string(update.Status), update.StartedAt, update.FinishedAt, output)
		if err != nil {
			return fmt.Errorf("updating run %s: %w", runID, err)
		}
		return nil
	})
}

// lockRun locks the run row for the rest of tx and returns its status.
func lockRun(ctx context.Context, tx pgx.Tx, runID string) (models.RunStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("locking run %s: %w", runID, err)
	}
	if models.RunStatus(status).Terminal() {
		return "", fmt.Errorf("run %s: %w", runID, ErrRunFinalized)
	}
	return models.RunStatus(status), nil
}

// GetRun returns a run with its log.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	var run models.Run
	var status string
	err := s.db.QueryRow(ctx, `
		SELECT id, workflow_id, workflow_name, status, input_payload, output_payload, created_at, started_at, finished_at
		FROM runs WHERE id = $1`, id).
		Scan(&run.ID, &run.WorkflowID, &run.WorkflowName, &status, &run.InputPayload, &run.OutputPayload,
			&run.CreatedAt, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	run.Status = models.RunStatus(status)

	rows, err := s.db.Query(ctx, `SELECT entry FROM run_log_entries WHERE run_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading log of run %s: %w", id, err)
	}
	defer rows.Close()

	run.Log = []models.LogEntry{}
	for rows.Next() {
		var entry models.LogEntry
		if err := rows.Scan(&entry); err != nil {
			return nil, fmt.Errorf("loading log of run %s: %w", id, err)
		}
		run.Log = append(run.Log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading log of run %s: %w", id, err)
	}
	return &run, nil
}
