package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lyzr/flowrunner/cmd/flowrunner/models"
	"github.com/lyzr/flowrunner/common/db"
)

// RunRepository handles database operations for run records
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *db.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run record
func (r *RunRepository) Create(ctx context.Context, run *models.RunRecord) error {
	query := `
		INSERT INTO run (
			run_id, workflow_id, status, inputs, submitted_by, submitted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := r.db.Exec(ctx, query,
		run.RunID,
		run.WorkflowID,
		run.Status,
		run.Inputs,
		run.SubmittedBy,
		run.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// GetByID retrieves a run record by its ID
func (r *RunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.RunRecord, error) {
	query := `
		SELECT run_id, workflow_id, status, inputs, report, submitted_by, submitted_at, finished_at
		FROM run
		WHERE run_id = $1
	`

	run := &models.RunRecord{}
	err := r.db.QueryRow(ctx, query, runID).Scan(
		&run.RunID,
		&run.WorkflowID,
		&run.Status,
		&run.Inputs,
		&run.Report,
		&run.SubmittedBy,
		&run.SubmittedAt,
		&run.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// List returns run records, optionally filtered by status, newest first
func (r *RunRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.RunRecord, error) {
	query := `
		SELECT run_id, workflow_id, status, inputs, report, submitted_by, submitted_at, finished_at
		FROM run
		WHERE ($1 = '' OR status = $1)
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run := &models.RunRecord{}
		if err := rows.Scan(
			&run.RunID,
			&run.WorkflowID,
			&run.Status,
			&run.Inputs,
			&run.Report,
			&run.SubmittedBy,
			&run.SubmittedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Finish records a run's final status and report
func (r *RunRepository) Finish(ctx context.Context, runID uuid.UUID, status string, report json.RawMessage, finishedAt time.Time) error {
	query := `
		UPDATE run
		SET status = $2, report = $3, finished_at = $4
		WHERE run_id = $1
	`

	tag, err := r.db.Exec(ctx, query, runID, status, report, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
