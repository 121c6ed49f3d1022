package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lyzr/flowrunner/cmd/flowrunner/models"
	"github.com/lyzr/flowrunner/common/db"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// WorkflowRepository handles database operations for stored workflows
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.StoredWorkflow) error {
	query := `
		INSERT INTO workflow (
			workflow_id, name, description, definition, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.Exec(ctx, query,
		wf.WorkflowID,
		wf.Name,
		wf.Description,
		wf.Definition,
		wf.CreatedBy,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*models.StoredWorkflow, error) {
	query := `
		SELECT workflow_id, name, description, definition, created_by, created_at, updated_at
		FROM workflow
		WHERE workflow_id = $1
	`

	wf := &models.StoredWorkflow{}
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&wf.WorkflowID,
		&wf.Name,
		&wf.Description,
		&wf.Definition,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// List returns all workflows, newest first
func (r *WorkflowRepository) List(ctx context.Context, limit, offset int) ([]*models.StoredWorkflow, error) {
	query := `
		SELECT workflow_id, name, description, definition, created_by, created_at, updated_at
		FROM workflow
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.StoredWorkflow
	for rows.Next() {
		wf := &models.StoredWorkflow{}
		if err := rows.Scan(
			&wf.WorkflowID,
			&wf.Name,
			&wf.Description,
			&wf.Definition,
			&wf.CreatedBy,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	return workflows, rows.Err()
}

// UpdateDefinition replaces a workflow's definition document
func (r *WorkflowRepository) UpdateDefinition(ctx context.Context, wf *models.StoredWorkflow) error {
	query := `
		UPDATE workflow
		SET name = $2, description = $3, definition = $4, updated_at = $5
		WHERE workflow_id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		wf.WorkflowID,
		wf.Name,
		wf.Description,
		wf.Definition,
		wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a workflow
func (r *WorkflowRepository) Delete(ctx context.Context, workflowID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflow WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
