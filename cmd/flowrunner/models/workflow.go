package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StoredWorkflow is a persisted workflow definition.
// Maps to: workflow table
type StoredWorkflow struct {
	WorkflowID  uuid.UUID `db:"workflow_id" json:"workflow_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`

	// Definition is the raw graph document ({"nodes": [...], "edges": [...]})
	// stored as JSONB.
	Definition json.RawMessage `db:"definition" json:"definition"`

	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WorkflowSummary is the list-view projection of a stored workflow.
type WorkflowSummary struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	Name       string    `json:"name"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}
