package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunRecord is a persisted workflow execution.
// Maps to: run table (partitioned by submitted_at)
type RunRecord struct {
	RunID uuid.UUID `db:"run_id" json:"run_id"`

	// WorkflowID is nil for ad-hoc runs submitted with an inline definition.
	WorkflowID *uuid.UUID `db:"workflow_id" json:"workflow_id,omitempty"`

	// Status mirrors the engine's run status: running, completed, partial,
	// failed, cancelled.
	Status string `db:"status" json:"status"`

	// Inputs is the external input document as submitted (JSONB).
	Inputs json.RawMessage `db:"inputs" json:"inputs,omitempty"`

	// Report is the final run report (JSONB); nil while the run is active.
	Report json.RawMessage `db:"report" json:"report,omitempty"`

	SubmittedBy *string    `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submitted_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
